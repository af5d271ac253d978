// Package oauth1 signs Twitter API requests with OAuth1.0a HMAC-SHA1 and
// implements the three-legged login flow on top of the signer.
package oauth1

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/twitter-archive/twitterkit-auth/internal/logging"
	"github.com/twitter-archive/twitterkit-auth/internal/models"
	"github.com/twitter-archive/twitterkit-auth/internal/transport"
	"github.com/twitter-archive/twitterkit-auth/internal/urlcodec"
)

// OAuth protocol parameter names.
const (
	ParamCallback        = "oauth_callback"
	ParamConsumerKey     = "oauth_consumer_key"
	ParamNonce           = "oauth_nonce"
	ParamSignature       = "oauth_signature"
	ParamSignatureMethod = "oauth_signature_method"
	ParamTimestamp       = "oauth_timestamp"
	ParamToken           = "oauth_token"
	ParamTokenSecret     = "oauth_token_secret"
	ParamVerifier        = "oauth_verifier"
	ParamVersion         = "oauth_version"
)

const (
	SignatureMethod = "HMAC-SHA1"
	Version         = "1.0"

	headerPrefix = "OAuth"
)

// VerifyCredentialsURL is the endpoint OAuth Echo delegates verification to.
const VerifyCredentialsURL = "https://api.twitter.com/1.1/account/verify_credentials.json"

// Request describes one request to sign. Token and Callback are optional.
// PostParams holds the decoded form body, if any.
type Request struct {
	Token      *models.UserToken
	Method     string
	URL        string
	Callback   string
	PostParams map[string]string
}

func (r Request) token() string {
	if r.Token == nil {
		return ""
	}

	return r.Token.Token
}

// SignatureBase builds the canonical string that is HMAC-signed. It merges
// the decoded URL query, the post params and the protocol params, sorts
// them by raw name and encodes the result twice: once as parameter string
// and once as a segment of the base string.
func SignatureBase(cfg models.AuthConfig, req Request, nonce, timestamp string) (string, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("parsing request url: %w", err)
	}

	params := urlcodec.QueryParams(u.RawQuery, true)
	params.Merge(req.PostParams)

	if req.Callback != "" {
		params[ParamCallback] = req.Callback
	}

	params[ParamConsumerKey] = cfg.ConsumerKey
	params[ParamNonce] = nonce
	params[ParamSignatureMethod] = SignatureMethod
	params[ParamTimestamp] = timestamp

	if tok := req.token(); tok != "" {
		params[ParamToken] = tok
	}

	params[ParamVersion] = Version

	var sb strings.Builder

	sb.WriteString(strings.ToUpper(req.Method))
	sb.WriteByte('&')
	sb.WriteString(urlcodec.PercentEncode(baseURL(u)))
	sb.WriteByte('&')
	sb.WriteString(encodedParams(params))

	return sb.String(), nil
}

// encodedParams renders params as an already percent-encoded segment:
// enc(enc(k)) "%3D" enc(enc(v)) joined by "%26".
func encodedParams(params urlcodec.Params) string {
	var sb strings.Builder

	for i, k := range params.Keys() {
		if i > 0 {
			sb.WriteString("%26")
		}

		sb.WriteString(urlcodec.PercentEncode(urlcodec.PercentEncode(k)))
		sb.WriteString("%3D")
		sb.WriteString(urlcodec.PercentEncode(urlcodec.PercentEncode(params[k])))
	}

	return sb.String()
}

// baseURL returns scheme://host/path without query or fragment. Scheme and
// host are lower-cased and default ports dropped, following RFC 5849
// section 3.4.1.2: a non-default port is kept and the path stays in its
// escaped form. Signers that strip every port or sign the decoded path
// disagree with this for such URLs.
func baseURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		host = strings.TrimSuffix(host, ":"+port)
	}

	return scheme + "://" + host + u.EscapedPath()
}

// SigningKey returns urlEncode(consumerSecret) "&" urlEncode(tokenSecret).
func SigningKey(cfg models.AuthConfig, token *models.UserToken) string {
	secret := ""
	if token != nil {
		secret = token.Secret
	}

	return urlcodec.URLEncode(cfg.ConsumerSecret) + "&" + urlcodec.URLEncode(secret)
}

// Signature returns base64(HMAC-SHA1(key, base)).
func Signature(key, base string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// HeaderValue assembles the Authorization header. Parameters appear in a
// fixed order; oauth_callback and oauth_token only when present.
func HeaderValue(cfg models.AuthConfig, req Request, nonce, timestamp, signature string) string {
	var sb strings.Builder

	sb.WriteString(headerPrefix)

	if req.Callback != "" {
		appendParam(&sb, ParamCallback, req.Callback)
	}

	appendParam(&sb, ParamConsumerKey, cfg.ConsumerKey)
	appendParam(&sb, ParamNonce, nonce)
	appendParam(&sb, ParamSignature, signature)
	appendParam(&sb, ParamSignatureMethod, SignatureMethod)
	appendParam(&sb, ParamTimestamp, timestamp)

	if tok := req.token(); tok != "" {
		appendParam(&sb, ParamToken, tok)
	}

	appendParam(&sb, ParamVersion, Version)

	return strings.TrimSuffix(sb.String(), ",")
}

func appendParam(sb *strings.Builder, name, value string) {
	sb.WriteByte(' ')
	sb.WriteString(urlcodec.PercentEncode(name))
	sb.WriteString(`="`)
	sb.WriteString(urlcodec.PercentEncode(value))
	sb.WriteString(`",`)
}

// clockOrigin anchors the monotonic reading used in nonces.
var clockOrigin = time.Now()

// newNonce concatenates a monotonic nanosecond reading with a non-negative
// random integer. Nonces only need to be unique per process.
func newNonce() string {
	return strconv.FormatInt(time.Since(clockOrigin).Nanoseconds(), 10) +
		strconv.FormatInt(rand.Int64(), 10)
}

// Signer produces Authorization headers for a single consumer. It holds no
// mutable state and is safe for concurrent use.
type Signer struct {
	config models.AuthConfig
	logger *slog.Logger

	now   func() time.Time
	nonce func() string
}

// NewSigner creates a Signer for cfg. A nil logger discards output.
func NewSigner(cfg models.AuthConfig, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = logging.Discard()
	}

	return &Signer{
		config: cfg,
		logger: logger,
		now:    time.Now,
		nonce:  newNonce,
	}
}

// Config returns the consumer credentials the signer was built with.
func (s *Signer) Config() models.AuthConfig {
	return s.config
}

// AuthorizationHeader signs req with a fresh nonce and timestamp. It never
// fails: if the base string cannot be built the failure is logged and the
// header carries an empty signature.
func (s *Signer) AuthorizationHeader(req Request) string {
	nonce := s.nonce()
	timestamp := strconv.FormatInt(s.now().Unix(), 10)

	signature := ""

	base, err := SignatureBase(s.config, req, nonce, timestamp)
	if err != nil {
		s.logger.Error("oauth1: cannot sign request",
			slog.String("method", req.Method),
			slog.String("error", err.Error()),
		)
	} else {
		signature = Signature(SigningKey(s.config, req.Token), base)
	}

	return HeaderValue(s.config, req, nonce, timestamp, signature)
}

// EchoHeaders returns the OAuth Echo headers that let a third party
// verify token by calling rawURL on the user's behalf.
func (s *Signer) EchoHeaders(token *models.UserToken, method, rawURL string, postParams map[string]string) map[string]string {
	header := s.AuthorizationHeader(Request{
		Token:      token,
		Method:     method,
		URL:        rawURL,
		PostParams: postParams,
	})

	return map[string]string{
		transport.HeaderAuthServiceProvider:         rawURL,
		transport.HeaderVerifyCredentialsAuthorizer: header,
	}
}

// VerifyCredentialsEchoHeaders returns OAuth Echo headers targeting
// account/verify_credentials.
func (s *Signer) VerifyCredentialsEchoHeaders(token *models.UserToken) map[string]string {
	return s.EchoHeaders(token, http.MethodGet, VerifyCredentialsURL, nil)
}
