package oauth1

import (
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twitter-archive/twitterkit-auth/internal/logging"
	"github.com/twitter-archive/twitterkit-auth/internal/models"
	"github.com/twitter-archive/twitterkit-auth/internal/transport"
	"gopkg.in/yaml.v3"
)

type signingVector struct {
	Name           string            `yaml:"name"`
	ConsumerKey    string            `yaml:"consumer_key"`
	ConsumerSecret string            `yaml:"consumer_secret"`
	Token          string            `yaml:"token"`
	TokenSecret    string            `yaml:"token_secret"`
	Method         string            `yaml:"method"`
	URL            string            `yaml:"url"`
	Callback       string            `yaml:"callback"`
	PostParams     map[string]string `yaml:"post_params"`
	Nonce          string            `yaml:"nonce"`
	Timestamp      int64             `yaml:"timestamp"`
	Base           string            `yaml:"base"`
	Signature      string            `yaml:"signature"`
	Header         string            `yaml:"header"`
}

func (v signingVector) config() models.AuthConfig {
	return models.AuthConfig{ConsumerKey: v.ConsumerKey, ConsumerSecret: v.ConsumerSecret}
}

func (v signingVector) request() Request {
	req := Request{
		Method:     v.Method,
		URL:        v.URL,
		Callback:   v.Callback,
		PostParams: v.PostParams,
	}
	if v.Token != "" {
		req.Token = &models.UserToken{Token: v.Token, Secret: v.TokenSecret}
	}

	return req
}

func (v signingVector) timestamp() string {
	return strconv.FormatInt(v.Timestamp, 10)
}

func loadVectors(t *testing.T) []signingVector {
	t.Helper()

	data, err := os.ReadFile("testdata/vectors.yaml")
	require.NoError(t, err)

	var file struct {
		Vectors []signingVector `yaml:"vectors"`
	}
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.NotEmpty(t, file.Vectors)

	return file.Vectors
}

// assertBaseString reports a character-level diff when base strings
// differ; they are too long to compare by eye.
func assertBaseString(t *testing.T, want, got string) {
	t.Helper()

	if want == got {
		return
	}

	dmp := diffmatchpatch.New()
	t.Errorf("signature base mismatch:\n%s", dmp.DiffPrettyText(dmp.DiffMain(want, got, false)))
}

// fixedSigner returns a Signer that always uses the vector's nonce and
// timestamp.
func fixedSigner(v signingVector) *Signer {
	s := NewSigner(v.config(), logging.Discard())
	s.nonce = func() string { return v.Nonce }
	s.now = func() time.Time { return time.Unix(v.Timestamp, 0) }

	return s
}

// --- Known vectors ---

func TestSignatureBase_KnownVectors(t *testing.T) {
	for _, v := range loadVectors(t) {
		t.Run(v.Name, func(t *testing.T) {
			base, err := SignatureBase(v.config(), v.request(), v.Nonce, v.timestamp())
			require.NoError(t, err)
			assertBaseString(t, v.Base, base)
		})
	}
}

func TestSignature_KnownVectors(t *testing.T) {
	for _, v := range loadVectors(t) {
		t.Run(v.Name, func(t *testing.T) {
			req := v.request()
			base, err := SignatureBase(v.config(), req, v.Nonce, v.timestamp())
			require.NoError(t, err)
			assert.Equal(t, v.Signature, Signature(SigningKey(v.config(), req.Token), base))
		})
	}
}

func TestAuthorizationHeader_KnownVectors(t *testing.T) {
	for _, v := range loadVectors(t) {
		t.Run(v.Name, func(t *testing.T) {
			assert.Equal(t, v.Header, fixedSigner(v).AuthorizationHeader(v.request()))
		})
	}
}

func TestSignatureBase_RequestTokenEndsWithVersion(t *testing.T) {
	v := loadVectors(t)[0]
	base, err := SignatureBase(v.config(), v.request(), v.Nonce, v.timestamp())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(base, "oauth_version%3D1.0"))
}

// --- SignatureBase properties ---

func TestSignatureBase_Deterministic(t *testing.T) {
	cfg := models.AuthConfig{ConsumerKey: "key", ConsumerSecret: "secret"}
	req := Request{
		Token:      &models.UserToken{Token: "tok", Secret: "sec"},
		Method:     "post",
		URL:        "https://api.twitter.com/1.1/statuses/update.json?b=2&a=1",
		PostParams: map[string]string{"status": "hi there", "z": "last"},
	}

	first, err := SignatureBase(cfg, req, "nonce", "1")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := SignatureBase(cfg, req, "nonce", "1")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSignatureBase_UppercasesMethodAndDropsQuery(t *testing.T) {
	cfg := models.AuthConfig{ConsumerKey: "key"}
	base, err := SignatureBase(cfg, Request{Method: "get", URL: "https://api.twitter.com/1.1/statuses/show.json?id=20"}, "n", "1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(base, "GET&https%3A%2F%2Fapi.twitter.com%2F1.1%2Fstatuses%2Fshow.json&"))
	assert.Contains(t, base, "id%3D20")
}

func TestSignatureBase_SortsByRawKey(t *testing.T) {
	cfg := models.AuthConfig{ConsumerKey: "key"}
	base, err := SignatureBase(cfg, Request{
		Method:     http.MethodPost,
		URL:        "https://api.twitter.com/x?b=2&A=0",
		PostParams: map[string]string{"a": "1", "oauth_z": "9"},
	}, "n", "1")
	require.NoError(t, err)

	params := base[strings.LastIndex(base, "&")+1:]
	names := regexp.MustCompile(`(?:^|%26)([^%]+)%3D`).FindAllStringSubmatch(params, -1)

	var got []string
	for _, m := range names {
		got = append(got, m[1])
	}

	assert.Equal(t, []string{
		"A", "a", "b",
		"oauth_consumer_key", "oauth_nonce", "oauth_signature_method",
		"oauth_timestamp", "oauth_version", "oauth_z",
	}, got)
}

func TestSignatureBase_PostParamsOverrideQuery(t *testing.T) {
	cfg := models.AuthConfig{ConsumerKey: "key"}
	base, err := SignatureBase(cfg, Request{
		Method:     http.MethodPost,
		URL:        "https://api.twitter.com/x?status=query",
		PostParams: map[string]string{"status": "body"},
	}, "n", "1")
	require.NoError(t, err)
	assert.Contains(t, base, "status%3Dbody")
	assert.NotContains(t, base, "status%3Dquery")
}

func TestSignatureBase_OmitsTokenWhenEmpty(t *testing.T) {
	cfg := models.AuthConfig{ConsumerKey: "key"}
	base, err := SignatureBase(cfg, Request{
		Token:  &models.UserToken{},
		Method: http.MethodGet,
		URL:    "https://api.twitter.com/x",
	}, "n", "1")
	require.NoError(t, err)
	assert.NotContains(t, base, "oauth_token")
}

func TestSignatureBase_BaseURLNormalization(t *testing.T) {
	cfg := models.AuthConfig{ConsumerKey: "key"}
	tests := []struct {
		url  string
		want string
	}{
		{"HTTPS://API.Twitter.com:443/1.1/x.json", "https%3A%2F%2Fapi.twitter.com%2F1.1%2Fx.json"},
		{"http://example.com:80/path", "http%3A%2F%2Fexample.com%2Fpath"},
		{"http://127.0.0.1:8080/oauth2/token", "http%3A%2F%2F127.0.0.1%3A8080%2Foauth2%2Ftoken"},
		{"https://api.twitter.com/a%20b#frag", "https%3A%2F%2Fapi.twitter.com%2Fa%2520b"},
	}
	for _, tt := range tests {
		base, err := SignatureBase(cfg, Request{Method: "GET", URL: tt.url}, "n", "1")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(base, "GET&"+tt.want+"&"), "url %q gave %q", tt.url, base)
	}
}

func TestSignatureBase_InvalidURL(t *testing.T) {
	_, err := SignatureBase(models.AuthConfig{}, Request{Method: "GET", URL: "://bad"}, "n", "1")
	require.Error(t, err)
}

// --- SigningKey ---

func TestSigningKey(t *testing.T) {
	cfg := models.AuthConfig{ConsumerSecret: "con sumer&"}
	assert.Equal(t, "con+sumer%26&", SigningKey(cfg, nil))
	assert.Equal(t, "con+sumer%26&tok%2Fsecret", SigningKey(cfg, &models.UserToken{Secret: "tok/secret"}))
}

// --- HeaderValue ---

func TestHeaderValue_OrderAndTrim(t *testing.T) {
	cfg := models.AuthConfig{ConsumerKey: "key"}
	header := HeaderValue(cfg, Request{
		Token:    &models.UserToken{Token: "tok"},
		Callback: "oob",
	}, "n", "1", "sig=")
	assert.Equal(t,
		`OAuth oauth_callback="oob", oauth_consumer_key="key", oauth_nonce="n", oauth_signature="sig%3D", `+
			`oauth_signature_method="HMAC-SHA1", oauth_timestamp="1", oauth_token="tok", oauth_version="1.0"`,
		header)
	assert.False(t, strings.HasSuffix(header, ","))
}

// --- Signer ---

func TestSigner_InvalidURLYieldsEmptySignature(t *testing.T) {
	s := NewSigner(models.AuthConfig{ConsumerKey: "key"}, nil)
	header := s.AuthorizationHeader(Request{Method: "GET", URL: "://bad"})
	assert.Contains(t, header, `oauth_signature=""`)
	assert.Contains(t, header, `oauth_consumer_key="key"`)
}

func TestSigner_TimestampIsUnixSeconds(t *testing.T) {
	s := NewSigner(models.AuthConfig{ConsumerKey: "key"}, nil)
	s.now = func() time.Time { return time.Unix(1700000000, 999) }
	header := s.AuthorizationHeader(Request{Method: "GET", URL: "https://api.twitter.com/x"})
	assert.Contains(t, header, `oauth_timestamp="1700000000"`)
}

func TestNewNonce_UniqueDigits(t *testing.T) {
	seen := make(map[string]struct{})
	digits := regexp.MustCompile(`^[0-9]+$`)

	for i := 0; i < 1000; i++ {
		n := newNonce()
		assert.Regexp(t, digits, n)
		_, dup := seen[n]
		require.False(t, dup, "duplicate nonce %q", n)
		seen[n] = struct{}{}
	}
}

func TestSigner_Config(t *testing.T) {
	cfg := models.AuthConfig{ConsumerKey: "k", ConsumerSecret: "s"}
	assert.Equal(t, cfg, NewSigner(cfg, nil).Config())
}

// --- OAuth Echo ---

func TestEchoHeaders(t *testing.T) {
	v := loadVectors(t)[1]
	s := fixedSigner(v)

	headers := s.EchoHeaders(v.request().Token, v.Method, v.URL, v.PostParams)
	assert.Equal(t, v.URL, headers[transport.HeaderAuthServiceProvider])
	assert.Equal(t, v.Header, headers[transport.HeaderVerifyCredentialsAuthorizer])
}

func TestVerifyCredentialsEchoHeaders(t *testing.T) {
	cfg := models.AuthConfig{ConsumerKey: "key", ConsumerSecret: "secret"}
	s := NewSigner(cfg, nil)
	s.nonce = func() string { return "n" }
	s.now = func() time.Time { return time.Unix(1, 0) }

	token := &models.UserToken{Token: "tok", Secret: "sec"}
	headers := s.VerifyCredentialsEchoHeaders(token)
	assert.Equal(t, VerifyCredentialsURL, headers[transport.HeaderAuthServiceProvider])

	want := s.AuthorizationHeader(Request{Token: token, Method: http.MethodGet, URL: VerifyCredentialsURL})
	assert.Equal(t, want, headers[transport.HeaderVerifyCredentialsAuthorizer])
}
