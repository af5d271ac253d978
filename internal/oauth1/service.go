package oauth1

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/twitter-archive/twitterkit-auth/internal/errors"
	"github.com/twitter-archive/twitterkit-auth/internal/logging"
	"github.com/twitter-archive/twitterkit-auth/internal/models"
	"github.com/twitter-archive/twitterkit-auth/internal/transport"
	"github.com/twitter-archive/twitterkit-auth/internal/urlcodec"
)

const (
	requestTokenPath = "/oauth/request_token"
	accessTokenPath  = "/oauth/access_token"
	authorizePath    = "/oauth/authorize"
)

// ServiceConfig configures the login flow endpoints.
type ServiceConfig struct {
	// APIURL is the API host, e.g. https://api.twitter.com.
	APIURL string
	// CallbackURL receives the verifier after the user authorizes.
	CallbackURL string
	// ClientVersion is reported to the API in the callback URL.
	ClientVersion string
}

// Service runs the three-legged OAuth1.0a login flow.
type Service struct {
	sender transport.Sender
	signer *Signer
	cfg    ServiceConfig
	logger *slog.Logger
}

// NewService creates a login flow client. Requests go through sender
// unmodified; the service signs them itself.
func NewService(sender transport.Sender, signer *Signer, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}

	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	return &Service{
		sender: sender,
		signer: signer,
		cfg:    cfg,
		logger: logger,
	}
}

// CallbackURL returns the callback with the client version and consumer
// key appended.
func (s *Service) CallbackURL() string {
	sep := "?"
	if strings.Contains(s.cfg.CallbackURL, "?") {
		sep = "&"
	}

	return s.cfg.CallbackURL + sep +
		"version=" + urlcodec.URLEncode(s.cfg.ClientVersion) +
		"&app=" + urlcodec.URLEncode(s.signer.Config().ConsumerKey)
}

// RequestTempToken obtains a temporary request token to start the login.
func (s *Service) RequestTempToken(ctx context.Context) (*models.OAuthResponse, error) {
	endpoint := s.cfg.APIURL + requestTokenPath

	req := transport.NewRequest(http.MethodPost, endpoint)
	req.Header.Set(transport.HeaderAuthorization, s.signer.AuthorizationHeader(Request{
		Method:   http.MethodPost,
		URL:      endpoint,
		Callback: s.CallbackURL(),
	}))

	resp, err := s.exchange(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("requesting temp token: %w", err)
	}

	return resp, nil
}

// AuthorizeURL returns the page the user visits to approve tempToken.
func (s *Service) AuthorizeURL(tempToken *models.UserToken) string {
	return s.cfg.APIURL + authorizePath + "?" + ParamToken + "=" + urlcodec.URLEncode(tempToken.Token)
}

// RequestAccessToken exchanges an authorized temp token and its verifier
// for a user access token.
func (s *Service) RequestAccessToken(ctx context.Context, tempToken *models.UserToken, verifier string) (*models.OAuthResponse, error) {
	endpoint := s.cfg.APIURL + accessTokenPath + "?" + ParamVerifier + "=" + urlcodec.URLEncode(verifier)

	req := transport.NewRequest(http.MethodPost, endpoint)
	req.Header.Set(transport.HeaderAuthorization, s.signer.AuthorizationHeader(Request{
		Token:  tempToken,
		Method: http.MethodPost,
		URL:    endpoint,
	}))

	resp, err := s.exchange(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("requesting access token: %w", err)
	}

	s.logger.Info("user authorized",
		slog.String("screen_name", resp.UserName),
		slog.Int64("user_id", resp.UserID),
	)

	return resp, nil
}

// exchange sends req and parses a form-encoded token response.
func (s *Service) exchange(ctx context.Context, req *transport.Request) (*models.OAuthResponse, error) {
	resp, err := s.sender.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: status %d: %s", apperrors.ErrAPIResponse, resp.StatusCode, string(resp.Body))
	}

	out := ParseAuthResponse(string(resp.Body))
	if out == nil {
		s.logger.Warn("oauth1: unparseable token response", slog.Int("body_len", len(resp.Body)))
		return nil, apperrors.ErrAuthResponseUnparseable
	}

	return out, nil
}
