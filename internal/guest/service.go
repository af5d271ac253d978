// Package guest manages app-only (guest) authentication: fetching an OAuth2
// bearer token, activating a guest token with it, keeping one shared guest
// session fresh, and re-authenticating requests that come back 401.
package guest

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	apperrors "github.com/twitter-archive/twitterkit-auth/internal/errors"
	"github.com/twitter-archive/twitterkit-auth/internal/logging"
	"github.com/twitter-archive/twitterkit-auth/internal/models"
	"github.com/twitter-archive/twitterkit-auth/internal/transport"
	"github.com/twitter-archive/twitterkit-auth/internal/urlcodec"
)

const (
	appTokenPath      = "/oauth2/token"
	guestActivatePath = "/1.1/guest/activate.json"

	grantTypeClientCredentials = "client_credentials"
)

// OAuth2Service talks to the app-auth and guest activation endpoints. It
// does not retry; failures are returned to the caller as-is.
type OAuth2Service struct {
	sender transport.Sender
	config models.AuthConfig
	apiURL string
	logger *slog.Logger
	now    func() time.Time
}

// NewOAuth2Service creates a service posting to apiURL through sender.
func NewOAuth2Service(sender transport.Sender, cfg models.AuthConfig, apiURL string, logger *slog.Logger) *OAuth2Service {
	if logger == nil {
		logger = logging.Discard()
	}

	return &OAuth2Service{
		sender: sender,
		config: cfg,
		apiURL: strings.TrimRight(apiURL, "/"),
		logger: logger,
		now:    time.Now,
	}
}

// basicAuthHeader returns the client-credentials Basic header. Key and
// secret are percent-encoded before joining.
func (s *OAuth2Service) basicAuthHeader() string {
	creds := urlcodec.PercentEncode(s.config.ConsumerKey) + ":" + urlcodec.PercentEncode(s.config.ConsumerSecret)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

// RequestAppAuthToken obtains an app-only bearer token with the client
// credentials grant.
func (s *OAuth2Service) RequestAppAuthToken(ctx context.Context) (*models.BearerToken, error) {
	req := transport.NewRequest(http.MethodPost, s.apiURL+appTokenPath,
		urlcodec.FormParam{Name: "grant_type", Value: grantTypeClientCredentials})
	req.Header.Set(transport.HeaderAuthorization, s.basicAuthHeader())
	req.Header.Set(transport.HeaderContentType, transport.ContentTypeForm)

	body, err := s.post(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("requesting app auth token: %w", err)
	}

	fields := gjson.GetManyBytes(body, "token_type", "access_token")

	accessToken := fields[1].String()
	if accessToken == "" {
		return nil, fmt.Errorf("requesting app auth token: %w: missing access_token", apperrors.ErrAPIResponse)
	}

	tokenType := fields[0].String()
	if tokenType == "" {
		tokenType = models.TokenTypeBearer
	}

	return &models.BearerToken{
		TokenType:   tokenType,
		AccessToken: accessToken,
		CreatedAt:   s.now(),
	}, nil
}

// RequestGuestToken activates a guest token using an app-only bearer
// token.
func (s *OAuth2Service) RequestGuestToken(ctx context.Context, bearer *models.BearerToken) (string, error) {
	if bearer == nil || bearer.AccessToken == "" {
		return "", fmt.Errorf("requesting guest token: %w: no bearer token", apperrors.ErrNoGuestToken)
	}

	req := transport.NewRequest(http.MethodPost, s.apiURL+guestActivatePath)
	req.Header.Set(transport.HeaderAuthorization, "Bearer "+bearer.AccessToken)

	body, err := s.post(ctx, req)
	if err != nil {
		return "", fmt.Errorf("requesting guest token: %w", err)
	}

	guestToken := gjson.GetBytes(body, "guest_token").String()
	if guestToken == "" {
		return "", fmt.Errorf("requesting guest token: %w: missing guest_token", apperrors.ErrAPIResponse)
	}

	return guestToken, nil
}

// RequestGuestAuthToken runs the app token and guest token calls in
// sequence. If either fails nothing is returned; a bearer token obtained
// along the way is dropped.
func (s *OAuth2Service) RequestGuestAuthToken(ctx context.Context) (*models.GuestToken, error) {
	bearer, err := s.RequestAppAuthToken(ctx)
	if err != nil {
		return nil, err
	}

	guestToken, err := s.RequestGuestToken(ctx, bearer)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("guest token activated")

	return &models.GuestToken{
		TokenType:   bearer.TokenType,
		AccessToken: bearer.AccessToken,
		GuestToken:  guestToken,
		CreatedAt:   s.now(),
	}, nil
}

// Result carries the outcome of an asynchronous guest authentication.
// Exactly one of Token and Err is set.
type Result struct {
	Token *models.GuestToken
	Err   error
}

// RequestGuestAuthTokenAsync runs RequestGuestAuthToken in a goroutine.
// The returned channel receives exactly one Result and is then closed.
func (s *OAuth2Service) RequestGuestAuthTokenAsync(ctx context.Context) <-chan Result {
	ch := make(chan Result, 1)

	go func() {
		defer close(ch)

		tok, err := s.RequestGuestAuthToken(ctx)
		ch <- Result{Token: tok, Err: err}
	}()

	return ch
}

// post sends req and returns the body of a 2xx response.
func (s *OAuth2Service) post(ctx context.Context, req *transport.Request) ([]byte, error) {
	resp, err := s.sender.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	if !resp.IsSuccess() {
		s.logger.Warn("guest: token endpoint rejected request",
			slog.String("url", req.URL),
			slog.Int("status", resp.StatusCode),
		)

		return nil, fmt.Errorf("%w: status %d: %s", apperrors.ErrAPIResponse, resp.StatusCode, string(resp.Body))
	}

	if !gjson.ValidBytes(resp.Body) {
		return nil, fmt.Errorf("%w: invalid JSON body", apperrors.ErrAPIResponse)
	}

	return resp.Body, nil
}
