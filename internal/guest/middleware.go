package guest

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/twitter-archive/twitterkit-auth/internal/logging"
	"github.com/twitter-archive/twitterkit-auth/internal/models"
	"github.com/twitter-archive/twitterkit-auth/internal/transport"
)

// maxAttempts is the longest response chain that may still be retried.
const maxAttempts = 2

// SessionProvider hands out the guest session used to sign requests.
// *SessionManager implements it.
type SessionProvider interface {
	CurrentSession(ctx context.Context) (*models.GuestSession, error)
	RefreshSession(ctx context.Context, expired *models.GuestSession) (*models.GuestSession, error)
}

// Middleware returns the full guest chain: 401 re-authentication outermost,
// then signing, then the 403 remap closest to the wire.
func Middleware(sessions SessionProvider, logger *slog.Logger) transport.Middleware {
	return func(next transport.Sender) transport.Sender {
		return transport.Chain(next,
			transport.WithAuthenticator(NewAuthenticator(sessions, logger)),
			SignRequests(sessions, logger),
			RemapForbidden(),
		)
	}
}

// SignRequests attaches the guest Authorization and x-guest-token headers
// when a valid session is available. Otherwise the request goes out
// unsigned.
func SignRequests(sessions SessionProvider, logger *slog.Logger) transport.Middleware {
	if logger == nil {
		logger = logging.Discard()
	}

	return func(next transport.Sender) transport.Sender {
		return transport.SenderFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			s, err := sessions.CurrentSession(ctx)
			if err != nil || s == nil || s.Token == nil {
				if err != nil {
					logger.Warn("guest: sending unsigned request",
						slog.String("url", req.URL),
						slog.String("error", err.Error()),
					)
				}

				return sendLinked(ctx, next, req)
			}

			signed := req.Clone()
			setAuthHeaders(signed, s.Token)

			return sendLinked(ctx, next, signed)
		})
	}
}

// sendLinked sends req and records it on a response that came back
// without one, so the authenticator can read the headers that failed.
func sendLinked(ctx context.Context, next transport.Sender, req *transport.Request) (*transport.Response, error) {
	resp, err := next.Send(ctx, req)
	if resp != nil && resp.Request == nil {
		resp.Request = req
	}

	return resp, err
}

func setAuthHeaders(req *transport.Request, tok *models.GuestToken) {
	req.Header.Set(transport.HeaderAuthorization, tok.TokenType+" "+tok.AccessToken)
	req.Header.Set(transport.HeaderGuestToken, tok.GuestToken)
}

// RemapForbidden turns a 403 into a 401 with message "Unauthorized" so the
// authenticator sees it. The remapped response is a copy; every other
// response is returned as-is.
func RemapForbidden() transport.Middleware {
	return func(next transport.Sender) transport.Sender {
		return transport.SenderFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			resp, err := next.Send(ctx, req)
			if err != nil || resp == nil {
				return resp, err
			}

			return remapForbidden(resp), nil
		})
	}
}

func remapForbidden(resp *transport.Response) *transport.Response {
	if resp.StatusCode != http.StatusForbidden {
		return resp
	}

	remapped := *resp
	remapped.StatusCode = http.StatusUnauthorized
	remapped.Message = "Unauthorized"

	return &remapped
}

// CanRetry reports whether resp is early enough in its retry chain to be
// retried.
func CanRetry(resp *transport.Response) bool {
	return 1+resp.PriorCount() < maxAttempts
}

// Authenticator refreshes the guest session after a 401 and re-signs the
// request that failed.
type Authenticator struct {
	sessions SessionProvider
	logger   *slog.Logger
}

// NewAuthenticator creates an Authenticator over sessions.
func NewAuthenticator(sessions SessionProvider, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = logging.Discard()
	}

	return &Authenticator{sessions: sessions, logger: logger}
}

// Authenticate implements transport.Authenticator. It returns nil when the
// retry budget is spent or no new session could be obtained.
func (a *Authenticator) Authenticate(ctx context.Context, resp *transport.Response) *transport.Request {
	if !CanRetry(resp) || resp.Request == nil {
		return nil
	}

	expired := expiredSession(resp.Request.Header)

	s, err := a.sessions.RefreshSession(ctx, expired)
	if err != nil {
		a.logger.Warn("guest: re-authentication failed",
			slog.String("url", resp.Request.URL),
			slog.String("error", err.Error()),
		)

		return nil
	}

	if s == nil || s.Token == nil {
		return nil
	}

	followUp := resp.Request.Clone()
	setAuthHeaders(followUp, s.Token)

	return followUp
}

// expiredSession rebuilds the session a request was signed with from its
// headers. It returns nil for an unsigned request.
func expiredSession(h http.Header) *models.GuestSession {
	auth := h.Get(transport.HeaderAuthorization)
	guestToken := h.Get(transport.HeaderGuestToken)

	if auth == "" || guestToken == "" {
		return nil
	}

	tokenType, accessToken, ok := strings.Cut(auth, " ")
	if !ok {
		tokenType, accessToken = models.TokenTypeBearer, auth
	}

	return &models.GuestSession{Token: &models.GuestToken{
		TokenType:   tokenType,
		AccessToken: accessToken,
		GuestToken:  guestToken,
	}}
}
