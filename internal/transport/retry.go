package transport

import (
	"context"
	"fmt"
	"net/http"

	apperrors "github.com/twitter-archive/twitterkit-auth/internal/errors"
)

// maxFollowUps bounds the authenticator loop independently of whatever
// policy the Authenticator applies.
const maxFollowUps = 20

// Authenticator produces a follow-up request for a 401 response, or nil
// when the request should not be retried. resp.Request is the request
// that produced resp.
type Authenticator interface {
	Authenticate(ctx context.Context, resp *Response) *Request
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, resp *Response) *Request

// Authenticate calls f(ctx, resp).
func (f AuthenticatorFunc) Authenticate(ctx context.Context, resp *Response) *Request {
	return f(ctx, resp)
}

// WithAuthenticator returns middleware that hands every 401 response to
// auth and resends the request it returns. Each follow-up response links
// to the one before it through Prior. When the final response is still a
// 401 it is returned together with an error wrapping
// errors.ErrReauthExhausted.
//
// Responses that arrive without Request are linked to the request that was
// sent, so the Authenticator can always see what failed.
func WithAuthenticator(auth Authenticator) Middleware {
	return func(next Sender) Sender {
		return SenderFunc(func(ctx context.Context, req *Request) (*Response, error) {
			resp, err := next.Send(ctx, req)
			linkRequest(resp, req)

			for followUps := 0; ; followUps++ {
				if err != nil {
					return resp, err
				}

				if resp.StatusCode != http.StatusUnauthorized {
					return resp, nil
				}

				if followUps >= maxFollowUps {
					break
				}

				followUp := auth.Authenticate(ctx, resp)
				if followUp == nil {
					break
				}

				prior := resp

				resp, err = next.Send(ctx, followUp)
				linkRequest(resp, followUp)

				if resp != nil && resp != prior {
					resp.Prior = prior
				}
			}

			return resp, fmt.Errorf("%w: %d %s", apperrors.ErrReauthExhausted, resp.StatusCode, resp.Message)
		})
	}
}

func linkRequest(resp *Response, req *Request) {
	if resp != nil && resp.Request == nil {
		resp.Request = req
	}
}
