// Package transport defines the request/response boundary the signing core
// works against. The core never opens sockets itself: it decorates a
// Sender supplied by the host.
package transport

import (
	"context"
	"net/http"

	"github.com/twitter-archive/twitterkit-auth/internal/urlcodec"
)

//go:generate mockgen -destination=mock_sender.go -package=transport . Sender

// Header names used on the wire.
const (
	HeaderAuthorization               = "Authorization"
	HeaderGuestToken                  = "x-guest-token"
	HeaderAuthServiceProvider         = "X-Auth-Service-Provider"
	HeaderVerifyCredentialsAuthorizer = "X-Verify-Credentials-Authorization"
	HeaderContentType                 = "Content-Type"
)

// ContentTypeForm is sent with every form-encoded body.
const ContentTypeForm = "application/x-www-form-urlencoded;charset=UTF-8"

// Request is an outbound HTTP request. URL includes the query string.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Form   []urlcodec.FormParam
}

// NewRequest creates a request with an empty header map.
func NewRequest(method, rawURL string, form ...urlcodec.FormParam) *Request {
	return &Request{
		Method: method,
		URL:    rawURL,
		Header: make(http.Header),
		Form:   form,
	}
}

// Clone returns a deep copy of r so middleware can modify headers without
// touching a request that may be resent.
func (r *Request) Clone() *Request {
	c := &Request{
		Method: r.Method,
		URL:    r.URL,
		Header: r.Header.Clone(),
	}

	if c.Header == nil {
		c.Header = make(http.Header)
	}

	if r.Form != nil {
		c.Form = append([]urlcodec.FormParam(nil), r.Form...)
	}

	return c
}

// FormParams returns the form body as a name/value map. Later duplicates
// win, matching urlcodec.QueryParams.
func (r *Request) FormParams() map[string]string {
	if len(r.Form) == 0 {
		return nil
	}

	params := make(map[string]string, len(r.Form))
	for _, p := range r.Form {
		params[p.Name] = p.Value
	}

	return params
}

// Response is an inbound HTTP response. Prior links to the response that
// triggered this attempt, if any, and is used to bound retries. Request is
// the request that produced it; senders may leave it nil, in which case
// WithAuthenticator fills it in.
type Response struct {
	StatusCode int
	Message    string
	Header     http.Header
	Body       []byte
	Request    *Request
	Prior      *Response
}

// PriorCount returns the number of responses preceding r in its retry
// chain.
func (r *Response) PriorCount() int {
	n := 0
	for p := r.Prior; p != nil; p = p.Prior {
		n++
	}

	return n
}

// IsSuccess reports whether the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Sender sends a single request.
type Sender interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, req *Request) (*Response, error)

// Send calls f(ctx, req).
func (f SenderFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware decorates a Sender.
type Middleware func(next Sender) Sender

// Chain wraps s with mw. The first middleware is the outermost, so it sees
// the request first and the response last.
func Chain(s Sender, mw ...Middleware) Sender {
	for i := len(mw) - 1; i >= 0; i-- {
		s = mw[i](s)
	}

	return s
}
