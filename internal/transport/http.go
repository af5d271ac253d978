package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/twitter-archive/twitterkit-auth/internal/errors"
	"github.com/twitter-archive/twitterkit-auth/internal/urlcodec"
)

// HTTPSender sends requests with a net/http client.
type HTTPSender struct {
	httpClient *http.Client
}

// NewHTTPSender creates a Sender backed by httpClient.
// If httpClient is nil, http.DefaultClient is used.
func NewHTTPSender(httpClient *http.Client) *HTTPSender {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &HTTPSender{httpClient: httpClient}
}

// Send performs req and reads the whole response body. Network failures
// wrap errors.ErrAPIRequest; non-2xx statuses are not errors.
func (s *HTTPSender) Send(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Form) > 0 {
		body = strings.NewReader(urlcodec.EncodeForm(req.Form))
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for name, values := range req.Header {
		httpReq.Header[name] = append([]string(nil), values...)
	}

	if body != nil && httpReq.Header.Get(HeaderContentType) == "" {
		httpReq.Header.Set(HeaderContentType, ContentTypeForm)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", apperrors.ErrAPIRequest, req.Method, httpReq.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", httpReq.URL.Path, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Message:    statusMessage(resp),
		Header:     resp.Header,
		Body:       data,
		Request:    req,
	}, nil
}

// statusMessage strips the numeric code from resp.Status ("200 OK" -> "OK").
func statusMessage(resp *http.Response) string {
	msg := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	msg = strings.TrimSpace(msg)

	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return msg
}
