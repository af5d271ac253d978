package oauth1

import (
	"context"
	"net/url"
	"strings"

	"github.com/twitter-archive/twitterkit-auth/internal/models"
	"github.com/twitter-archive/twitterkit-auth/internal/transport"
	"github.com/twitter-archive/twitterkit-auth/internal/urlcodec"
)

// Middleware signs every request with token in the user context. The
// request query is re-encoded with PercentEncode first so that what goes on
// the wire is exactly what was signed.
func Middleware(signer *Signer, token *models.UserToken) transport.Middleware {
	return func(next transport.Sender) transport.Sender {
		return transport.SenderFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			signed := req.Clone()
			signed.URL = normalizeQuery(signed.URL)

			signed.Header.Set(transport.HeaderAuthorization, signer.AuthorizationHeader(Request{
				Token:      token,
				Method:     signed.Method,
				URL:        signed.URL,
				PostParams: signed.FormParams(),
			}))

			return next.Send(ctx, signed)
		})
	}
}

// normalizeQuery rewrites each query pair as PercentEncode(decoded),
// keeping the original order. Unparseable URLs are returned as-is.
func normalizeQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}

	var pairs []string

	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}

		key, value, hasValue := strings.Cut(pair, "=")
		encoded := urlcodec.PercentEncode(urlcodec.URLDecode(key))

		if hasValue {
			encoded += "=" + urlcodec.PercentEncode(urlcodec.URLDecode(value))
		}

		pairs = append(pairs, encoded)
	}

	u.RawQuery = strings.Join(pairs, "&")

	return u.String()
}
