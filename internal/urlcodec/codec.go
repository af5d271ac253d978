// Package urlcodec implements the percent-encoding and query parsing rules
// used when signing Twitter API requests.
//
// Nothing in this package returns an error. Strings arriving from the
// network are decoded on a best-effort basis so that a malformed query can
// never abort request signing.
package urlcodec

import (
	"net/url"
	"sort"
	"strings"
)

// oauthEscaper rewrites URLEncode output into the RFC 5849 §3.6
// unreserved set.
var oauthEscaper = strings.NewReplacer(
	"*", "%2A",
	"+", "%20",
	"%7E", "~",
)

// FormParam is one name/value pair of a form-encoded body. Order matters
// on the wire, so bodies are slices rather than maps.
type FormParam struct {
	Name  string
	Value string
}

// Params is a set of request parameters. Iteration through Keys is sorted
// by raw parameter name, which is the order OAuth1.0a signs them in.
type Params map[string]string

// Keys returns the parameter names in byte-wise lexicographic order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Merge copies every entry of other into p. Existing keys are overwritten.
func (p Params) Merge(other map[string]string) {
	for k, v := range other {
		p[k] = v
	}
}

// URLEncode form-encodes s as UTF-8. Empty input yields "".
func URLEncode(s string) string {
	if s == "" {
		return ""
	}

	return url.QueryEscape(s)
}

// URLDecode reverses URLEncode. Malformed escapes are returned verbatim.
func URLDecode(s string) string {
	if s == "" {
		return ""
	}

	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}

	return decoded
}

// PercentEncode encodes s for use in OAuth1.0a signature base strings and
// Authorization headers: spaces become %20, '*' becomes %2A and '~' is left
// alone.
func PercentEncode(s string) string {
	if s == "" {
		return ""
	}

	return oauthEscaper.Replace(URLEncode(s))
}

// QueryParams parses an "a=1&b=2" string. Each pair is split on its first
// '='; a pair without '=' becomes a key with an empty value. Empty keys are
// dropped and the last occurrence of a duplicate key wins. When decode is
// true, keys and values are URL-decoded.
func QueryParams(input string, decode bool) Params {
	params := make(Params)
	if input == "" {
		return params
	}

	for _, pair := range strings.Split(input, "&") {
		key, value, _ := strings.Cut(pair, "=")
		if decode {
			key = URLDecode(key)
			value = URLDecode(value)
		}

		if key == "" {
			continue
		}

		params[key] = value
	}

	return params
}

// QueryParamsFromURL parses the raw query of rawURL. An unparseable URL
// produces an empty set.
func QueryParamsFromURL(rawURL string, decode bool) Params {
	u, err := url.Parse(rawURL)
	if err != nil {
		return make(Params)
	}

	return QueryParams(u.RawQuery, decode)
}

// EncodeForm renders params as an application/x-www-form-urlencoded body,
// preserving their order.
func EncodeForm(params []FormParam) string {
	var sb strings.Builder

	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}

		sb.WriteString(PercentEncode(p.Name))
		sb.WriteByte('=')
		sb.WriteString(PercentEncode(p.Value))
	}

	return sb.String()
}
