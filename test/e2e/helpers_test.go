package e2e_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twitter-archive/twitterkit-auth/internal/guest"
	"github.com/twitter-archive/twitterkit-auth/internal/models"
	"github.com/twitter-archive/twitterkit-auth/internal/oauth1"
	"github.com/twitter-archive/twitterkit-auth/internal/state"
	"github.com/twitter-archive/twitterkit-auth/internal/transport"
	"github.com/twitter-archive/twitterkit-auth/internal/urlcodec"
)

const (
	testConsumerKey    = "cChZNFj6T5R0TigYB9yd1w"
	testConsumerSecret = "L8qq9PZyRg6ieKGEKhZolGC0vJWLw8iEJ88DRdyOg"

	bearerAccessToken = "AAAAAAAAAAAAAAAAAAAAAE2e"

	tempToken    = "NPcudxy0yU5T3tBzho7iCotZ3cnetKwcTIRlX0iwRl0"
	tempSecret   = "veNRnAWe6inFuo8o2u8SLLZLjolYDmDP7SzL0YfYI"
	goodVerifier = "uw7NjWHT6OJ1MpJOXsHfNxoAhPKpgI8BlYDhxEjIBY"

	userID     = 38895958
	userName   = "theseancook"
	userToken  = "38895958-user-token"
	userSecret = "user-secret"

	showPath = "/1.1/statuses/show.json"
)

var testAuthConfig = models.AuthConfig{
	ConsumerKey:    testConsumerKey,
	ConsumerSecret: testConsumerSecret,
}

// fakeTwitter is an in-process stand-in for the API. It issues sequential
// guest tokens, accepts only the most recent one, and verifies OAuth1
// signatures by recomputing them.
type fakeTwitter struct {
	URL string

	mu          sync.Mutex
	appCalls    int
	guestCalls  int
	showCalls   int
	guestSeq    int
	validGuest  string
	rejectGuest bool
	secrets     map[string]string
}

func newFakeTwitter(t *testing.T) *fakeTwitter {
	t.Helper()

	f := &fakeTwitter{
		secrets: map[string]string{
			tempToken: tempSecret,
			userToken: userSecret,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", f.handleAppToken)
	mux.HandleFunc("POST /1.1/guest/activate.json", f.handleGuestActivate)
	mux.HandleFunc("POST /oauth/request_token", f.handleRequestToken)
	mux.HandleFunc("POST /oauth/access_token", f.handleAccessToken)
	mux.HandleFunc("GET "+showPath, f.handleShow)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	f.URL = ts.URL

	return f
}

func (f *fakeTwitter) counts() (app, guestActivations, show int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.appCalls, f.guestCalls, f.showCalls
}

func (f *fakeTwitter) setRejectGuest(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rejectGuest = v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeTwitterError(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, map[string]any{
		"errors": []map[string]any{{"code": code, "message": msg}},
	})
}

func (f *fakeTwitter) handleAppToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.appCalls++
	f.mu.Unlock()

	user, pass, ok := r.BasicAuth()
	if !ok || user != testConsumerKey || pass != testConsumerSecret {
		writeTwitterError(w, http.StatusForbidden, 99, "Unable to verify your credentials")
		return
	}

	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		writeTwitterError(w, http.StatusBadRequest, 170, "Missing required parameter: grant_type")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token_type":   "bearer",
		"access_token": bearerAccessToken,
	})
}

func (f *fakeTwitter) handleGuestActivate(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+bearerAccessToken {
		writeTwitterError(w, http.StatusForbidden, 200, "Forbidden.")
		return
	}

	f.mu.Lock()
	f.guestCalls++
	f.guestSeq++
	f.validGuest = fmt.Sprintf("guest-%d", f.guestSeq)
	token := f.validGuest
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"guest_token": token})
}

func (f *fakeTwitter) handleRequestToken(w http.ResponseWriter, r *http.Request) {
	params, ok := f.verifyOAuth(r)
	if !ok || params[oauth1.ParamCallback] == "" {
		writeTwitterError(w, http.StatusUnauthorized, 32, "Could not authenticate you.")
		return
	}

	io.WriteString(w, "oauth_token="+tempToken+"&oauth_token_secret="+tempSecret+"&oauth_callback_confirmed=true")
}

func (f *fakeTwitter) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	params, ok := f.verifyOAuth(r)
	if !ok || params[oauth1.ParamToken] != tempToken {
		writeTwitterError(w, http.StatusUnauthorized, 32, "Could not authenticate you.")
		return
	}

	if r.URL.Query().Get(oauth1.ParamVerifier) != goodVerifier {
		writeTwitterError(w, http.StatusUnauthorized, 89, "Invalid or expired token.")
		return
	}

	fmt.Fprintf(w, "oauth_token=%s&oauth_token_secret=%s&user_id=%d&screen_name=%s",
		userToken, userSecret, userID, userName)
}

func (f *fakeTwitter) handleShow(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.showCalls++
	valid := f.validGuest
	reject := f.rejectGuest
	f.mu.Unlock()

	if strings.HasPrefix(r.Header.Get("Authorization"), "OAuth ") {
		params, ok := f.verifyOAuth(r)
		if !ok || params[oauth1.ParamToken] != userToken {
			writeTwitterError(w, http.StatusUnauthorized, 32, "Could not authenticate you.")
			return
		}
	} else if reject || r.Header.Get(transport.HeaderGuestToken) != valid {
		writeTwitterError(w, http.StatusForbidden, 239, "Bad guest token.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":   r.URL.Query().Get("id"),
		"text": "just setting up my twttr",
	})
}

// verifyOAuth recomputes the HMAC-SHA1 signature of r from the protocol
// parameters in its Authorization header.
func (f *fakeTwitter) verifyOAuth(r *http.Request) (map[string]string, bool) {
	params := parseOAuthHeader(r.Header.Get("Authorization"))
	if params == nil {
		return nil, false
	}

	var tok *models.UserToken

	if name := params[oauth1.ParamToken]; name != "" {
		f.mu.Lock()
		secret, ok := f.secrets[name]
		f.mu.Unlock()

		if !ok {
			return nil, false
		}

		tok = &models.UserToken{Token: name, Secret: secret}
	}

	if err := r.ParseForm(); err != nil {
		return nil, false
	}

	var post map[string]string
	if len(r.PostForm) > 0 {
		post = make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			post[k] = v[len(v)-1]
		}
	}

	base, err := oauth1.SignatureBase(testAuthConfig, oauth1.Request{
		Token:      tok,
		Method:     r.Method,
		URL:        "http://" + r.Host + r.URL.RequestURI(),
		Callback:   params[oauth1.ParamCallback],
		PostParams: post,
	}, params[oauth1.ParamNonce], params[oauth1.ParamTimestamp])
	if err != nil {
		return nil, false
	}

	want := oauth1.Signature(oauth1.SigningKey(testAuthConfig, tok), base)

	return params, want == params[oauth1.ParamSignature]
}

// parseOAuthHeader decodes `OAuth k="v", ...` into a map.
func parseOAuthHeader(h string) map[string]string {
	rest, ok := strings.CutPrefix(h, "OAuth ")
	if !ok {
		return nil
	}

	params := make(map[string]string)

	for _, part := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}

		params[urlcodec.URLDecode(k)] = urlcodec.URLDecode(strings.Trim(v, `"`))
	}

	return params
}

// guestClient wires the guest chain the way the CLI does, with sessions
// persisted to a bbolt file in a temp dir.
type guestClient struct {
	Sender   transport.Sender
	Sessions *guest.SessionManager
	State    *state.State
}

func newGuestClient(t *testing.T, f *fakeTwitter, seed *models.GuestSession) *guestClient {
	t.Helper()

	st, err := state.LoadAt(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	if seed != nil {
		require.NoError(t, st.SetGuestSession(seed))
	}

	logger := slog.New(slog.DiscardHandler)
	httpSender := transport.NewHTTPSender(nil)

	svc := guest.NewOAuth2Service(httpSender, testAuthConfig, f.URL, logger)
	sessions := guest.NewSessionManager(svc, st, logger)

	return &guestClient{
		Sender:   transport.Chain(httpSender, guest.Middleware(sessions, logger)),
		Sessions: sessions,
		State:    st,
	}
}

func newOAuth2Service(f *fakeTwitter) *guest.OAuth2Service {
	return guest.NewOAuth2Service(transport.NewHTTPSender(nil), testAuthConfig, f.URL, nil)
}

func newLoginService(f *fakeTwitter) *oauth1.Service {
	return oauth1.NewService(
		transport.NewHTTPSender(nil),
		oauth1.NewSigner(testAuthConfig, nil),
		oauth1.ServiceConfig{
			APIURL:        f.URL,
			CallbackURL:   "twittersdk://callback",
			ClientVersion: "e2e",
		},
		nil,
	)
}
