// Package server provides the loopback HTTP listener that receives the
// browser redirect at the end of the three-legged login flow.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/twitter-archive/twitterkit-auth/internal/logging"
	"github.com/twitter-archive/twitterkit-auth/internal/oauth1"
)

// Callback is what the authorize page redirected back with. Denied is set
// when the user refused access; Token then holds the denied request token.
type Callback struct {
	Token    string
	Verifier string
	Denied   bool
}

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	// CallbackPath is the path component of the registered callback URL.
	CallbackPath string
	Results      chan<- Callback
	Logger       *slog.Logger
}

// NewMux builds a mux with a single callback endpoint. Each valid redirect
// is delivered to Results without blocking; redirects arriving while a
// previous result is unread are dropped.
func NewMux(cfg MuxConfig) *http.ServeMux {
	path := cfg.CallbackPath
	if path == "" {
		path = "/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+path, HandleCallback(cfg.Results, cfg.Logger))

	return mux
}

// HandleCallback parses oauth_token plus oauth_verifier, or denied, from
// the redirect query.
func HandleCallback(results chan<- Callback, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = logging.Discard()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var cb Callback

		switch {
		case q.Get(oauth1.ParamVerifier) != "":
			cb = Callback{Token: q.Get(oauth1.ParamToken), Verifier: q.Get(oauth1.ParamVerifier)}
		case q.Has("denied"):
			cb = Callback{Token: q.Get("denied"), Denied: true}
		default:
			http.Error(w, "missing oauth_verifier", http.StatusBadRequest)
			return
		}

		select {
		case results <- cb:
		default:
			logger.Warn("dropping duplicate login callback")
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		if cb.Denied {
			fmt.Fprintln(w, "Authorization was denied. You can close this window.")
			return
		}

		fmt.Fprintln(w, "Login complete. You can close this window.")
	}
}

// WaitForCallback serves NewMux on addr until a callback arrives or ctx is
// done.
func WaitForCallback(ctx context.Context, addr, path string, logger *slog.Logger) (*Callback, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for callback: %w", err)
	}

	return serveCallback(ctx, ln, path, logger)
}

func serveCallback(ctx context.Context, ln net.Listener, path string, logger *slog.Logger) (*Callback, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	results := make(chan Callback, 1)

	srv := &http.Server{
		Handler: NewMux(MuxConfig{
			CallbackPath: path,
			Results:      results,
			Logger:       logger,
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- srv.Serve(ln)
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Debug("waiting for login callback", slog.String("addr", ln.Addr().String()))

	select {
	case cb := <-results:
		return &cb, nil
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil, errors.New("callback server stopped")
		}

		return nil, fmt.Errorf("serving callback: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
