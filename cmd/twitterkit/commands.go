package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/twitter-archive/twitterkit-auth/internal/guest"
	"github.com/twitter-archive/twitterkit-auth/internal/models"
	"github.com/twitter-archive/twitterkit-auth/internal/oauth1"
	"github.com/twitter-archive/twitterkit-auth/internal/server"
	"github.com/twitter-archive/twitterkit-auth/internal/transport"
)

// userToken returns the configured user token, falling back to the
// active stored session.
func (a *app) userToken() (*models.UserToken, error) {
	if tok := a.cfg.UserToken(); tok != nil {
		return tok, nil
	}

	active, err := a.state.ActiveSession()
	if err != nil {
		return nil, fmt.Errorf("reading active session: %w", err)
	}

	if active == nil {
		return nil, errors.New("no user credentials: set TWITTER_ACCESS_TOKEN or run login")
	}

	a.logger.Debug("using stored session", slog.String("user", active.UserName))

	return &active.Token, nil
}

// apiURL resolves a path such as /1.1/statuses/show.json against the
// configured API host. Absolute URLs are returned unchanged.
func (a *app) apiURL(target string) string {
	if strings.HasPrefix(target, "/") {
		return a.cfg.APIURL + target
	}

	return target
}

func (a *app) guestSessions() *guest.SessionManager {
	svc := guest.NewOAuth2Service(a.sender, a.cfg.AuthConfig(), a.cfg.APIURL, a.logger)
	return guest.NewSessionManager(svc, a.state, a.logger)
}

// formFlag collects repeated -d name=value flags. A repeated name keeps
// its last value; signing sorts parameters, so flag order is irrelevant.
type formFlag map[string]string

func (f formFlag) String() string { return "" }

func (f formFlag) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", v)
	}

	f[name] = value

	return nil
}

func runSign(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	method := fs.String("X", http.MethodGet, "HTTP method")
	form := formFlag{}
	fs.Var(form, "d", "form body parameter name=value (repeatable)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("%w: sign takes exactly one URL", errUsage)
	}

	tok, err := a.userToken()
	if err != nil {
		return err
	}

	header := a.signer.AuthorizationHeader(oauth1.Request{
		Token:      tok,
		Method:     strings.ToUpper(*method),
		URL:        a.apiURL(fs.Arg(0)),
		PostParams: form,
	})

	fmt.Fprintf(a.out, "%s: %s\n", transport.HeaderAuthorization, header)

	return nil
}

func runEcho(_ context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: echo takes no arguments", errUsage)
	}

	tok, err := a.userToken()
	if err != nil {
		return err
	}

	headers := a.signer.VerifyCredentialsEchoHeaders(tok)

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(a.out, "%s: %s\n", name, headers[name])
	}

	return nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: login takes no arguments", errUsage)
	}

	svc := oauth1.NewService(a.sender, a.signer, oauth1.ServiceConfig{
		APIURL:        a.cfg.APIURL,
		CallbackURL:   a.cfg.CallbackURL,
		ClientVersion: Version,
	}, a.logger)

	temp, err := svc.RequestTempToken(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Open this URL to authorize:\n\n  %s\n\n", svc.AuthorizeURL(&temp.Token))

	verifier, err := a.awaitVerifier(ctx, &temp.Token)
	if err != nil {
		return err
	}

	resp, err := svc.RequestAccessToken(ctx, &temp.Token, verifier)
	if err != nil {
		return err
	}

	session := models.NewTwitterSession(resp)
	if err := a.state.SetActiveSession(session); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	a.logger.Info("logged in",
		slog.String("user", session.UserName),
		slog.Int64("id", session.ID),
	)
	fmt.Fprintf(a.out, "Logged in as @%s\n", session.UserName)

	return nil
}

// awaitVerifier waits for the callback when it points at a loopback HTTP
// address, and otherwise asks for the PIN on stdin.
func (a *app) awaitVerifier(ctx context.Context, temp *models.UserToken) (string, error) {
	u, err := url.Parse(a.cfg.CallbackURL)
	if err == nil && u.Scheme == "http" && isLoopback(u.Hostname()) {
		cb, err := server.WaitForCallback(ctx, u.Host, u.Path, a.logger)
		if err != nil {
			return "", err
		}

		if cb.Denied {
			return "", errors.New("authorization denied")
		}

		if cb.Token != "" && cb.Token != temp.Token {
			return "", errors.New("callback token does not match request token")
		}

		return cb.Verifier, nil
	}

	return readPIN(os.Stdin, os.Stderr)
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func readPIN(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Enter PIN: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return "", errors.New("no input")
	}

	pin := strings.TrimSpace(scanner.Text())
	if pin == "" {
		return "", errors.New("empty PIN")
	}

	return pin, nil
}

func runLogout(_ context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: logout takes no arguments", errUsage)
	}

	active, err := a.state.ActiveSession()
	if err != nil {
		return fmt.Errorf("reading active session: %w", err)
	}

	if active == nil {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}

	if err := a.state.ClearSession(active.ID); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}

	fmt.Fprintf(a.out, "Logged out @%s\n", active.UserName)

	return nil
}

func runGuest(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("guest", flag.ContinueOnError)
	refresh := fs.Bool("refresh", false, "discard the held token and fetch a new one")
	clearToken := fs.Bool("clear", false, "remove the stored guest token")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	sessions := a.guestSessions()

	if *clearToken {
		sessions.Clear()
		return nil
	}

	var (
		s   *models.GuestSession
		err error
	)

	if *refresh {
		s, err = sessions.RefreshSession(ctx, sessions.Session())
	} else {
		s, err = sessions.CurrentSession(ctx)
	}

	if err != nil {
		return err
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")

	return enc.Encode(s.Token)
}

func runGet(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	asUser := fs.Bool("user", false, "sign with the user token instead of the guest token")
	concurrency := fs.Int("c", 4, "maximum concurrent requests")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	if fs.NArg() == 0 {
		return fmt.Errorf("%w: get needs at least one URL", errUsage)
	}

	var client transport.Sender

	if *asUser {
		tok, err := a.userToken()
		if err != nil {
			return err
		}

		client = transport.Chain(a.sender, oauth1.Middleware(a.signer, tok))
	} else {
		client = transport.Chain(a.sender, guest.Middleware(a.guestSessions(), a.logger))
	}

	targets := fs.Args()
	responses := make([]*transport.Response, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(*concurrency, 1))

	for i, target := range targets {
		g.Go(func() error {
			resp, err := client.Send(gctx, transport.NewRequest(http.MethodGet, a.apiURL(target)))
			responses[i] = resp

			if err != nil {
				return fmt.Errorf("GET %s: %w", target, err)
			}

			return nil
		})
	}

	err := g.Wait()

	for i, resp := range responses {
		if resp == nil {
			continue
		}

		fmt.Fprintf(a.out, "GET %s -> %d %s\n%s\n", targets[i], resp.StatusCode, resp.Message, resp.Body)
	}

	return err
}
