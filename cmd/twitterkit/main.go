package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/twitter-archive/twitterkit-auth/internal/config"
	"github.com/twitter-archive/twitterkit-auth/internal/guest"
	"github.com/twitter-archive/twitterkit-auth/internal/logging"
	"github.com/twitter-archive/twitterkit-auth/internal/oauth1"
	"github.com/twitter-archive/twitterkit-auth/internal/state"
	"github.com/twitter-archive/twitterkit-auth/internal/transport"
)

var Version = "dev"

var _ guest.SessionStore = (*state.State)(nil)

const usage = `usage: twitterkit <command> [flags]

commands:
  sign     print the OAuth1 Authorization header for a request
  echo     print OAuth Echo headers for account/verify_credentials
  login    run the three-legged login flow and store the session
  logout   remove the active user session
  guest    print the current guest token, refreshing it if needed
  get      send guest (or -user) GET requests concurrently
  version  print the version
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every command needs. Commands that do not touch the
// session database leave state nil.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	sender transport.Sender
	signer *oauth1.Signer
	state  *state.State
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	cmd, args := args[0], args[1:]

	if cmd == "version" {
		fmt.Fprintln(out, Version)
		return nil
	}

	commands := map[string]func(context.Context, *app, []string) error{
		"sign":   runSign,
		"echo":   runEcho,
		"login":  runLogin,
		"logout": runLogout,
		"guest":  runGuest,
		"get":    runGet,
	}

	fn, ok := commands[cmd]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel, os.Stderr)
	logger.Debug("twitterkit starting",
		slog.String("version", Version),
		slog.String("command", cmd),
		slog.String("api", cfg.APIURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{
		cfg:    cfg,
		logger: logger,
		out:    out,
		sender: transport.NewHTTPSender(&http.Client{Timeout: cfg.HTTPTimeout}),
		signer: oauth1.NewSigner(cfg.AuthConfig(), logger),
	}

	// sign and echo only need the database when no token is configured.
	if needsState(cmd, cfg) {
		appState, err := state.LoadAt(cfg.StatePath)
		if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}
		defer appState.Close()

		a.state = appState
	}

	return fn(ctx, a, args)
}

func needsState(cmd string, cfg *config.Config) bool {
	switch cmd {
	case "sign", "echo":
		return cfg.UserToken() == nil
	default:
		return true
	}
}
