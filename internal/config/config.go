package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/twitter-archive/twitterkit-auth/internal/models"
)

// Config holds all environment-based configuration for twitterkit.
type Config struct {
	// Consumer application credentials (required).
	ConsumerKey    string `env:"TWITTER_CONSUMER_KEY"`
	ConsumerSecret string `env:"TWITTER_CONSUMER_SECRET"`

	// Optional user credentials. When both are set, user-context commands
	// sign with them instead of the stored session.
	AccessToken  string `env:"TWITTER_ACCESS_TOKEN"`
	AccessSecret string `env:"TWITTER_ACCESS_SECRET"`

	// API host. Paths such as /oauth2/token are appended to it.
	APIURL string `env:"TWITTER_API_URL" envDefault:"https://api.twitter.com"`

	// Callback URL sent with request_token. The client version and
	// consumer key are appended as query parameters.
	CallbackURL string `env:"TWITTER_CALLBACK_URL" envDefault:"twittersdk://callback"`

	// Session database path. Defaults to ~/.twitterkit/state.db.
	StatePath string `env:"TWITTERKIT_STATE_PATH"`

	// Timeout applied to every HTTP call made by the transport.
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the consumer secret to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StatePath == "" {
		path, err := DefaultStatePath()
		if err != nil {
			return nil, err
		}

		cfg.StatePath = path
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ConsumerKey == "" {
		return fmt.Errorf("TWITTER_CONSUMER_KEY is required")
	}

	if c.ConsumerSecret == "" {
		return fmt.Errorf("TWITTER_CONSUMER_SECRET is required")
	}

	// A token without its secret cannot sign anything.
	if (c.AccessToken == "") != (c.AccessSecret == "") {
		return fmt.Errorf("TWITTER_ACCESS_TOKEN and TWITTER_ACCESS_SECRET must be set together")
	}

	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("TWITTER_API_URL must be an absolute URL, got %q", c.APIURL)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}

	return nil
}

// DefaultStatePath returns ~/.twitterkit/state.db.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".twitterkit", "state.db"), nil
}

// AuthConfig returns the consumer credentials.
func (c *Config) AuthConfig() models.AuthConfig {
	return models.AuthConfig{
		ConsumerKey:    c.ConsumerKey,
		ConsumerSecret: c.ConsumerSecret,
	}
}

// UserToken returns the configured user credentials, or nil when none are
// set.
func (c *Config) UserToken() *models.UserToken {
	if c.AccessToken == "" {
		return nil
	}

	return &models.UserToken{Token: c.AccessToken, Secret: c.AccessSecret}
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
