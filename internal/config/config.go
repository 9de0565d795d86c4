package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for wardctl.
type Config struct {
	// Base URL of the facility API, e.g. https://ward.example.com.
	APIURL string `env:"WARD_API_URL"`

	// Host for the live vitals WebSocket feed. If empty, it is derived
	// from APIURL.
	VitalsHost string `env:"WARD_VITALS_HOST"`

	// Path to the session database. Defaults to ~/.wardctl/session.db.
	SessionPath string `env:"WARD_SESSION_PATH"`

	// Timeout applied to every HTTP call, including the token refresh
	// exchange and the post-refresh retry.
	HTTPTimeout time.Duration `env:"WARD_HTTP_TIMEOUT" envDefault:"15s"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.SessionPath == "" {
		path, err := DefaultSessionPath()
		if err != nil {
			return nil, err
		}

		cfg.SessionPath = path
	}

	if cfg.VitalsHost == "" {
		u, err := url.Parse(cfg.APIURL)
		if err != nil {
			return nil, fmt.Errorf("deriving vitals host from WARD_API_URL: %w", err)
		}

		cfg.VitalsHost = u.Host
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("WARD_API_URL is required")
	}

	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("WARD_API_URL must be an absolute URL")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("WARD_API_URL scheme must be http or https, got %q", u.Scheme)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("WARD_HTTP_TIMEOUT must be positive")
	}

	// Trailing slashes on the base URL would produce double-slash request
	// paths once endpoint paths are appended.
	c.APIURL = strings.TrimRight(c.APIURL, "/")

	return nil
}

// DefaultSessionPath returns the default session database location:
// ~/.wardctl/session.db
func DefaultSessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".wardctl", "session.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
