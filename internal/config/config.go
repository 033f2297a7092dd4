// Package config loads the process configuration from the environment.
//
// A non-empty environment variable wins over the same key in the .env file.
// A missing .env file is not an error.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port        int
	DBDriver    string
	DBPath      string
	DatabaseURL string

	// JWTSecret empty means sessions are disabled: nobody can sign in and
	// every mutating route answers 401.
	JWTSecret string
	TokenTTL  time.Duration

	GitHub GitHubConfig
	Runner RunnerConfig
	Log    LogConfig
}

// GitHubConfig is the OAuth app. Sign-in with GitHub is offered only when
// ClientID is set.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

func (g GitHubConfig) Enabled() bool { return g.ClientID != "" }

type RunnerConfig struct {
	Enabled  bool
	Image    string
	Timeout  time.Duration
	PoolSize int
}

type LogConfig struct {
	Level  slog.Level
	Format string // "text" or "json"
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.Level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Load reads the configuration. envFiles defaults to ".env".
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	file := make(map[string]string)
	for _, name := range envFiles {
		values, err := godotenv.Read(name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: reading %s: %w", name, err)
		}
		for k, v := range values {
			if _, ok := file[k]; !ok {
				file[k] = v
			}
		}
	}

	return parse(func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return file[key]
	})
}

// parse builds a Config from lookup and reports every invalid value at once.
func parse(lookup func(string) string) (*Config, error) {
	p := &parser{lookup: lookup}

	cfg := &Config{
		Port:        p.integer("PORT", 8080),
		DBDriver:    strings.ToLower(p.str("DB_DRIVER", DriverSQLite)),
		DBPath:      p.str("DB_PATH", "data/snippets.db"),
		DatabaseURL: p.str("DATABASE_URL", ""),
		JWTSecret:   p.str("JWT_SECRET", ""),
		TokenTTL:    p.duration("TOKEN_TTL", 24*time.Hour),
		GitHub: GitHubConfig{
			ClientID:     p.str("GITHUB_CLIENT_ID", ""),
			ClientSecret: p.str("GITHUB_CLIENT_SECRET", ""),
			CallbackURL:  p.str("GITHUB_CALLBACK_URL", ""),
		},
		Runner: RunnerConfig{
			Enabled:  p.boolean("RUNNER_ENABLED", false),
			Image:    p.str("RUNNER_IMAGE", "python:3.12-alpine"),
			Timeout:  p.duration("RUNNER_TIMEOUT", 5*time.Second),
			PoolSize: p.integer("RUNNER_POOL_SIZE", 3),
		},
		Log: LogConfig{
			Level:  p.level("LOG_LEVEL", slog.LevelInfo),
			Format: strings.ToLower(p.str("LOG_FORMAT", "text")),
		},
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		p.fail("PORT", "must be between 1 and 65535")
	}
	switch cfg.DBDriver {
	case DriverSQLite:
		if cfg.DBPath == "" {
			p.fail("DB_PATH", "must not be empty")
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			p.fail("DATABASE_URL", "is required when DB_DRIVER is postgres")
		}
	default:
		p.fail("DB_DRIVER", fmt.Sprintf("%q is not sqlite or postgres", cfg.DBDriver))
	}
	if cfg.TokenTTL <= 0 {
		p.fail("TOKEN_TTL", "must be positive")
	}
	if cfg.Runner.Timeout <= 0 {
		p.fail("RUNNER_TIMEOUT", "must be positive")
	}
	if cfg.Runner.PoolSize < 1 {
		p.fail("RUNNER_POOL_SIZE", "must be at least 1")
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		p.fail("LOG_FORMAT", fmt.Sprintf("%q is not text or json", cfg.Log.Format))
	}

	if cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	if len(p.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(p.errs...))
	}
	return cfg, nil
}

type parser struct {
	lookup func(string) string
	errs   []error
}

func (p *parser) fail(key, msg string) {
	p.errs = append(p.errs, fmt.Errorf("%s %s", key, msg))
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.lookup(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, fmt.Sprintf("%q is not an integer", raw))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, fmt.Sprintf("%q is not a boolean", raw))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, fmt.Sprintf("%q is not a duration", raw))
		return def
	}
	return d
}

func (p *parser) level(key string, def slog.Level) slog.Level {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(raw)); err != nil {
		p.fail(key, fmt.Sprintf("%q is not a log level", raw))
		return def
	}
	return l
}
