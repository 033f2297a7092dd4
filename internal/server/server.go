// Package server is the composition root: it opens the store, builds the
// services and handlers, mounts them on one chi router and runs the HTTP
// server until SIGINT or SIGTERM.
//
// DEPENDENCY FLOW:
//
//	config.Config
//	  → Store (sqlite or postgres)     implements both repository interfaces
//	  → SnippetService, AuthService, RunService
//	  → SnippetHandler, AuthHandler, UserHandler
//	  → NewRouter
//
// Nothing below this package knows which database or runner is in use.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/snippet-share/internal/auth"
	"github.com/sakif/snippet-share/internal/config"
	"github.com/sakif/snippet-share/internal/executor"
	"github.com/sakif/snippet-share/internal/executor/docker"
	"github.com/sakif/snippet-share/internal/handler"
	"github.com/sakif/snippet-share/internal/highlight"
	"github.com/sakif/snippet-share/internal/middleware"
	"github.com/sakif/snippet-share/internal/repository"
	postgresRepo "github.com/sakif/snippet-share/internal/repository/postgres"
	sqliteRepo "github.com/sakif/snippet-share/internal/repository/sqlite"
	"github.com/sakif/snippet-share/internal/service"
)

// Store is a database backend. Both repository packages satisfy it.
type Store interface {
	repository.SnippetRepository
	repository.UserRepository
	Close() error
}

var (
	_ Store = (*sqliteRepo.DB)(nil)
	_ Store = (*postgresRepo.DB)(nil)
)

// OpenStore opens the backend selected by cfg.DBDriver and migrates it.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := postgresRepo.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverSQLite:
		if cfg.DBPath != ":memory:" {
			// Like `mkdir -p`: the data directory may not exist on first start.
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

// Deps is everything the router needs. Tokens, GitHub and Runs' runner may be
// absent; the corresponding features then answer 401 or 503, or are not routed.
type Deps struct {
	Snippets *service.SnippetService
	Runs     *service.RunService
	Auth     *service.AuthService
	Tokens   *auth.TokenService
	GitHub   *auth.GitHubProvider
	Logger   *slog.Logger
}

// NewRouter builds the HTTP API.
//
// MIDDLEWARE ORDER:
// RequestID runs first so the logger sees the id; Recoverer sits inside
// Logger so a panic is still logged as a 500; Authenticate resolves the actor
// for every route, and RequireAuth guards only the routes that need a user.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(auth.Authenticate(d.Tokens))

	ttl := 24 * time.Hour
	if d.Tokens != nil {
		ttl = d.Tokens.TTL()
	}

	snippets := handler.NewSnippetHandler(d.Snippets, d.Runs, d.Logger)
	users := handler.NewUserHandler(d.Auth, d.Logger)
	authHandler := handler.NewAuthHandler(d.Auth, d.GitHub, ttl, d.Logger)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		if d.GitHub != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/languages", snippets.HandleLanguages)
		r.Get("/styles", snippets.HandleStyles)

		r.Route("/snippets", func(r chi.Router) {
			r.Get("/", snippets.HandleList)
			r.With(auth.RequireAuth).Post("/", snippets.HandleCreate)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", snippets.HandleGet)
				r.Get("/highlight", snippets.HandleHighlight)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireAuth)
					r.Patch("/", snippets.HandlePatch)
					r.Put("/", snippets.HandlePut)
					r.Delete("/", snippets.HandleDelete)
					r.Post("/run", snippets.HandleRun)
				})
			})
		})

		r.Get("/users", users.HandleList)
		r.Get("/users/{id}", users.HandleGet)
		r.With(auth.RequireAuth).Get("/me", users.HandleMe)
	})

	return r
}

// Server owns the store and the runner and closes both on shutdown.
type Server struct {
	config *config.Config
	logger *slog.Logger
	store  Store
	runner *docker.Executor
	router http.Handler
}

// New wires the whole application from cfg.
//
// A runner that cannot start (no Docker daemon, image pull failure) is logged
// and left out; the server still starts and /run answers 503.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var tokens *auth.TokenService
	if cfg.JWTSecret != "" {
		tokens, err = auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("configuring sessions: %w", err)
		}
	} else {
		logger.Warn("JWT_SECRET not set: authentication is disabled")
	}

	var github *auth.GitHubProvider
	if cfg.GitHub.Enabled() {
		github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	}

	s := &Server{config: cfg, logger: logger, store: store}

	// A nil *docker.Executor must not become a non-nil executor.Runner.
	var runner executor.Runner
	if cfg.Runner.Enabled {
		runCfg := docker.DefaultConfig()
		runCfg.Image = cfg.Runner.Image
		runCfg.Timeout = cfg.Runner.Timeout
		runCfg.PoolSize = cfg.Runner.PoolSize

		exec, err := docker.New(ctx, runCfg, logger)
		if err != nil {
			logger.Warn("snippet runner unavailable", slog.String("error", err.Error()))
		} else {
			s.runner = exec
			runner = exec
		}
	}

	catalog := highlight.Default()
	snippetService := service.NewSnippetService(store, catalog, highlight.NewRenderer(catalog), logger)

	s.router = NewRouter(Deps{
		Snippets: snippetService,
		Runs:     service.NewRunService(snippetService, runner, logger),
		Auth:     service.NewAuthService(store, tokens, auth.NewPasswordService(), logger),
		Tokens:   tokens,
		GitHub:   github,
		Logger:   logger,
	})
	return s, nil
}

// Start serves HTTP until SIGINT/SIGTERM, then drains in-flight requests for
// up to 30 seconds and releases the runner and the database.
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // a run may take the full runner timeout
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBDriver),
			slog.Bool("runner", s.runner != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) close() {
	if s.runner != nil {
		if err := s.runner.Close(); err != nil {
			s.logger.Error("closing runner", slog.String("error", err.Error()))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("closing database", slog.String("error", err.Error()))
	}
}
