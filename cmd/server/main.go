// Command server runs the snippet-share HTTP API.
//
// The main package stays minimal: load configuration, build the logger, hand
// both to internal/server and block until shutdown. Everything it reads is
// documented in internal/config.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/snippet-share/internal/config"
	"github.com/sakif/snippet-share/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	// Bounds database migration and the runner's image pull.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	srv, err := server.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
