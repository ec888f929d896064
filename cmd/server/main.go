package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/inveelabs/masterdata/internal/catalog"
	"github.com/inveelabs/masterdata/internal/config"
	"github.com/inveelabs/masterdata/internal/importer"
	"github.com/inveelabs/masterdata/internal/logging"
	"github.com/inveelabs/masterdata/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"catalog_timeout", cfg.Catalog.Timeout,
		"upload_timeout", cfg.Upload.Timeout,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Client for the persistence service's CRUD API
	client := catalog.NewClient(cfg.Catalog.URL, cfg.Catalog.Timeout)

	// Reconciliation service for bulk imports
	service := importer.NewService(client, cfg.Upload.Timeout)

	server := web.NewServer(cfg, client, service)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
