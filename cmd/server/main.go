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

	"github.com/JonMunkholm/bulkimport/internal/application"
	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/logging"
	"github.com/JonMunkholm/bulkimport/internal/web"
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
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"checkpoint_backend", cfg.Checkpoint.Backend,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	app, err := application.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// A nil *core.HistoryStore must reach the server as a nil interface.
	var history web.RunHistory
	if app.History != nil {
		history = app.History
	}
	server := web.NewServer(app.Service, history, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	go func() {
		if err := app.StartBackground(jobCtx); err != nil {
			slog.Error("history purge not started", "error", err)
		}
	}()

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for running imports to complete (with timeout)
		running := app.Service.Running()
		if running.Limiter.Active > 0 {
			slog.Info("waiting for imports to complete", "active", running.Limiter.Active)
			if err := app.Service.WaitForRuns(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		return
	}
	<-shutdownDone
	slog.Info("server stopped")
}
