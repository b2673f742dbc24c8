package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	logpkg "github.com/avdivo/dev-organizer/internal/logger"
	chiTransport "github.com/avdivo/dev-organizer/internal/transport/chi"
	reminderuc "github.com/avdivo/dev-organizer/internal/usecase/reminder"
	"github.com/avdivo/dev-organizer/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the reminder scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logpkg.NewLogger(env, logpkg.Options{Level: cfg.Logging.Level})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting organizer API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, reminderuc.LogNotifier{Logger: logger}, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Scheduler.Enabled {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer func() {
			if err := a.scheduler.Stop(); err != nil {
				logger.Error("Error stopping scheduler", zap.Error(err))
			}
		}()
		logger.Info("Reminder scheduler started", zap.Int("restored", a.scheduler.Scheduled()))
	}

	// A nil *Tracker must not become a non-nil interface.
	var usage chiTransport.UsageReader
	if a.budget != nil {
		usage = a.budget
	}

	server := chiTransport.NewServer(a.assistant, a.planner, a.listSvc, a.health, usage, cfg.Auth.APIKeys, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(),
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}
