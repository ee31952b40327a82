package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/simple-document/pkg/docstore/config"
	"github.com/tendant/simple-document/pkg/docstore/janitor"
)

func main() {
	if err := run(); err != nil {
		slog.Error("docserver failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.WithDotEnv(), config.WithEnv())
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	ctx := context.Background()
	app, err := cfg.Build(ctx, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	var jan *janitor.Janitor
	if cfg.CleanupSchedule != "" {
		jan, err = janitor.New(cfg.CleanupSchedule,
			[]janitor.Cleaner{app.Documents, app.Templates.Store()},
			janitor.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		jan.Start()
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("document server starting", "port", cfg.Port, "backend", app.Backends.Kind, "commands", app.Registry.Len())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-quit:
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if jan != nil {
		jan.Stop(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exiting")
	return nil
}
