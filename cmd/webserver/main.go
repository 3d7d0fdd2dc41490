package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RealKorush/bahbah/internal/app"
	"github.com/RealKorush/bahbah/internal/config"
)

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

func runHTTPServer(ctx context.Context, srv httpServer, logger *slog.Logger) {
	go func() {
		logger.Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		slog.Error("init logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	srv, stats, cleanup, err := app.NewServer(cfg, logger)
	if err != nil {
		logger.Error("init server", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runHTTPServer(ctx, srv, logger.With("addr", srv.Addr))

	runs, records := stats()
	logger.Info("shutdown summary", "runs", runs, "records", records)
}
