package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sharmash3/restaurant-review-be/internal/app"
	"github.com/sharmash3/restaurant-review-be/internal/config"
	pkgconfig "github.com/sharmash3/restaurant-review-be/pkg/config"
	"github.com/sharmash3/restaurant-review-be/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("restaurant review service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		slog.Warn("could not load .env file", slog.String("error", err.Error()))
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New("restaurant-review-service", cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting restaurant review service",
		slog.String("environment", cfg.Environment),
		slog.String("version", app.Version),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("store", cfg.StoreBackend),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := application.Run(ctx); err != nil {
		return err
	}

	log.Info("restaurant review service stopped")
	return nil
}
