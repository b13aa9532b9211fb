package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"narrativeradar/internal/app"
	"narrativeradar/internal/config"
	"narrativeradar/internal/logging"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logging.New("info").Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("init app", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Serve(ctx); err != nil {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}
