package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"rollcall/internal/app"
	"rollcall/internal/config"
	"rollcall/internal/logger"
)

// Worker drains the notification queue into the inbox.
func main() {
	if err := config.LoadDotEnv(""); err != nil {
		panic(err)
	}
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.QueueBackend != "redis" {
		log.Warn("queue backend is not redis; this worker only sees messages published in-process",
			zap.String("queue", cfg.QueueBackend))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, log, app.Options{})
	if err != nil {
		log.Fatal("init failed", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	if err := a.Healthy(ctx); err != nil {
		log.Warn("dependencies not healthy at startup", zap.Error(err))
	}

	log.Info("worker started, waiting for messages")
	if err := a.Worker().Run(ctx); err != nil {
		log.Error("worker stopped", zap.Error(err))
		return
	}
	log.Info("worker stopped")
}
