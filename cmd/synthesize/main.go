package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/LJTian/countywire/internal/app"
	"github.com/LJTian/countywire/internal/config"
	"github.com/LJTian/countywire/internal/logger"
	"go.uber.org/zap"
)

// One synthesis pass over every catalog region for the current window.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fallback().Fatal("load config failed", zap.Error(err))
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		logger.Fallback().Fatal("init logger failed", zap.Error(err))
	}
	if cfg.GeneratorURL == "" {
		log.Fatal("GENERATOR_URL is required for synthesis")
	}

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("init app failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	sum := a.Scheduler.RunSynthesis(ctx)
	stop()

	if err := a.Close(); err != nil {
		log.Warn("close store failed", zap.Error(err))
	}
	_ = log.Sync()
	if sum.Failed > 0 && sum.Created == 0 {
		os.Exit(1)
	}
}
