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

// One ingest pass (feeds, then search) and exit; suited to an external cron.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fallback().Fatal("load config failed", zap.Error(err))
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		logger.Fallback().Fatal("init logger failed", zap.Error(err))
	}

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("init app failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	sum := a.Scheduler.RunIngest(ctx)
	stop()

	if err := a.Close(); err != nil {
		log.Warn("close store failed", zap.Error(err))
	}
	_ = log.Sync()
	if sum.Error != "" {
		os.Exit(1)
	}
}
