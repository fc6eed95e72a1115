package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/countywire/internal/api"
	"github.com/LJTian/countywire/internal/app"
	"github.com/LJTian/countywire/internal/config"
	"github.com/LJTian/countywire/internal/logger"
	"github.com/LJTian/countywire/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const version = "1.0.0"

// Long-running process: read API plus the cron-driven ingest and synthesis passes.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fallback().Fatal("load config failed", zap.Error(err))
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		logger.Fallback().Fatal("init logger failed", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()
	metrics.Init("api", version)

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("init app failed", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close store failed", zap.Error(err))
		}
	}()

	if cfg.GeneratorURL == "" {
		log.Warn("GENERATOR_URL not set; synthesis passes will fail until it is configured")
	}
	a.Scheduler.Start()
	defer a.Scheduler.Stop()

	if !cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(log.Named("http")))
	// /health and /metrics stay open for probes
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}
	api.NewServer(a.Store, log.Named("api")).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("starting api server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server exit", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
}
