// Package main runs the background ingest worker: queued recordings and transcode reconciliation.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/config"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/app"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	ctx := context.Background()
	pipeline, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init pipeline", zap.Error(err))
	}
	defer pipeline.Close()
	if pipeline.Queue == nil {
		logger.Fatal("worker requires REDIS_ADDR")
	}

	processor := worker.NewIngestProcessor(pipeline.Coordinator, pipeline.Queue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	if cfg.Reconcile.RecoverOnStart {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pipeline.Recover(workerCtx)
		}()
	}
	for i := 0; i < cfg.Ingest.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor.Run(workerCtx)
		}()
	}
	logger.Info("worker started", zap.Int("concurrency", cfg.Ingest.Concurrency))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	logger.Info("worker stopped")
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		config.Level = lvl
	}
	logger, _ := config.Build()
	return logger
}
