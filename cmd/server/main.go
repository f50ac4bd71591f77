// Package main runs the recording ingestion HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/config"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/app"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ingest"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/meetings"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/middleware"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/playback"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/recordings"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/zoom"
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

	// Ingestion runs on the base context so in-flight work ends with the process, not the request.
	ingestCtx, ingestCancel := context.WithCancel(context.Background())
	defer ingestCancel()

	var dispatcher ingest.Dispatcher
	var async *ingest.AsyncDispatcher
	if cfg.Ingest.QueueMode {
		dispatcher = ingest.NewQueueDispatcher(pipeline.Queue, logger)
		logger.Info("webhook deliveries go to the ingest queue")
	} else {
		async = ingest.NewAsyncDispatcher(ingestCtx, pipeline.Coordinator, logger)
		dispatcher = async
	}
	recovered := make(chan struct{})
	go func() {
		defer close(recovered)
		if cfg.Reconcile.RecoverOnStart && !cfg.Ingest.QueueMode {
			pipeline.Recover(ingestCtx)
		}
	}()

	streaming := pipeline.Storage.Bucket(pipeline.Storage.StreamingBucket())
	originals := pipeline.Storage.Bucket(pipeline.Storage.OriginalsBucket())
	resolver := playback.NewResolver(pipeline.Ledger, []playback.Location{streaming, originals}, originals, pipeline.Storage.PresignExpire(), logger)

	var puller recordings.Puller
	var provider meetings.Provider
	if pipeline.Zoom != nil {
		puller = recordings.NewSweeper(pipeline.Zoom, pipeline.Coordinator, cfg.Zoom.UserID, logger)
		provider = pipeline.Zoom
	}
	recordingHandler := recordings.NewHandler(pipeline.Ledger, resolver, puller, originals, logger)
	webhookHandler := recordings.NewWebhookHandler(zoom.NewVerifier(cfg.Zoom.WebhookSecret, cfg.Zoom.MaxSkew), dispatcher, logger)

	var signer meetings.Signer
	if cfg.Zoom.SDKEnabled() {
		signer = zoom.NewSDKSigner(cfg.Zoom.SDKKey, cfg.Zoom.SDKSecret)
	}
	meetingHandler := meetings.NewHandler(pipeline.Ledger, signer, provider, cfg.Zoom.SDKKey, cfg.Zoom.UserID, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	var depth queueDepth
	if cfg.Ingest.QueueMode {
		depth = pipeline.Queue
	}
	router.GET("/health", healthHandler(pipeline.Registry, depth, logger))

	recordingHandler.Register(router)
	meetingHandler.Register(router)
	// Webhooks (no auth; signature verified in handler)
	webhookHandler.Register(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	ingestCancel()
	<-recovered
	if async != nil {
		async.Wait()
	}
	logger.Info("server stopped")
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
