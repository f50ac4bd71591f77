// Package app assembles the ingestion pipeline shared by cmd/server and cmd/worker.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/config"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ingest"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ledger"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/reconcile"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/transcode"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/transfer"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/zoom"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/database"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/queue"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/redis"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/storage"
)

// providerTimeout bounds provider API calls; downloads use the request context instead.
const providerTimeout = 30 * time.Second

// App holds the wired pipeline components.
type App struct {
	Ledger      ledger.Ledger
	Storage     *storage.S3
	Transcoder  *transcode.Orchestrator
	Registry    *reconcile.Registry
	Coordinator *ingest.Coordinator

	// Zoom is nil when server-to-server OAuth credentials are not configured.
	Zoom *zoom.Client
	// Queue is nil when Redis is not configured.
	Queue *queue.Queue

	pool   *pgxpool.Pool
	redis  *redis.Client
	logger *zap.Logger
}

// New connects every backing service and wires the pipeline.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger}

	switch cfg.Database.Driver {
	case config.LedgerDriverMemory:
		logger.Warn("using in-memory ledger; state is lost on restart")
		a.Ledger = ledger.NewMemory()
	default:
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		a.pool = pool
		if err := database.Migrate(ctx, pool, logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.Ledger = ledger.NewPostgres(pool)
	}

	var tokenCache zoom.TokenCache
	if cfg.Redis.Enabled() {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = rdb
		a.Queue = queue.NewQueue(rdb.Client, logger)
		tokenCache = zoom.NewRedisTokenCache(rdb.Client, "")
	}

	awsCfg, err := storage.LoadAWSConfig(ctx, cfg.AWS.Region, cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Storage = storage.NewS3(awsCfg, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		OriginalsBucket:      cfg.AWS.OriginalsBucket,
		StreamingBucket:      cfg.AWS.StreamingBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)

	a.Transcoder = transcode.New(transcode.NewClient(awsCfg, cfg.MediaConvert.Endpoint), transcode.Config{
		RoleARN: cfg.MediaConvert.RoleARN,
		Queue:   cfg.MediaConvert.Queue,
	}, logger)

	a.Registry = reconcile.NewRegistry(a.Transcoder, a.Ledger, a.Transcoder.Labels(), cfg.Reconcile.Interval, logger)

	opts := ingest.Options{
		Originals:       a.Storage.Bucket(a.Storage.OriginalsBucket()),
		StreamingBucket: a.Storage.StreamingBucket(),
		Concurrency:     cfg.Ingest.Concurrency,
		PendingLease:    cfg.Ingest.PendingLease,
	}
	var auth ingest.DownloadAuthorizer
	if cfg.Zoom.APIEnabled() {
		a.Zoom = zoom.NewClient(zoom.Config{
			AccountID:    cfg.Zoom.AccountID,
			ClientID:     cfg.Zoom.ClientID,
			ClientSecret: cfg.Zoom.ClientSecret,
			APIBaseURL:   cfg.Zoom.APIBaseURL,
			OAuthBaseURL: cfg.Zoom.OAuthBaseURL,
			LookbackDays: cfg.Zoom.LookbackDays,
		}, &http.Client{Timeout: providerTimeout}, tokenCache, logger)
		auth = a.Zoom
		opts.Hosts = a.Zoom
	} else {
		logger.Warn("zoom API credentials not set; pull sweep disabled and download URLs used as delivered")
	}

	xfer := transfer.New(&http.Client{}, cfg.Ingest.TempDir, logger)
	a.Coordinator = ingest.NewCoordinator(a.Ledger, xfer, auth, a.Transcoder, a.Registry, opts, logger)
	return a, nil
}

// Recover re-attaches watchers to every processing recording, then resumes
// pending recordings left behind by an interrupted ingestion.
func (a *App) Recover(ctx context.Context) {
	if _, err := a.Registry.Recover(ctx); err != nil {
		a.logger.Error("reconcile recovery failed", zap.Error(err))
	}
	if _, err := a.Coordinator.ResumePending(ctx); err != nil {
		a.logger.Error("resume pending recordings failed", zap.Error(err))
	}
}

// Close stops watchers and releases connections.
func (a *App) Close() {
	if a.Registry != nil {
		a.Registry.Shutdown()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
