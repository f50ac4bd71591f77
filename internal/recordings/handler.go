package recordings

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ingest"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ledger"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/models"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/playback"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/zoom"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/response"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/storage"
)

// Store is the read and operator surface of the ledger used by the handler.
type Store interface {
	FindRecording(ctx context.Context, recordingID string) (*models.Recording, error)
	ListRecordings(ctx context.Context) ([]models.Recording, error)
	Stats(ctx context.Context) (models.RecordingStats, error)
	ReleaseErrored(ctx context.Context, recordingID string) error
}

// Resolver resolves playback URLs.
type Resolver interface {
	Resolve(ctx context.Context, recordingID string) (*playback.Playback, error)
}

// Puller runs a pull-based ingestion sweep.
type Puller interface {
	Sweep(ctx context.Context) (ingest.Summary, error)
}

// ObjectLister lists stored original assets.
type ObjectLister interface {
	Name() string
	List(ctx context.Context, prefix string) ([]storage.Object, error)
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	store     Store
	resolver  Resolver
	puller    Puller
	originals ObjectLister
	logger    *zap.Logger
}

// NewHandler creates a recordings handler. puller may be nil when the provider
// is not configured, originals when storage listing is not wanted.
func NewHandler(store Store, resolver Resolver, puller Puller, originals ObjectLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, resolver: resolver, puller: puller, originals: originals, logger: logger}
}

// Register mounts the recording routes.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/recordings", h.List)
	r.GET("/recordings/stats", h.Stats)
	r.POST("/recordings/process", h.Process)
	r.GET("/recordings/storage", h.StoredOriginals)
	r.GET("/recordings/:id", h.Get)
	r.GET("/recordings/:id/stream-url", h.StreamURL)
	r.POST("/recordings/:id/release", h.Release)
}

// List handles GET /recordings.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.ListRecordings(c.Request.Context())
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, list)
}

// Get handles GET /recordings/:id.
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.store.FindRecording(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get recording failed", zap.Error(err), zap.String("recording_id", id))
		response.Internal(c, "failed to get recording")
		return
	}
	if rec == nil {
		response.NotFound(c, "recording not found")
		return
	}
	response.OK(c, rec)
}

// Stats handles GET /recordings/stats.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("recording stats failed", zap.Error(err))
		response.Internal(c, "failed to compute stats")
		return
	}
	response.OK(c, stats)
}

// Process handles POST /recordings/process: pull from the provider and ingest.
func (h *Handler) Process(c *gin.Context) {
	if h.puller == nil {
		response.ServiceUnavailable(c, "provider not configured")
		return
	}
	// A client disconnect must not interrupt ingestions the sweep has started.
	summary, err := h.puller.Sweep(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		h.logger.Error("recording sweep failed", zap.Error(err))
		if zoom.IsAuthError(err) {
			response.BadGateway(c, "provider authentication failed")
			return
		}
		response.BadGateway(c, "provider request failed")
		return
	}
	response.OK(c, summary)
}

// StoredOriginals handles GET /recordings/storage: the original assets in object storage.
func (h *Handler) StoredOriginals(c *gin.Context) {
	if h.originals == nil {
		response.ServiceUnavailable(c, "storage listing not configured")
		return
	}
	objects, err := h.originals.List(c.Request.Context(), storage.FolderRecordings+"/")
	if err != nil {
		h.logger.Error("list stored originals failed", zap.Error(err), zap.String("bucket", h.originals.Name()))
		response.BadGateway(c, "failed to list storage")
		return
	}
	if objects == nil {
		objects = []storage.Object{}
	}
	response.OK(c, gin.H{"bucket": h.originals.Name(), "count": len(objects), "objects": objects})
}

// StreamURL handles GET /recordings/:id/stream-url.
func (h *Handler) StreamURL(c *gin.Context) {
	id := c.Param("id")
	p, err := h.resolver.Resolve(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			response.NotFound(c, "recording not found")
			return
		}
		h.logger.Error("resolve playback failed", zap.Error(err), zap.String("recording_id", id))
		response.Internal(c, "failed to resolve playback")
		return
	}
	response.OK(c, p)
}

// Release handles POST /recordings/:id/release: drop an errored row so it can be ingested again.
func (h *Handler) Release(c *gin.Context) {
	id := c.Param("id")
	err := h.store.ReleaseErrored(c.Request.Context(), id)
	switch {
	case err == nil:
		h.logger.Info("errored recording released", zap.String("recording_id", id))
		response.OK(c, gin.H{"recording_id": id, "released": true})
	case errors.Is(err, ledger.ErrNotFound):
		response.NotFound(c, "recording not found")
	case errors.Is(err, ledger.ErrInvalidTransition):
		response.Conflict(c, "only recordings in error status can be released")
	default:
		h.logger.Error("release recording failed", zap.Error(err), zap.String("recording_id", id))
		response.Internal(c, "failed to release recording")
	}
}
