// Package playback resolves the best available playable artifact for a recording.
package playback

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ledger"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/models"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/storage"
)

// Playback statuses and types.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	TypeMultiRendition = "multi-rendition"
	TypeSingleFile     = "single-file"

	// MasterURLKey is the URLs entry holding the master manifest.
	MasterURLKey = "master"
)

// Location is a storage handle that can be checked and presigned.
type Location interface {
	Name() string
	Exists(ctx context.Context, key string) (bool, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// RecordingFinder looks up recordings.
type RecordingFinder interface {
	FindRecording(ctx context.Context, recordingID string) (*models.Recording, error)
}

// Playback is the resolved playback descriptor returned to clients.
type Playback struct {
	RecordingID     string            `json:"recording_id"`
	Status          string            `json:"status"`
	RecordingStatus string            `json:"recording_status"`
	Type            string            `json:"type,omitempty"`
	URL             string            `json:"url,omitempty"`
	URLs            map[string]string `json:"urls,omitempty"`
	QualityVariants []string          `json:"quality_variants,omitempty"`
	ExpiresIn       int               `json:"expires_in,omitempty"`
	Message         string            `json:"message,omitempty"`
}

// Resolver picks a playback artifact in fixed precedence order.
type Resolver struct {
	store     RecordingFinder
	manifests []Location
	original  Location
	ttl       time.Duration
	logger    *zap.Logger
}

// NewResolver creates a resolver. manifests are checked in order for the HLS master
// manifest; original holds the single-file asset.
func NewResolver(store RecordingFinder, manifests []Location, original Location, ttl time.Duration, logger *zap.Logger) *Resolver {
	if ttl <= 0 {
		ttl = storage.DefaultPresignExpire
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, manifests: manifests, original: original, ttl: ttl, logger: logger}
}

// Resolve returns ledger.ErrNotFound for unknown recordings. Missing artifacts are
// reported in the Playback, not as errors.
func (r *Resolver) Resolve(ctx context.Context, recordingID string) (*Playback, error) {
	rec, err := r.store.FindRecording(ctx, recordingID)
	if err != nil {
		return nil, fmt.Errorf("find recording: %w", err)
	}
	if rec == nil {
		return nil, ledger.ErrNotFound
	}
	out := &Playback{RecordingID: rec.RecordingID, RecordingStatus: rec.Status}
	log := r.logger.With(zap.String("recording_id", rec.RecordingID))

	if rec.Status == models.RecordingStatusError {
		out.Status = StatusError
		out.Message = rec.ErrorMessage
		return out, nil
	}

	prefix := rec.StreamingPrefix
	if prefix == "" {
		prefix = storage.StreamingPrefix(rec.MeetingID, rec.RecordingID)
	}
	manifestKey := storage.ManifestKey(prefix, rec.RecordingID)
	for _, loc := range r.manifests {
		if !r.present(ctx, loc, manifestKey, log) {
			continue
		}
		urls, err := r.renditionURLs(ctx, loc, prefix, manifestKey, rec)
		if err != nil {
			return nil, err
		}
		out.Status = StatusSuccess
		out.Type = TypeMultiRendition
		out.URL = urls[MasterURLKey]
		out.URLs = urls
		out.QualityVariants = rec.QualityVariants
		out.ExpiresIn = int(r.ttl.Seconds())
		log.Debug("resolved hls playback", zap.String("bucket", loc.Name()))
		return out, nil
	}

	originalKey := rec.OriginalStorageKey
	if originalKey == "" {
		originalKey = storage.OriginalKey(rec.MeetingID, rec.RecordingID)
	}
	if r.original != nil && r.present(ctx, r.original, originalKey, log) {
		u, err := r.original.PresignGet(ctx, originalKey, r.ttl)
		if err != nil {
			return nil, fmt.Errorf("presign original: %w", err)
		}
		out.Status = StatusSuccess
		out.Type = TypeSingleFile
		out.URL = u
		out.ExpiresIn = int(r.ttl.Seconds())
		return out, nil
	}

	out.Status = StatusError
	out.Message = "no playable artifact found"
	return out, nil
}

// present treats a failed existence check as absent so later locations are still tried.
func (r *Resolver) present(ctx context.Context, loc Location, key string, log *zap.Logger) bool {
	ok, err := loc.Exists(ctx, key)
	if err != nil {
		log.Warn("storage lookup failed", zap.String("bucket", loc.Name()), zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func (r *Resolver) renditionURLs(ctx context.Context, loc Location, prefix, manifestKey string, rec *models.Recording) (map[string]string, error) {
	urls := make(map[string]string, len(rec.QualityVariants)+1)
	master, err := loc.PresignGet(ctx, manifestKey, r.ttl)
	if err != nil {
		return nil, fmt.Errorf("presign manifest: %w", err)
	}
	urls[MasterURLKey] = master
	for _, label := range rec.QualityVariants {
		u, err := loc.PresignGet(ctx, storage.RenditionManifestKey(prefix, rec.RecordingID, label), r.ttl)
		if err != nil {
			return nil, fmt.Errorf("presign %s manifest: %w", label, err)
		}
		urls[label] = u
	}
	return urls, nil
}
