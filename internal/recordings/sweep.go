package recordings

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ingest"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/zoom"
)

// Provider lists recordings and resolves host names.
type Provider interface {
	ListRecordings(ctx context.Context, userID string) ([]zoom.RecordingMeeting, error)
	HostName(ctx context.Context, hostID string) string
}

// BatchIngester ingests a batch of descriptors.
type BatchIngester interface {
	IngestBatch(ctx context.Context, descs []ingest.Descriptor) []ingest.Result
}

// Sweeper pulls the provider's recording list and ingests every completed file.
type Sweeper struct {
	provider Provider
	ingester BatchIngester
	userID   string
	logger   *zap.Logger
}

// NewSweeper creates a sweeper for userID ("me" for the token owner).
func NewSweeper(provider Provider, ingester BatchIngester, userID string, logger *zap.Logger) *Sweeper {
	if userID == "" {
		userID = "me"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{provider: provider, ingester: ingester, userID: userID, logger: logger}
}

// Sweep runs one pull cycle. Only provider listing failures are returned; per-recording
// failures are in the summary.
func (s *Sweeper) Sweep(ctx context.Context) (ingest.Summary, error) {
	meetings, err := s.provider.ListRecordings(ctx, s.userID)
	if err != nil {
		return ingest.Summary{}, fmt.Errorf("sweep recordings: %w", err)
	}

	hosts := make(map[string]string)
	var descs []ingest.Descriptor
	for _, m := range meetings {
		if err := m.Validate(); err != nil {
			s.logger.Warn("skipping malformed meeting", zap.String("meeting_uuid", m.UUID), zap.Error(err))
			continue
		}
		name, ok := hosts[m.HostID]
		if !ok {
			name = s.provider.HostName(ctx, m.HostID)
			hosts[m.HostID] = name
		}
		descs = append(descs, Descriptors(m, name)...)
	}

	summary := ingest.Summarize(s.ingester.IngestBatch(ctx, descs))
	s.logger.Info("recording sweep finished",
		zap.Int("meetings", len(meetings)),
		zap.Int("processed", summary.ProcessedCount),
		zap.Int("skipped", summary.SkippedCount),
		zap.Int("errors", summary.ErrorCount),
	)
	return summary, nil
}
