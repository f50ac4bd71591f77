// Package worker consumes queued recording ingest jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ingest"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/queue"
)

// ErrUnknownJobType is returned for jobs this worker cannot handle.
var ErrUnknownJobType = errors.New("unknown job type")

// JobQueue is the queue surface used by the processor.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Ingester ingests one recording.
type Ingester interface {
	Ingest(ctx context.Context, d ingest.Descriptor) ingest.Result
}

// IngestProcessor processes recording ingest jobs: decode descriptor, ingest, retry on pre-ledger failures.
type IngestProcessor struct {
	ingester Ingester
	queue    JobQueue
	backoff  time.Duration
	logger   *zap.Logger
}

// NewIngestProcessor creates an ingest job processor.
func NewIngestProcessor(ingester Ingester, q JobQueue, logger *zap.Logger) *IngestProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestProcessor{ingester: ingester, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one job. A returned error means the job should be retried.
func (p *IngestProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRecordingIngest {
		return fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
	}
	var desc ingest.Descriptor
	if err := json.Unmarshal(job.Payload, &desc); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	res := p.ingester.Ingest(ctx, desc)
	log := p.logger.With(zap.String("job_id", job.ID), zap.String("recording_id", desc.RecordingID))
	switch res.Status {
	case ingest.StatusProcessed:
		log.Info("recording ingested")
	case ingest.StatusSkipped:
		log.Info("recording skipped", zap.String("reason", res.Reason))
	default:
		if res.Retry {
			return fmt.Errorf("ingest recording %s: %s", desc.RecordingID, res.Error)
		}
		// The ledger row already carries the error; redelivery would only be skipped.
		log.Warn("recording ingest failed", zap.String("error", res.Error))
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *IngestProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("ingest worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if errors.Is(err, ErrUnknownJobType) {
				job.Attempt = queue.MaxRetries
			}
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *IngestProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
