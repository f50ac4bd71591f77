package ingest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/queue"
)

// Dispatcher hands webhook-delivered recordings to ingestion without blocking the request.
type Dispatcher interface {
	Dispatch(ctx context.Context, descs []Descriptor) error
}

// AsyncDispatcher ingests in-process on background goroutines.
type AsyncDispatcher struct {
	base   context.Context
	coord  *Coordinator
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewAsyncDispatcher creates a dispatcher whose work is cancelled with base.
func NewAsyncDispatcher(base context.Context, coord *Coordinator, logger *zap.Logger) *AsyncDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncDispatcher{base: base, coord: coord, logger: logger}
}

// Dispatch starts ingestion and returns immediately.
func (d *AsyncDispatcher) Dispatch(_ context.Context, descs []Descriptor) error {
	if len(descs) == 0 {
		return nil
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		summary := Summarize(d.coord.IngestBatch(d.base, descs))
		d.logger.Info("webhook ingestion finished",
			zap.Int("processed", summary.ProcessedCount),
			zap.Int("skipped", summary.SkippedCount),
			zap.Int("errors", summary.ErrorCount),
		)
	}()
	return nil
}

// Wait blocks until every dispatched batch has finished.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}

// Enqueuer is the queue surface used by QueueDispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType queue.JobType, payload interface{}) (string, error)
}

// QueueDispatcher pushes one queue job per recording for cmd/worker to process.
type QueueDispatcher struct {
	q      Enqueuer
	logger *zap.Logger
}

// NewQueueDispatcher creates a Redis queue dispatcher.
func NewQueueDispatcher(q Enqueuer, logger *zap.Logger) *QueueDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueDispatcher{q: q, logger: logger}
}

// Dispatch enqueues every descriptor. It stops at the first enqueue failure.
func (d *QueueDispatcher) Dispatch(ctx context.Context, descs []Descriptor) error {
	for _, desc := range descs {
		jobID, err := d.q.Enqueue(ctx, queue.JobTypeRecordingIngest, desc)
		if err != nil {
			return fmt.Errorf("enqueue recording %s: %w", desc.RecordingID, err)
		}
		d.logger.Info("recording ingest enqueued", zap.String("recording_id", desc.RecordingID), zap.String("queue_job_id", jobID))
	}
	return nil
}
