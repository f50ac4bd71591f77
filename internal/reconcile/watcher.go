// Package reconcile polls submitted transcode jobs and applies their terminal
// state to the ledger exactly once.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ledger"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/models"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/transcode"
)

// DefaultInterval is the job status poll interval.
const DefaultInterval = 30 * time.Second

// StatusSource reports transcode job status.
type StatusSource interface {
	GetJobStatus(ctx context.Context, jobID string) (transcode.JobStatus, error)
}

// Store is the ledger surface the loop writes through.
type Store interface {
	MarkCompleted(ctx context.Context, recordingID string, variants []string) error
	MarkError(ctx context.Context, recordingID, message string) error
	ListProcessing(ctx context.Context) ([]models.Recording, error)
}

// TranscodeFailedError describes an affirmative ERROR or CANCELED job state.
type TranscodeFailedError struct {
	JobID   string
	State   transcode.State
	Message string
}

func (e *TranscodeFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("transcode job %s ended in %s", e.JobID, e.State)
	}
	return fmt.Sprintf("transcode job %s ended in %s: %s", e.JobID, e.State, e.Message)
}

// Watcher polls one (job, recording) pair until the job reaches a terminal state.
type Watcher struct {
	jobID       string
	recordingID string
	source      StatusSource
	store       Store
	variants    []string
	interval    time.Duration
	logger      *zap.Logger
	onExit      func()

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher. variants is stored on the recording when the job completes.
func NewWatcher(jobID, recordingID string, source StatusSource, store Store, variants []string, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		jobID:       jobID,
		recordingID: recordingID,
		source:      source,
		store:       store,
		variants:    variants,
		interval:    interval,
		logger:      logger.With(zap.String("job_id", jobID), zap.String("recording_id", recordingID)),
		done:        make(chan struct{}),
	}
}

// Start begins polling. Call Stop to cancel.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.mu.Unlock()

	go w.run(ctx)
	w.logger.Info("transcode watcher started", zap.Duration("interval", w.interval))
}

// Stop cancels polling and waits for the loop to exit. The recording is left as is.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

// Done is closed when the loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	if w.onExit != nil {
		defer w.onExit()
	}

	if w.poll(ctx) {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("transcode watcher cancelled")
			return
		case <-ticker.C:
			if w.poll(ctx) {
				return
			}
		}
	}
}

// poll checks the job once and reports whether the watcher is finished.
func (w *Watcher) poll(ctx context.Context) bool {
	st, err := w.source.GetJobStatus(ctx, w.jobID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		w.logger.Warn("transcode status poll failed, retrying", zap.Error(err))
		return false
	}

	var outcome string
	switch st.State {
	case transcode.StateComplete:
		outcome = models.RecordingStatusCompleted
		err = w.store.MarkCompleted(ctx, w.recordingID, w.variants)
	case transcode.StateError, transcode.StateCanceled:
		outcome = models.RecordingStatusError
		failure := &TranscodeFailedError{JobID: w.jobID, State: st.State, Message: st.Message}
		err = w.store.MarkError(ctx, w.recordingID, failure.Error())
	default:
		w.logger.Debug("transcode job in progress", zap.String("state", string(st.State)))
		return false
	}

	switch {
	case err == nil:
		w.logger.Info("recording reconciled", zap.String("status", outcome))
		return true
	case errors.Is(err, ledger.ErrInvalidTransition):
		w.logger.Error("recording reconcile conflicts with stored status", zap.String("status", outcome), zap.Error(err))
		return true
	case errors.Is(err, ledger.ErrNotFound):
		w.logger.Warn("recording disappeared while reconciling", zap.Error(err))
		return true
	case ctx.Err() != nil:
		return true
	default:
		w.logger.Warn("ledger update failed, retrying", zap.String("status", outcome), zap.Error(err))
		return false
	}
}
