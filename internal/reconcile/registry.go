package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry supervises running watchers, one per transcode job (thread-safe).
type Registry struct {
	source   StatusSource
	store    Store
	variants []string
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	watchers map[string]*Watcher
	closed   bool
}

// NewRegistry creates a watcher registry.
func NewRegistry(source StatusSource, store Store, variants []string, interval time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		source:   source,
		store:    store,
		variants: variants,
		interval: interval,
		logger:   logger,
		watchers: make(map[string]*Watcher),
	}
}

// Watch starts a watcher for jobID unless one is already running. It reports whether a watcher was started.
func (reg *Registry) Watch(jobID, recordingID string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.closed || reg.watchers[jobID] != nil {
		return false
	}
	w := NewWatcher(jobID, recordingID, reg.source, reg.store, reg.variants, reg.interval, reg.logger)
	w.onExit = func() { reg.remove(jobID, w) }
	reg.watchers[jobID] = w
	w.Start()
	return true
}

func (reg *Registry) remove(jobID string, w *Watcher) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.watchers[jobID] == w {
		delete(reg.watchers, jobID)
	}
}

// Recover starts a watcher for every processing recording that has a job id.
func (reg *Registry) Recover(ctx context.Context) (int, error) {
	recs, err := reg.store.ListProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processing recordings: %w", err)
	}
	started := 0
	for _, rec := range recs {
		if rec.TranscodeJobID == "" {
			continue
		}
		if reg.Watch(rec.TranscodeJobID, rec.RecordingID) {
			started++
		}
	}
	reg.logger.Info("reconcile recovery sweep finished", zap.Int("processing", len(recs)), zap.Int("watchers_started", started))
	return started, nil
}

// Active returns the number of running watchers.
func (reg *Registry) Active() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.watchers)
}

// Shutdown stops every watcher and refuses new ones. Recordings stay processing.
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	reg.closed = true
	running := make([]*Watcher, 0, len(reg.watchers))
	for _, w := range reg.watchers {
		running = append(running, w)
	}
	reg.mu.Unlock()

	for _, w := range running {
		w.Stop()
	}
	reg.logger.Info("reconcile registry stopped", zap.Int("watchers", len(running)))
}
