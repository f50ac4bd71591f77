// Package ingest drives one recording from a provider signal to a submitted
// transcode job: dedup, persist, transfer, submit, hand off to reconciliation.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ledger"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/models"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/transfer"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/storage"
)

// DefaultConcurrency bounds parallel ingestions within one batch.
const DefaultConcurrency = 4

// DefaultPendingLease is how long a pending row stays claimed by the ingestion
// that created it before another attempt may take it over.
const DefaultPendingLease = 30 * time.Minute

const ledgerWriteTimeout = 10 * time.Second

// Store is the ledger surface used during ingestion.
type Store interface {
	FindRecording(ctx context.Context, recordingID string) (*models.Recording, error)
	UpsertMeeting(ctx context.Context, attrs models.MeetingAttrs) (*models.Meeting, error)
	CreateRecordingPending(ctx context.Context, meeting *models.Meeting, attrs models.RecordingAttrs) (*models.Recording, error)
	ClaimPending(ctx context.Context, recordingID string, staleBefore time.Time) (bool, error)
	ReleasePending(ctx context.Context, recordingID string) error
	ListPending(ctx context.Context, staleBefore time.Time) ([]models.Recording, error)
	MarkProcessing(ctx context.Context, recordingID, jobID, streamingPrefix string) error
	MarkCompleted(ctx context.Context, recordingID string, variants []string) error
	MarkError(ctx context.Context, recordingID, message string) error
}

// DownloadAuthorizer turns a provider download URL into a fetchable one.
type DownloadAuthorizer interface {
	AuthorizeDownload(ctx context.Context, downloadURL string) (string, error)
}

// Submitter submits transcode jobs.
type Submitter interface {
	SubmitJob(ctx context.Context, sourceURI, outputPrefix string) (string, error)
}

// HostResolver resolves a host id to a display name.
type HostResolver interface {
	HostName(ctx context.Context, hostID string) string
}

// Scheduler hands a submitted job to reconciliation.
type Scheduler interface {
	Watch(jobID, recordingID string) bool
}

// Options configure a Coordinator.
type Options struct {
	// Originals receives original assets.
	Originals       transfer.Destination
	// StreamingBucket receives transcoder output.
	StreamingBucket string
	// Hosts fills HostName when a descriptor arrives without one.
	Hosts           HostResolver

	Concurrency int
	// PendingLease bounds how long an unfinished pending row blocks other attempts.
	PendingLease time.Duration
}

// Coordinator ingests recordings.
type Coordinator struct {
	store     Store
	transfer  *transfer.Transfer
	auth      DownloadAuthorizer
	submitter Submitter
	scheduler Scheduler
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// NewCoordinator creates a coordinator. auth may be nil when download URLs are already authorised.
func NewCoordinator(store Store, xfer *transfer.Transfer, auth DownloadAuthorizer, submitter Submitter, scheduler Scheduler, opts Options, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.PendingLease <= 0 {
		opts.PendingLease = DefaultPendingLease
	}
	return &Coordinator{
		store:     store,
		transfer:  xfer,
		auth:      auth,
		submitter: submitter,
		scheduler: scheduler,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Ingest processes one recording. Failures are reported in the Result, never returned.
func (c *Coordinator) Ingest(ctx context.Context, d Descriptor) Result {
	res := Result{ID: d.RecordingID, MeetingID: d.MeetingID, Topic: d.Topic}
	log := c.logger.With(zap.String("recording_id", d.RecordingID), zap.String("meeting_id", d.MeetingID))

	if err := d.Validate(); err != nil {
		return failed(res, fmt.Errorf("invalid descriptor: %w", err), false)
	}

	existing, err := c.store.FindRecording(ctx, d.RecordingID)
	if err != nil {
		log.Error("dedup lookup failed", zap.Error(err))
		return failed(res, err, true)
	}
	originalKey := storage.OriginalKey(d.MeetingID, d.RecordingID)
	if existing != nil {
		resumed, err := c.resume(ctx, existing, log)
		if err != nil {
			return failed(res, err, true)
		}
		if !resumed {
			log.Debug("recording already ingested", zap.String("status", existing.Status))
			return skipped(res, ReasonAlreadyIngested)
		}
		if existing.OriginalStorageKey != "" {
			originalKey = existing.OriginalStorageKey
		}
		if d.DownloadURL == "" {
			d.DownloadURL = existing.DownloadURL
		}
		return c.process(ctx, res, d, originalKey, log)
	}

	if d.HostName == "" && c.opts.Hosts != nil {
		d.HostName = c.opts.Hosts.HostName(ctx, d.HostID)
	}
	meeting, err := c.store.UpsertMeeting(ctx, d.meetingAttrs())
	if err != nil {
		log.Error("upsert meeting failed", zap.Error(err))
		return failed(res, err, true)
	}
	if _, err := c.store.CreateRecordingPending(ctx, meeting, d.recordingAttrs(originalKey)); err != nil {
		if errors.Is(err, ledger.ErrDuplicateRecording) {
			log.Info("concurrent ingestion won the race, skipping")
			return skipped(res, ReasonAlreadyIngested)
		}
		log.Error("create pending recording failed", zap.Error(err))
		return failed(res, err, true)
	}
	return c.process(ctx, res, d, originalKey, log)
}

// resume claims an existing pending row left behind by an interrupted or
// crashed ingestion. Rows in any other status, or still claimed, are not resumed.
func (c *Coordinator) resume(ctx context.Context, existing *models.Recording, log *zap.Logger) (bool, error) {
	if existing.Status != models.RecordingStatusPending {
		return false, nil
	}
	claimed, err := c.store.ClaimPending(ctx, existing.RecordingID, c.now().Add(-c.opts.PendingLease))
	if err != nil {
		log.Error("claim pending recording failed", zap.Error(err))
		return false, err
	}
	if claimed {
		log.Info("resuming interrupted ingestion")
	}
	return claimed, nil
}

// process runs the steps after the pending row is owned by this call.
func (c *Coordinator) process(ctx context.Context, res Result, d Descriptor, originalKey string, log *zap.Logger) Result {
	if !d.Transcodable() {
		if err := c.store.MarkCompleted(ctx, d.RecordingID, nil); err != nil {
			log.Error("mark unsupported recording completed failed", zap.Error(err))
			return failed(res, err, false)
		}
		log.Info("recording not transcodable, marked completed", zap.String("file_extension", d.FileExtension))
		return skipped(res, ReasonUnsupportedType)
	}

	jobID, err := c.stageAndSubmit(ctx, d, originalKey, log)
	if err != nil {
		if ctx.Err() != nil {
			c.releasePending(ctx, d.RecordingID, err, log)
			return failed(res, err, true)
		}
		c.markError(ctx, d.RecordingID, err, log)
		return failed(res, err, false)
	}

	if c.scheduler != nil && !c.scheduler.Watch(jobID, d.RecordingID) {
		log.Warn("reconcile watcher not started", zap.String("job_id", jobID))
	}
	res.Status = StatusProcessed
	log.Info("recording submitted for transcoding", zap.String("job_id", jobID))
	return res
}

// stageAndSubmit copies the asset to the originals bucket unless it is already
// there, submits the transcode job and marks the recording processing.
func (c *Coordinator) stageAndSubmit(ctx context.Context, d Descriptor, originalKey string, log *zap.Logger) (string, error) {
	originals := c.opts.Originals
	present, err := c.transfer.Exists(ctx, originals, originalKey)
	if err != nil {
		return "", err
	}
	if present {
		log.Info("original already stored, skipping download", zap.String("key", originalKey))
	} else {
		if err := c.fetchAndPublish(ctx, d, originalKey); err != nil {
			return "", err
		}
	}

	prefix := storage.StreamingPrefix(d.MeetingID, d.RecordingID)
	jobID, err := c.submitter.SubmitJob(ctx,
		storage.URI(originals.Name(), originalKey),
		storage.URI(c.opts.StreamingBucket, prefix+"/"),
	)
	if err != nil {
		return "", err
	}
	// The job exists now; record it even if ctx ended meanwhile.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	if err := c.store.MarkProcessing(wctx, d.RecordingID, jobID, prefix); err != nil {
		return "", fmt.Errorf("mark processing: %w", err)
	}
	return jobID, nil
}

func (c *Coordinator) fetchAndPublish(ctx context.Context, d Descriptor, key string) error {
	if d.DownloadURL == "" {
		return errors.New("recording has no download url")
	}
	url := d.DownloadURL
	if c.auth != nil {
		authorized, err := c.auth.AuthorizeDownload(ctx, d.DownloadURL)
		if err != nil {
			return fmt.Errorf("authorize download: %w", err)
		}
		url = authorized
	}
	staged, err := c.transfer.FetchAndStage(ctx, url)
	if err != nil {
		return err
	}
	defer func() {
		if err := staged.Cleanup(); err != nil {
			c.logger.Warn("staged file cleanup failed", zap.String("recording_id", d.RecordingID), zap.Error(err))
		}
	}()
	return c.transfer.Publish(ctx, staged, c.opts.Originals, key)
}

// markError records a failure even when ctx has been cancelled.
func (c *Coordinator) markError(ctx context.Context, recordingID string, cause error, log *zap.Logger) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	if err := c.store.MarkError(wctx, recordingID, cause.Error()); err != nil {
		log.Error("mark recording error failed", zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	log.Warn("recording ingestion failed", zap.Error(cause))
}

// releasePending leaves an interrupted recording pending and unclaimed, so a
// retried job or ResumePending picks it up instead of it ending in error.
func (c *Coordinator) releasePending(ctx context.Context, recordingID string, cause error, log *zap.Logger) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	if err := c.store.ReleasePending(wctx, recordingID); err != nil {
		log.Error("release pending recording failed", zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	log.Warn("recording ingestion interrupted, left pending", zap.Error(cause))
}

// ResumePending re-runs ingestion for pending rows that were released or whose
// claim outlived the lease. Rows stored without a download URL cannot be resumed.
func (c *Coordinator) ResumePending(ctx context.Context) ([]Result, error) {
	rows, err := c.store.ListPending(ctx, c.now().Add(-c.opts.PendingLease))
	if err != nil {
		return nil, fmt.Errorf("list pending recordings: %w", err)
	}
	descs := make([]Descriptor, 0, len(rows))
	for _, rec := range rows {
		d := descriptorFromRecording(rec)
		if d.DownloadURL == "" && d.Transcodable() {
			c.logger.Warn("pending recording has no stored download url", zap.String("recording_id", rec.RecordingID))
			continue
		}
		descs = append(descs, d)
	}
	if len(descs) == 0 {
		return nil, nil
	}
	results := c.IngestBatch(ctx, descs)
	s := Summarize(results)
	c.logger.Info("resumed pending recordings",
		zap.Int("processed", s.ProcessedCount),
		zap.Int("skipped", s.SkippedCount),
		zap.Int("errors", s.ErrorCount),
	)
	return results, nil
}

// IngestBatch ingests descriptors concurrently. One failure never affects siblings.
func (c *Coordinator) IngestBatch(ctx context.Context, descs []Descriptor) []Result {
	results := make([]Result, len(descs))
	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i := range descs {
		i := i
		g.Go(func() error {
			results[i] = c.Ingest(ctx, descs[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func skipped(res Result, reason string) Result {
	res.Status = StatusSkipped
	res.Reason = reason
	return res
}

func failed(res Result, err error, retry bool) Result {
	res.Status = StatusError
	res.Error = err.Error()
	res.Retry = retry
	return res
}
