package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/models"
)

const recordingColumns = `r.id, r.recording_id, r.meeting_ref, m.meeting_id, r.topic, r.host_name, r.file_type, r.file_extension,
	r.file_size, r.recording_start, r.recording_end, r.original_storage_key, COALESCE(r.streaming_prefix,''),
	COALESCE(r.transcode_job_id,''), r.quality_variants, r.status, COALESCE(r.error_message,''),
	r.processing_start, r.processing_end, r.created_at, r.updated_at, r.download_url, r.claimed_at`

const recordingFrom = ` FROM recordings r JOIN meetings m ON m.id = r.meeting_ref`

const meetingColumns = `id, meeting_id, COALESCE(uuid,''), topic, host_id, start_time, created_at, updated_at`

// Postgres is the pgx-backed Ledger. Uniqueness of recording_id and meeting_id
// is enforced by the schema, not by read-then-write checks.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a ledger over the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.ID, &rec.RecordingID, &rec.MeetingRef, &rec.MeetingID, &rec.Topic, &rec.HostName, &rec.FileType,
		&rec.FileExtension, &rec.FileSizeBytes, &rec.RecordingStart, &rec.RecordingEnd, &rec.OriginalStorageKey,
		&rec.StreamingPrefix, &rec.TranscodeJobID, &rec.QualityVariants, &rec.Status, &rec.ErrorMessage,
		&rec.ProcessingStart, &rec.ProcessingEnd, &rec.CreatedAt, &rec.UpdatedAt, &rec.DownloadURL, &rec.ClaimedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanMeeting(row pgx.Row) (*models.Meeting, error) {
	var m models.Meeting
	if err := row.Scan(&m.ID, &m.MeetingID, &m.UUID, &m.Topic, &m.HostID, &m.StartTime, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (p *Postgres) listRecordings(ctx context.Context, q string, args ...any) ([]models.Recording, error) {
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// FindRecording returns a recording by provider recording id.
func (p *Postgres) FindRecording(ctx context.Context, recordingID string) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + recordingFrom + ` WHERE r.recording_id = $1`
	rec, err := scanRecording(p.pool.QueryRow(ctx, q, recordingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find recording: %w", err)
	}
	return rec, nil
}

// ListRecordings returns all recordings, newest first.
func (p *Postgres) ListRecordings(ctx context.Context) ([]models.Recording, error) {
	return p.listRecordings(ctx, `SELECT `+recordingColumns+recordingFrom+` ORDER BY r.created_at DESC`)
}

// ListProcessing returns processing recordings with a transcode job, for the recovery sweep.
func (p *Postgres) ListProcessing(ctx context.Context) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + recordingFrom + ` WHERE r.status = $1 AND r.transcode_job_id IS NOT NULL ORDER BY r.id`
	return p.listRecordings(ctx, q, models.RecordingStatusProcessing)
}

// Stats counts recordings per status.
func (p *Postgres) Stats(ctx context.Context) (models.RecordingStats, error) {
	const q = `SELECT status, COUNT(*) FROM recordings GROUP BY status`
	var s models.RecordingStats
	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return s, err
		}
		s.Total += n
		switch status {
		case models.RecordingStatusPending:
			s.Pending = n
		case models.RecordingStatusProcessing:
			s.Processing = n
		case models.RecordingStatusCompleted:
			s.Completed = n
		case models.RecordingStatusError:
			s.Error = n
		}
	}
	return s, rows.Err()
}

// UpsertMeeting inserts the meeting unless meeting_id or uuid already exists, then returns the stored row.
func (p *Postgres) UpsertMeeting(ctx context.Context, attrs models.MeetingAttrs) (*models.Meeting, error) {
	if attrs.MeetingID == "" {
		return nil, fmt.Errorf("upsert meeting: meeting id required")
	}
	const insert = `INSERT INTO meetings (meeting_id, uuid, topic, host_id, start_time)
		VALUES ($1, NULLIF($2,''), $3, $4, $5)
		ON CONFLICT DO NOTHING
		RETURNING ` + meetingColumns
	m, err := scanMeeting(p.pool.QueryRow(ctx, insert, attrs.MeetingID, attrs.UUID, attrs.Topic, attrs.HostID, attrs.StartTime))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("insert meeting: %w", err)
	}
	const sel = `SELECT ` + meetingColumns + ` FROM meetings WHERE meeting_id = $1 OR (uuid IS NOT NULL AND uuid = NULLIF($2,'')) ORDER BY (meeting_id = $1) DESC LIMIT 1`
	m, err = scanMeeting(p.pool.QueryRow(ctx, sel, attrs.MeetingID, attrs.UUID))
	if err != nil {
		return nil, fmt.Errorf("select meeting: %w", err)
	}
	return m, nil
}

// SyncMeeting upserts on meeting_id. The uuid is only set when no other row
// holds it, and an existing uuid is kept.
func (p *Postgres) SyncMeeting(ctx context.Context, attrs models.MeetingAttrs) (*models.Meeting, bool, error) {
	if attrs.MeetingID == "" {
		return nil, false, fmt.Errorf("sync meeting: meeting id required")
	}
	const q = `INSERT INTO meetings (meeting_id, uuid, topic, host_id, start_time)
		VALUES ($1, CASE WHEN EXISTS (SELECT 1 FROM meetings WHERE uuid = NULLIF($2,'')) THEN NULL ELSE NULLIF($2,'') END, $3, $4, $5)
		ON CONFLICT (meeting_id) DO UPDATE SET
			topic = EXCLUDED.topic,
			host_id = EXCLUDED.host_id,
			start_time = EXCLUDED.start_time,
			uuid = COALESCE(meetings.uuid, EXCLUDED.uuid),
			updated_at = NOW()
		RETURNING ` + meetingColumns + `, (xmax = 0)`
	var m models.Meeting
	var created bool
	err := p.pool.QueryRow(ctx, q, attrs.MeetingID, attrs.UUID, attrs.Topic, attrs.HostID, attrs.StartTime).
		Scan(&m.ID, &m.MeetingID, &m.UUID, &m.Topic, &m.HostID, &m.StartTime, &m.CreatedAt, &m.UpdatedAt, &created)
	if err != nil {
		return nil, false, fmt.Errorf("sync meeting %s: %w", attrs.MeetingID, err)
	}
	return &m, created, nil
}

// FindMeeting returns a meeting by provider meeting id.
func (p *Postgres) FindMeeting(ctx context.Context, meetingID string) (*models.Meeting, error) {
	const q = `SELECT ` + meetingColumns + ` FROM meetings WHERE meeting_id = $1`
	m, err := scanMeeting(p.pool.QueryRow(ctx, q, meetingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find meeting: %w", err)
	}
	return m, nil
}

// ListMeetings returns all meetings, latest start first.
func (p *Postgres) ListMeetings(ctx context.Context) ([]models.Meeting, error) {
	const q = `SELECT ` + meetingColumns + ` FROM meetings ORDER BY start_time DESC`
	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

// CreateRecordingPending inserts a pending recording. A concurrent insert of the
// same recording_id loses on the unique index and gets ErrDuplicateRecording.
func (p *Postgres) CreateRecordingPending(ctx context.Context, meeting *models.Meeting, attrs models.RecordingAttrs) (*models.Recording, error) {
	if meeting == nil || attrs.RecordingID == "" {
		return nil, fmt.Errorf("create recording: meeting and recording id required")
	}
	const q = `INSERT INTO recordings (recording_id, meeting_ref, topic, host_name, file_type, file_extension, file_size,
			recording_start, recording_end, original_storage_key, download_url, status, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (recording_id) DO NOTHING
		RETURNING id, created_at, updated_at, claimed_at`
	rec := &models.Recording{
		RecordingID:        attrs.RecordingID,
		MeetingRef:         meeting.ID,
		MeetingID:          meeting.MeetingID,
		Topic:              attrs.Topic,
		HostName:           attrs.HostName,
		FileType:           attrs.FileType,
		FileExtension:      attrs.FileExtension,
		FileSizeBytes:      attrs.FileSizeBytes,
		RecordingStart:     attrs.RecordingStart,
		RecordingEnd:       attrs.RecordingEnd,
		OriginalStorageKey: attrs.OriginalStorageKey,
		DownloadURL:        attrs.DownloadURL,
		Status:             models.RecordingStatusPending,
	}
	err := p.pool.QueryRow(ctx, q, rec.RecordingID, rec.MeetingRef, rec.Topic, rec.HostName, rec.FileType, rec.FileExtension,
		rec.FileSizeBytes, rec.RecordingStart, rec.RecordingEnd, rec.OriginalStorageKey, rec.DownloadURL, rec.Status).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt, &rec.ClaimedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRecording, attrs.RecordingID)
		}
		return nil, fmt.Errorf("insert recording: %w", err)
	}
	return rec, nil
}

// ClaimPending stamps claimed_at on a pending row whose claim is released or stale.
// The conditional UPDATE lets exactly one of several racing callers win.
func (p *Postgres) ClaimPending(ctx context.Context, recordingID string, staleBefore time.Time) (bool, error) {
	const q = `UPDATE recordings SET claimed_at = NOW(), updated_at = NOW()
		WHERE recording_id = $1 AND status = $2 AND (claimed_at IS NULL OR claimed_at < $3)`
	tag, err := p.pool.Exec(ctx, q, recordingID, models.RecordingStatusPending, staleBefore)
	if err != nil {
		return false, fmt.Errorf("claim recording %s: %w", recordingID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleasePending clears claimed_at. Rows that are no longer pending are left alone.
func (p *Postgres) ReleasePending(ctx context.Context, recordingID string) error {
	const q = `UPDATE recordings SET claimed_at = NULL, updated_at = NOW() WHERE recording_id = $1 AND status = $2`
	if _, err := p.pool.Exec(ctx, q, recordingID, models.RecordingStatusPending); err != nil {
		return fmt.Errorf("release recording %s: %w", recordingID, err)
	}
	return nil
}

// ListPending returns resumable pending recordings, oldest first.
func (p *Postgres) ListPending(ctx context.Context, staleBefore time.Time) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + recordingFrom +
		` WHERE r.status = $1 AND (r.claimed_at IS NULL OR r.claimed_at < $2) ORDER BY r.id`
	return p.listRecordings(ctx, q, models.RecordingStatusPending, staleBefore)
}

// transition runs a guarded UPDATE. When no row matched, the current row decides
// between not found, an idempotent no-op, and ErrInvalidTransition.
func (p *Postgres) transition(ctx context.Context, recordingID, next, jobID, q string, args ...any) error {
	tag, err := p.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update recording %s to %s: %w", recordingID, next, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	rec, err := p.FindRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: recording %s", ErrNotFound, recordingID)
	}
	_, err = checkTransition(rec, next, jobID)
	return err
}

// MarkProcessing records the submitted job and its output prefix.
func (p *Postgres) MarkProcessing(ctx context.Context, recordingID, jobID, streamingPrefix string) error {
	const q = `UPDATE recordings SET status = $2, transcode_job_id = $3, streaming_prefix = $4,
			processing_start = NOW(), claimed_at = NULL, updated_at = NOW()
		WHERE recording_id = $1 AND status = $5`
	return p.transition(ctx, recordingID, models.RecordingStatusProcessing, jobID, q,
		recordingID, models.RecordingStatusProcessing, jobID, streamingPrefix, models.RecordingStatusPending)
}

// MarkCompleted moves a non-terminal recording to completed. variants replaces the stored set when non-nil.
func (p *Postgres) MarkCompleted(ctx context.Context, recordingID string, variants []string) error {
	const q = `UPDATE recordings SET status = $2, quality_variants = COALESCE($3, quality_variants), error_message = NULL,
			processing_end = NOW(), claimed_at = NULL, updated_at = NOW()
		WHERE recording_id = $1 AND status IN ($4, $5)`
	return p.transition(ctx, recordingID, models.RecordingStatusCompleted, "", q,
		recordingID, models.RecordingStatusCompleted, variants, models.RecordingStatusPending, models.RecordingStatusProcessing)
}

// MarkError moves a non-terminal recording to error with message.
func (p *Postgres) MarkError(ctx context.Context, recordingID, message string) error {
	const q = `UPDATE recordings SET status = $2, error_message = $3, processing_end = NOW(), claimed_at = NULL, updated_at = NOW()
		WHERE recording_id = $1 AND status IN ($4, $5)`
	return p.transition(ctx, recordingID, models.RecordingStatusError, "", q,
		recordingID, models.RecordingStatusError, message, models.RecordingStatusPending, models.RecordingStatusProcessing)
}

// ReleaseErrored deletes a recording in error status.
func (p *Postgres) ReleaseErrored(ctx context.Context, recordingID string) error {
	const q = `DELETE FROM recordings WHERE recording_id = $1 AND status = $2`
	tag, err := p.pool.Exec(ctx, q, recordingID, models.RecordingStatusError)
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	rec, err := p.FindRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: recording %s", ErrNotFound, recordingID)
	}
	return fmt.Errorf("%w: recording %s is %s, only error rows can be released", ErrInvalidTransition, recordingID, rec.Status)
}

var _ Ledger = (*Postgres)(nil)
