// Package ledger owns persisted meeting and recording state. It is the only
// writer of both tables; every other component goes through Ledger.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/models"
)

var (
	// ErrNotFound is returned when a recording or meeting does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateRecording is returned when a recording id is already persisted.
	ErrDuplicateRecording = errors.New("duplicate recording")
	// ErrInvalidTransition is returned when a status change conflicts with the persisted status.
	ErrInvalidTransition = errors.New("invalid recording status transition")
)

// Ledger is the narrow mutation and query surface over meetings and recordings.
type Ledger interface {
	// FindRecording returns nil, nil when the recording is unknown.
	FindRecording(ctx context.Context, recordingID string) (*models.Recording, error)
	ListRecordings(ctx context.Context) ([]models.Recording, error)
	// ListProcessing returns processing recordings that carry a transcode job id.
	ListProcessing(ctx context.Context) ([]models.Recording, error)
	Stats(ctx context.Context) (models.RecordingStats, error)

	// UpsertMeeting returns the existing meeting for attrs.MeetingID or inserts a new one.
	UpsertMeeting(ctx context.Context, attrs models.MeetingAttrs) (*models.Meeting, error)
	// SyncMeeting inserts the meeting or updates topic, host and start time in
	// place, reporting whether a row was created.
	SyncMeeting(ctx context.Context, attrs models.MeetingAttrs) (*models.Meeting, bool, error)
	// FindMeeting returns nil, nil when the meeting is unknown.
	FindMeeting(ctx context.Context, meetingID string) (*models.Meeting, error)
	ListMeetings(ctx context.Context) ([]models.Meeting, error)

	// CreateRecordingPending inserts a pending row claimed by the caller.
	CreateRecordingPending(ctx context.Context, meeting *models.Meeting, attrs models.RecordingAttrs) (*models.Recording, error)
	// ClaimPending takes over a pending recording whose claim was released or
	// predates staleBefore. It reports false when another ingestion holds it.
	ClaimPending(ctx context.Context, recordingID string, staleBefore time.Time) (bool, error)
	// ReleasePending drops the claim on a pending recording so the next attempt can resume it.
	ReleasePending(ctx context.Context, recordingID string) error
	// ListPending returns pending recordings that ClaimPending would hand out.
	ListPending(ctx context.Context, staleBefore time.Time) ([]models.Recording, error)
	MarkProcessing(ctx context.Context, recordingID, jobID, streamingPrefix string) error
	MarkCompleted(ctx context.Context, recordingID string, variants []string) error
	MarkError(ctx context.Context, recordingID, message string) error
	// ReleaseErrored deletes a recording in error status so it can be ingested again.
	ReleaseErrored(ctx context.Context, recordingID string) error
}

// checkTransition decides whether moving rec to next should be applied, is a
// no-op, or conflicts. jobID is only consulted for the processing transition.
func checkTransition(rec *models.Recording, next, jobID string) (apply bool, err error) {
	cur := rec.Status
	switch next {
	case models.RecordingStatusProcessing:
		if cur == models.RecordingStatusPending {
			return true, nil
		}
		if cur == models.RecordingStatusProcessing && rec.TranscodeJobID == jobID {
			return false, nil
		}
	case models.RecordingStatusCompleted, models.RecordingStatusError:
		if cur == models.RecordingStatusPending || cur == models.RecordingStatusProcessing {
			return true, nil
		}
		if cur == next {
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: recording %s is %s, cannot become %s", ErrInvalidTransition, rec.RecordingID, cur, next)
}
