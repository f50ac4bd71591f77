package ingest

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/models"
)

// Result statuses.
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusError     = "error"
)

// Skip reasons.
const (
	ReasonAlreadyIngested = "already-ingested"
	ReasonUnsupportedType = "unsupported-type"
)

// SupportedExtension is the only container that is transcoded.
const SupportedExtension = "mp4"

// Descriptor describes one provider recording file to ingest.
type Descriptor struct {
	RecordingID    string    `json:"recording_id" binding:"required"`
	MeetingID      string    `json:"meeting_id" binding:"required"`
	MeetingUUID    string    `json:"meeting_uuid"`
	Topic          string    `json:"topic"`
	HostID         string    `json:"host_id"`
	HostName       string    `json:"host_name"`
	FileType       string    `json:"file_type"`
	FileExtension  string    `json:"file_extension"`
	FileSizeBytes  int64     `json:"file_size"`
	RecordingStart time.Time `json:"recording_start"`
	RecordingEnd   time.Time `json:"recording_end"`
	MeetingStart   time.Time `json:"meeting_start"`
	DownloadURL    string    `json:"download_url"`
}

// Validate checks the fields every ingestion needs.
func (d Descriptor) Validate() error {
	if err := binding.Validator.ValidateStruct(d); err != nil {
		return err
	}
	if !d.RecordingEnd.IsZero() && d.RecordingEnd.Before(d.RecordingStart) {
		return errors.New("recording end precedes start")
	}
	return nil
}

// Transcodable reports whether the file's container is supported.
func (d Descriptor) Transcodable() bool {
	ext := strings.TrimPrefix(strings.TrimSpace(d.FileExtension), ".")
	return strings.EqualFold(ext, SupportedExtension)
}

func (d Descriptor) meetingAttrs() models.MeetingAttrs {
	start := d.MeetingStart
	if start.IsZero() {
		start = d.RecordingStart
	}
	return models.MeetingAttrs{
		MeetingID: d.MeetingID,
		UUID:      d.MeetingUUID,
		Topic:     d.Topic,
		HostID:    d.HostID,
		StartTime: start,
	}
}

func (d Descriptor) recordingAttrs(originalKey string) models.RecordingAttrs {
	end := d.RecordingEnd
	if end.IsZero() {
		end = d.RecordingStart
	}
	return models.RecordingAttrs{
		RecordingID:        d.RecordingID,
		Topic:              d.Topic,
		HostName:           d.HostName,
		FileType:           d.FileType,
		FileExtension:      d.FileExtension,
		FileSizeBytes:      d.FileSizeBytes,
		RecordingStart:     d.RecordingStart,
		RecordingEnd:       end,
		OriginalStorageKey: originalKey,
		DownloadURL:        d.DownloadURL,
	}
}

// descriptorFromRecording rebuilds enough of a descriptor to resume a stored pending row.
func descriptorFromRecording(rec models.Recording) Descriptor {
	return Descriptor{
		RecordingID:    rec.RecordingID,
		MeetingID:      rec.MeetingID,
		Topic:          rec.Topic,
		HostName:       rec.HostName,
		FileType:       rec.FileType,
		FileExtension:  rec.FileExtension,
		FileSizeBytes:  rec.FileSizeBytes,
		RecordingStart: rec.RecordingStart,
		RecordingEnd:   rec.RecordingEnd,
		DownloadURL:    rec.DownloadURL,
	}
}

// Result is the outcome of ingesting one recording.
type Result struct {
	ID        string `json:"id"`
	MeetingID string `json:"meeting_id"`
	Topic     string `json:"topic"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	// Retry is set when no terminal row was written: the failure happened before
	// a recording row existed, or ctx ended and the row was left pending.
	Retry bool `json:"-"`
}

// Summary aggregates a batch of results.
type Summary struct {
	ProcessedCount int      `json:"processed_count"`
	SkippedCount   int      `json:"skipped_count"`
	ErrorCount     int      `json:"error_count"`
	Processed      []Result `json:"processed"`
	Skipped        []Result `json:"skipped"`
	Errors         []Result `json:"errors"`
}

// Summarize groups results by status.
func Summarize(results []Result) Summary {
	s := Summary{Processed: []Result{}, Skipped: []Result{}, Errors: []Result{}}
	for _, r := range results {
		switch r.Status {
		case StatusProcessed:
			s.Processed = append(s.Processed, r)
		case StatusSkipped:
			s.Skipped = append(s.Skipped, r)
		default:
			s.Errors = append(s.Errors, r)
		}
	}
	s.ProcessedCount = len(s.Processed)
	s.SkippedCount = len(s.Skipped)
	s.ErrorCount = len(s.Errors)
	return s
}
