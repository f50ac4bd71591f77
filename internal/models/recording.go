package models

import (
	"time"
)

// Recording lifecycle statuses. Only these values are surfaced to clients.
const (
	RecordingStatusPending    = "pending"
	RecordingStatusProcessing = "processing"
	RecordingStatusCompleted  = "completed"
	RecordingStatusError      = "error"
)

// IsTerminalRecordingStatus reports whether status can no longer change.
func IsTerminalRecordingStatus(status string) bool {
	return status == RecordingStatusCompleted || status == RecordingStatusError
}

// Recording is one provider recording file and its ingest/transcode state.
type Recording struct {
	ID                 int64      `json:"-"`
	RecordingID        string     `json:"recording_id"`
	MeetingRef         int64      `json:"-"`
	MeetingID          string     `json:"meeting_id"`
	Topic              string     `json:"topic"`
	HostName           string     `json:"host_name"`
	FileType           string     `json:"file_type"`
	FileExtension      string     `json:"file_extension"`
	FileSizeBytes      int64      `json:"file_size"`
	RecordingStart     time.Time  `json:"recording_start"`
	RecordingEnd       time.Time  `json:"recording_end"`
	OriginalStorageKey string     `json:"-"`
	DownloadURL        string     `json:"-"`
	StreamingPrefix    string     `json:"-"`
	TranscodeJobID     string     `json:"-"`
	QualityVariants    []string   `json:"quality_variants"`
	Status             string     `json:"status"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	ProcessingStart    *time.Time `json:"processing_start,omitempty"`
	ProcessingEnd      *time.Time `json:"processing_end,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	// ClaimedAt is when an ingestion last took ownership of a pending row. Nil means released.
	ClaimedAt          *time.Time `json:"-"`
}

// RecordingAttrs carries the fields supplied when a recording row is first created.
type RecordingAttrs struct {
	RecordingID        string
	Topic              string
	HostName           string
	FileType           string
	FileExtension      string
	FileSizeBytes      int64
	RecordingStart     time.Time
	RecordingEnd       time.Time
	OriginalStorageKey string
	DownloadURL        string
}

// RecordingStats counts recordings per status.
type RecordingStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Error      int `json:"error"`
}
