package zoom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin/binding"
)

// Webhook event names.
const (
	EventURLValidation      = "endpoint.url_validation"
	EventRecordingCompleted = "recording.completed"
	EventRecordingStarted   = "recording.started"
	EventRecordingStopped   = "recording.stopped"
)

// FileStatusCompleted marks a recording file that is ready for download.
const FileStatusCompleted = "completed"

// Timestamp is a provider time that may be sent as "" or null.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON accepts RFC 3339 strings, "" and null.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// WebhookEvent is the outer envelope of every webhook delivery.
type WebhookEvent struct {
	Event   string          `json:"event"`
	EventTS int64           `json:"event_ts"`
	Payload json.RawMessage `json:"payload"`
}

// URLValidationPayload is the payload of an endpoint.url_validation event.
type URLValidationPayload struct {
	PlainToken string `json:"plainToken"`
}

// URLValidationResponse answers an endpoint.url_validation challenge.
type URLValidationResponse struct {
	PlainToken     string `json:"plainToken"`
	EncryptedToken string `json:"encryptedToken"`
}

// RecordingPayload is the payload of recording.* events.
type RecordingPayload struct {
	AccountID string           `json:"account_id"`
	Object    RecordingMeeting `json:"object"`
}

// RecordingMeeting is one meeting occurrence with its recording files.
type RecordingMeeting struct {
	ID             json.Number     `json:"id" binding:"required"`
	UUID           string          `json:"uuid"`
	HostID         string          `json:"host_id"`
	Topic          string          `json:"topic"`
	StartTime      Timestamp       `json:"start_time"`
	Duration       int             `json:"duration"`
	TotalSize      int64           `json:"total_size"`
	RecordingCount int             `json:"recording_count"`
	RecordingFiles []RecordingFile `json:"recording_files" binding:"dive"`
}

// RecordingFile is one file of a cloud recording.
type RecordingFile struct {
	ID             string    `json:"id" binding:"required"`
	MeetingID      string    `json:"meeting_id"`
	RecordingStart Timestamp `json:"recording_start"`
	RecordingEnd   Timestamp `json:"recording_end"`
	FileType       string    `json:"file_type"`
	FileExtension  string    `json:"file_extension"`
	FileSize       int64     `json:"file_size"`
	DownloadURL    string    `json:"download_url"`
	Status         string    `json:"status"`
	RecordingType  string    `json:"recording_type"`
}

// Validate rejects payloads that cannot identify a meeting or one of its files.
func (m RecordingMeeting) Validate() error {
	if err := binding.Validator.ValidateStruct(m); err != nil {
		return fmt.Errorf("recording payload: %w", err)
	}
	return nil
}

// CompletedFiles returns the files whose status is completed, in order.
func (m RecordingMeeting) CompletedFiles() []RecordingFile {
	var out []RecordingFile
	for _, f := range m.RecordingFiles {
		if f.Status == FileStatusCompleted {
			out = append(out, f)
		}
	}
	return out
}

// ListRecordingsResponse is one page of GET /users/{userId}/recordings.
type ListRecordingsResponse struct {
	From          string             `json:"from"`
	To            string             `json:"to"`
	PageSize      int                `json:"page_size"`
	TotalRecords  int                `json:"total_records"`
	NextPageToken string             `json:"next_page_token"`
	Meetings      []RecordingMeeting `json:"meetings"`
}

// Meeting is the subset of a meeting object from GET /users/{userId}/meetings and GET /meetings/{meetingId}.
type Meeting struct {
	ID        json.Number `json:"id"`
	UUID      string      `json:"uuid"`
	HostID    string      `json:"host_id"`
	Topic     string      `json:"topic"`
	Type      int         `json:"type"`
	Status    string      `json:"status"`
	StartTime Timestamp   `json:"start_time"`
	Duration  int         `json:"duration"`
	Timezone  string      `json:"timezone"`
	JoinURL   string      `json:"join_url"`
}

// ListMeetingsResponse is one page of GET /users/{userId}/meetings.
type ListMeetingsResponse struct {
	PageSize      int       `json:"page_size"`
	TotalRecords  int       `json:"total_records"`
	NextPageToken string    `json:"next_page_token"`
	Meetings      []Meeting `json:"meetings"`
}

// User is the subset of GET /users/{userId} that is used.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}
