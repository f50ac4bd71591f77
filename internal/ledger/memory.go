package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/models"
)

// Memory is an in-process Ledger used for local runs and tests.
type Memory struct {
	mu         sync.Mutex
	nextID     int64
	meetings   map[string]*models.Meeting
	recordings map[string]*models.Recording
	now        func() time.Time
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		meetings:   make(map[string]*models.Meeting),
		recordings: make(map[string]*models.Recording),
		now:        time.Now,
	}
}

func cloneRecording(rec *models.Recording) *models.Recording {
	out := *rec
	out.QualityVariants = append([]string(nil), rec.QualityVariants...)
	if rec.ProcessingStart != nil {
		t := *rec.ProcessingStart
		out.ProcessingStart = &t
	}
	if rec.ProcessingEnd != nil {
		t := *rec.ProcessingEnd
		out.ProcessingEnd = &t
	}
	if rec.ClaimedAt != nil {
		t := *rec.ClaimedAt
		out.ClaimedAt = &t
	}
	return &out
}

// FindRecording returns a copy of the recording, or nil when unknown.
func (m *Memory) FindRecording(_ context.Context, recordingID string) (*models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[recordingID]
	if !ok {
		return nil, nil
	}
	return cloneRecording(rec), nil
}

// ListRecordings returns copies of all recordings, newest first.
func (m *Memory) ListRecordings(_ context.Context) ([]models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]models.Recording, 0, len(m.recordings))
	for _, rec := range m.recordings {
		list = append(list, *cloneRecording(rec))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

// ListProcessing returns processing recordings that carry a transcode job id.
func (m *Memory) ListProcessing(_ context.Context) ([]models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Recording
	for _, rec := range m.recordings {
		if rec.Status == models.RecordingStatusProcessing && rec.TranscodeJobID != "" {
			list = append(list, *cloneRecording(rec))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// Stats counts recordings per status.
func (m *Memory) Stats(_ context.Context) (models.RecordingStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s models.RecordingStats
	for _, rec := range m.recordings {
		s.Total++
		switch rec.Status {
		case models.RecordingStatusPending:
			s.Pending++
		case models.RecordingStatusProcessing:
			s.Processing++
		case models.RecordingStatusCompleted:
			s.Completed++
		case models.RecordingStatusError:
			s.Error++
		}
	}
	return s, nil
}

// UpsertMeeting returns the stored meeting for attrs.MeetingID, inserting it first if needed.
func (m *Memory) UpsertMeeting(_ context.Context, attrs models.MeetingAttrs) (*models.Meeting, error) {
	if attrs.MeetingID == "" {
		return nil, fmt.Errorf("upsert meeting: meeting id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.meetings[attrs.MeetingID]; ok {
		out := *existing
		return &out, nil
	}
	out := *m.insertMeeting(attrs)
	return &out, nil
}

// insertMeeting stores a new meeting. Callers hold m.mu.
func (m *Memory) insertMeeting(attrs models.MeetingAttrs) *models.Meeting {
	m.nextID++
	now := m.now()
	meeting := &models.Meeting{
		ID:        m.nextID,
		MeetingID: attrs.MeetingID,
		UUID:      attrs.UUID,
		Topic:     attrs.Topic,
		HostID:    attrs.HostID,
		StartTime: attrs.StartTime,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.meetings[attrs.MeetingID] = meeting
	return meeting
}

// SyncMeeting inserts the meeting or updates its topic, host and start time in place.
func (m *Memory) SyncMeeting(_ context.Context, attrs models.MeetingAttrs) (*models.Meeting, bool, error) {
	if attrs.MeetingID == "" {
		return nil, false, fmt.Errorf("sync meeting: meeting id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.meetings[attrs.MeetingID]
	if !ok {
		out := *m.insertMeeting(attrs)
		return &out, true, nil
	}
	existing.Topic = attrs.Topic
	existing.HostID = attrs.HostID
	existing.StartTime = attrs.StartTime
	if existing.UUID == "" {
		existing.UUID = attrs.UUID
	}
	existing.UpdatedAt = m.now()
	out := *existing
	return &out, false, nil
}

// FindMeeting returns a copy of the meeting, or nil when unknown.
func (m *Memory) FindMeeting(_ context.Context, meetingID string) (*models.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.meetings[meetingID]
	if !ok {
		return nil, nil
	}
	out := *meeting
	return &out, nil
}

// ListMeetings returns all meetings, latest start first.
func (m *Memory) ListMeetings(_ context.Context) ([]models.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]models.Meeting, 0, len(m.meetings))
	for _, meeting := range m.meetings {
		list = append(list, *meeting)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartTime.After(list[j].StartTime) })
	return list, nil
}

// CreateRecordingPending inserts a claimed pending recording. The check and insert
// share one lock, so concurrent callers get exactly one success.
func (m *Memory) CreateRecordingPending(_ context.Context, meeting *models.Meeting, attrs models.RecordingAttrs) (*models.Recording, error) {
	if meeting == nil || attrs.RecordingID == "" {
		return nil, fmt.Errorf("create recording: meeting and recording id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recordings[attrs.RecordingID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRecording, attrs.RecordingID)
	}
	m.nextID++
	now := m.now()
	rec := &models.Recording{
		ID:                 m.nextID,
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
		CreatedAt:          now,
		UpdatedAt:          now,
		ClaimedAt:          &now,
	}
	m.recordings[attrs.RecordingID] = rec
	return cloneRecording(rec), nil
}

// apply runs mutate on the recording when checkTransition allows it.
func (m *Memory) apply(recordingID, next, jobID string, mutate func(rec *models.Recording, now time.Time)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[recordingID]
	if !ok {
		return fmt.Errorf("%w: recording %s", ErrNotFound, recordingID)
	}
	ok, err := checkTransition(rec, next, jobID)
	if err != nil || !ok {
		return err
	}
	now := m.now()
	rec.Status = next
	rec.UpdatedAt = now
	rec.ClaimedAt = nil
	mutate(rec, now)
	return nil
}

func claimable(rec *models.Recording, staleBefore time.Time) bool {
	return rec.Status == models.RecordingStatusPending && (rec.ClaimedAt == nil || rec.ClaimedAt.Before(staleBefore))
}

// ClaimPending takes over a pending recording whose claim is released or stale.
func (m *Memory) ClaimPending(_ context.Context, recordingID string, staleBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[recordingID]
	if !ok || !claimable(rec, staleBefore) {
		return false, nil
	}
	now := m.now()
	rec.ClaimedAt = &now
	rec.UpdatedAt = now
	return true, nil
}

// ReleasePending clears the claim on a pending recording.
func (m *Memory) ReleasePending(_ context.Context, recordingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.recordings[recordingID]; ok && rec.Status == models.RecordingStatusPending {
		rec.ClaimedAt = nil
		rec.UpdatedAt = m.now()
	}
	return nil
}

// ListPending returns resumable pending recordings, oldest first.
func (m *Memory) ListPending(_ context.Context, staleBefore time.Time) ([]models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Recording
	for _, rec := range m.recordings {
		if claimable(rec, staleBefore) {
			list = append(list, *cloneRecording(rec))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// MarkProcessing records the submitted job and its output prefix.
func (m *Memory) MarkProcessing(_ context.Context, recordingID, jobID, streamingPrefix string) error {
	return m.apply(recordingID, models.RecordingStatusProcessing, jobID, func(rec *models.Recording, now time.Time) {
		rec.TranscodeJobID = jobID
		rec.StreamingPrefix = streamingPrefix
		rec.ProcessingStart = &now
	})
}

// MarkCompleted moves a non-terminal recording to completed.
func (m *Memory) MarkCompleted(_ context.Context, recordingID string, variants []string) error {
	return m.apply(recordingID, models.RecordingStatusCompleted, "", func(rec *models.Recording, now time.Time) {
		if variants != nil {
			rec.QualityVariants = append([]string(nil), variants...)
		}
		rec.ErrorMessage = ""
		rec.ProcessingEnd = &now
	})
}

// MarkError moves a non-terminal recording to error with message.
func (m *Memory) MarkError(_ context.Context, recordingID, message string) error {
	return m.apply(recordingID, models.RecordingStatusError, "", func(rec *models.Recording, now time.Time) {
		rec.ErrorMessage = message
		rec.ProcessingEnd = &now
	})
}

// ReleaseErrored deletes a recording in error status.
func (m *Memory) ReleaseErrored(_ context.Context, recordingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[recordingID]
	if !ok {
		return fmt.Errorf("%w: recording %s", ErrNotFound, recordingID)
	}
	if rec.Status != models.RecordingStatusError {
		return fmt.Errorf("%w: recording %s is %s, only error rows can be released", ErrInvalidTransition, recordingID, rec.Status)
	}
	delete(m.recordings, recordingID)
	return nil
}

var _ Ledger = (*Memory)(nil)
