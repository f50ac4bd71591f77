package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ledger"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/models"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/transcode"
)

const tick = 5 * time.Millisecond

var ladder = []string{"1080p", "720p", "480p"}

type step struct {
	state transcode.State
	msg   string
	err   error
}

// scriptedSource replays steps per job and repeats the last one.
type scriptedSource struct {
	mu    sync.Mutex
	steps map[string][]step
	calls map[string]int
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{steps: make(map[string][]step), calls: make(map[string]int)}
}

func (s *scriptedSource) script(jobID string, steps ...step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[jobID] = steps
}

func (s *scriptedSource) GetJobStatus(_ context.Context, jobID string) (transcode.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := s.steps[jobID]
	i := s.calls[jobID]
	s.calls[jobID]++
	if len(steps) == 0 {
		return transcode.JobStatus{State: transcode.StateProgressing}, nil
	}
	if i >= len(steps) {
		i = len(steps) - 1
	}
	st := steps[i]
	if st.err != nil {
		return transcode.JobStatus{}, st.err
	}
	return transcode.JobStatus{State: st.state, Message: st.msg}, nil
}

func (s *scriptedSource) callCount(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[jobID]
}

func processingRecording(t *testing.T, l ledger.Ledger, recordingID, jobID string) {
	t.Helper()
	ctx := context.Background()
	meeting, err := l.UpsertMeeting(ctx, models.MeetingAttrs{MeetingID: "m_1", UUID: "uuid-1", StartTime: time.Now()})
	require.NoError(t, err)
	_, err = l.CreateRecordingPending(ctx, meeting, models.RecordingAttrs{RecordingID: recordingID, FileExtension: "MP4"})
	require.NoError(t, err)
	require.NoError(t, l.MarkProcessing(ctx, recordingID, jobID, "outputs/recordings/m_1/"+recordingID))
}

func statusOf(t *testing.T, l ledger.Ledger, recordingID string) *models.Recording {
	t.Helper()
	rec, err := l.FindRecording(context.Background(), recordingID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

func TestWatcherCompletes(t *testing.T) {
	l := ledger.NewMemory()
	processingRecording(t, l, "rec_1", "job_1")
	src := newScriptedSource()
	src.script("job_1", step{state: transcode.StateSubmitted}, step{state: transcode.StateProgressing}, step{state: transcode.StateComplete})

	w := NewWatcher("job_1", "rec_1", src, l, ladder, tick, nil)
	w.Start()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not finish")
	}

	rec := statusOf(t, l, "rec_1")
	assert.Equal(t, models.RecordingStatusCompleted, rec.Status)
	assert.Equal(t, ladder, rec.QualityVariants)
	assert.Equal(t, 3, src.callCount("job_1"))
}

func TestWatcherTransientErrorsDoNotFailRecording(t *testing.T) {
	l := ledger.NewMemory()
	processingRecording(t, l, "rec_1", "job_1")
	src := newScriptedSource()
	src.script("job_1",
		step{err: errors.New("dial tcp: i/o timeout")},
		step{err: errors.New("throttled")},
		step{state: transcode.StateError, msg: "unsupported codec"},
	)

	w := NewWatcher("job_1", "rec_1", src, l, ladder, tick, nil)
	w.Start()
	<-w.Done()

	rec := statusOf(t, l, "rec_1")
	assert.Equal(t, models.RecordingStatusError, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "job_1")
	assert.Contains(t, rec.ErrorMessage, "unsupported codec")
}

func TestWatcherCanceledJob(t *testing.T) {
	l := ledger.NewMemory()
	processingRecording(t, l, "rec_1", "job_1")
	src := newScriptedSource()
	src.script("job_1", step{state: transcode.StateCanceled})

	w := NewWatcher("job_1", "rec_1", src, l, ladder, tick, nil)
	w.Start()
	<-w.Done()

	rec := statusOf(t, l, "rec_1")
	assert.Equal(t, models.RecordingStatusError, rec.Status)
	assert.Contains(t, rec.ErrorMessage, string(transcode.StateCanceled))
}

func TestWatcherStopLeavesProcessing(t *testing.T) {
	l := ledger.NewMemory()
	processingRecording(t, l, "rec_1", "job_1")
	src := newScriptedSource()
	src.script("job_1", step{err: errors.New("unreachable")})

	w := NewWatcher("job_1", "rec_1", src, l, ladder, tick, nil)
	w.Start()
	require.Eventually(t, func() bool { return src.callCount("job_1") >= 3 }, time.Second, tick)
	w.Stop()

	rec := statusOf(t, l, "rec_1")
	assert.Equal(t, models.RecordingStatusProcessing, rec.Status)
	assert.Empty(t, rec.ErrorMessage)
}

func TestWatcherConflictingOutcomeStops(t *testing.T) {
	l := ledger.NewMemory()
	processingRecording(t, l, "rec_1", "job_1")
	require.NoError(t, l.MarkCompleted(context.Background(), "rec_1", ladder))
	src := newScriptedSource()
	src.script("job_1", step{state: transcode.StateError, msg: "late failure"})

	w := NewWatcher("job_1", "rec_1", src, l, ladder, tick, nil)
	w.Start()
	<-w.Done()

	rec := statusOf(t, l, "rec_1")
	assert.Equal(t, models.RecordingStatusCompleted, rec.Status)
	assert.Equal(t, 1, src.callCount("job_1"))
}

func TestRegistryDedupsAndRemovesFinished(t *testing.T) {
	l := ledger.NewMemory()
	processingRecording(t, l, "rec_1", "job_1")
	src := newScriptedSource()
	src.script("job_1", step{state: transcode.StateProgressing}, step{state: transcode.StateProgressing}, step{state: transcode.StateComplete})

	reg := NewRegistry(src, l, ladder, tick, nil)
	defer reg.Shutdown()
	assert.True(t, reg.Watch("job_1", "rec_1"))
	assert.False(t, reg.Watch("job_1", "rec_1"))

	require.Eventually(t, func() bool { return reg.Active() == 0 }, 2*time.Second, tick)
	assert.Equal(t, models.RecordingStatusCompleted, statusOf(t, l, "rec_1").Status)
}

func TestRegistryRecover(t *testing.T) {
	l := ledger.NewMemory()
	processingRecording(t, l, "rec_1", "job_1")
	processingRecording(t, l, "rec_2", "job_2")
	src := newScriptedSource()
	src.script("job_1", step{state: transcode.StateComplete})

	reg := NewRegistry(src, l, ladder, tick, nil)
	started, err := reg.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, started)

	require.Eventually(t, func() bool {
		return statusOf(t, l, "rec_1").Status == models.RecordingStatusCompleted
	}, 2*time.Second, tick)

	reg.Shutdown()
	assert.Equal(t, 0, reg.Active())
	assert.Equal(t, models.RecordingStatusProcessing, statusOf(t, l, "rec_2").Status)
	assert.False(t, reg.Watch("job_3", "rec_3"))
}
