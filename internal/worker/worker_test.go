package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ingest"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/queue"
)

type fakeIngester struct {
	mu     sync.Mutex
	result ingest.Result
	seen   []ingest.Descriptor
}

func (f *fakeIngester) Ingest(_ context.Context, d ingest.Descriptor) ingest.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, d)
	return f.result
}

type fakeQueue struct {
	mu      sync.Mutex
	jobs    []*queue.Job
	retried []*queue.Job
}

func (q *fakeQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		select {
		case <-ctx.Done():
		case <-time.After(time.Millisecond):
		}
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

func (q *fakeQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	q.retried = append(q.retried, job)
	return nil
}

func (q *fakeQueue) retries() []*queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*queue.Job(nil), q.retried...)
}

func ingestJob(t *testing.T, id string) *queue.Job {
	t.Helper()
	body, err := json.Marshal(ingest.Descriptor{RecordingID: id, MeetingID: "m_1", FileExtension: "MP4"})
	require.NoError(t, err)
	return &queue.Job{ID: "job-" + id, Type: queue.JobTypeRecordingIngest, Payload: body}
}

func TestProcessDecodesDescriptor(t *testing.T) {
	ing := &fakeIngester{result: ingest.Result{Status: ingest.StatusProcessed}}
	p := NewIngestProcessor(ing, &fakeQueue{}, nil)

	require.NoError(t, p.Process(context.Background(), ingestJob(t, "rec_1")))
	require.Len(t, ing.seen, 1)
	assert.Equal(t, "rec_1", ing.seen[0].RecordingID)
	assert.Equal(t, "m_1", ing.seen[0].MeetingID)
}

func TestProcessRetriesOnlyRetryableResults(t *testing.T) {
	ing := &fakeIngester{result: ingest.Result{Status: ingest.StatusError, Error: "ledger unavailable", Retry: true}}
	p := NewIngestProcessor(ing, &fakeQueue{}, nil)
	assert.Error(t, p.Process(context.Background(), ingestJob(t, "rec_1")))

	ing.result = ingest.Result{Status: ingest.StatusError, Error: "download failed"}
	assert.NoError(t, p.Process(context.Background(), ingestJob(t, "rec_1")))

	ing.result = ingest.Result{Status: ingest.StatusSkipped, Reason: ingest.ReasonAlreadyIngested}
	assert.NoError(t, p.Process(context.Background(), ingestJob(t, "rec_1")))
}

func TestProcessRejectsBadJobs(t *testing.T) {
	p := NewIngestProcessor(&fakeIngester{}, &fakeQueue{}, nil)
	err := p.Process(context.Background(), &queue.Job{ID: "x", Type: "other"})
	assert.ErrorIs(t, err, ErrUnknownJobType)

	err = p.Process(context.Background(), &queue.Job{ID: "y", Type: queue.JobTypeRecordingIngest, Payload: json.RawMessage(`"nope"`)})
	assert.Error(t, err)
}

func TestRunRetriesFailedJobs(t *testing.T) {
	ing := &fakeIngester{result: ingest.Result{Status: ingest.StatusError, Error: "boom", Retry: true}}
	q := &fakeQueue{jobs: []*queue.Job{ingestJob(t, "rec_1"), {ID: "bad", Type: "other"}}}
	p := NewIngestProcessor(ing, q, nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(q.retries()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	retried := q.retries()
	assert.Equal(t, 1, retried[0].Attempt)
	assert.Equal(t, queue.MaxRetries+1, retried[1].Attempt)
}
