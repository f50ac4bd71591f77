package recordings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ingest"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ledger"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/models"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/playback"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/zoom"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/storage"
)

func httptestBody(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}
type fakeProvider struct {
	meetings []zoom.RecordingMeeting
	err      error
	lookups  int
}

func (p *fakeProvider) ListRecordings(context.Context, string) ([]zoom.RecordingMeeting, error) {
	return p.meetings, p.err
}

func (p *fakeProvider) HostName(_ context.Context, hostID string) string {
	p.lookups++
	return "Host " + hostID
}

type fakeIngester struct {
	got []ingest.Descriptor
}

func (f *fakeIngester) IngestBatch(_ context.Context, descs []ingest.Descriptor) []ingest.Result {
	f.got = append(f.got, descs...)
	out := make([]ingest.Result, len(descs))
	for i, d := range descs {
		out[i] = ingest.Result{ID: d.RecordingID, Status: ingest.StatusProcessed}
		if d.FileExtension != "MP4" {
			out[i].Status = ingest.StatusSkipped
			out[i].Reason = ingest.ReasonUnsupportedType
		}
	}
	return out
}

type fixedLocation struct {
	name string
	keys map[string]bool
}

func (l fixedLocation) Name() string { return l.name }

func (l fixedLocation) Exists(_ context.Context, key string) (bool, error) { return l.keys[key], nil }

func (l fixedLocation) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://" + l.name + "/" + key + "?sig", nil
}

func seedLedger(t *testing.T) *ledger.Memory {
	t.Helper()
	ctx := context.Background()
	l := ledger.NewMemory()
	meeting, err := l.UpsertMeeting(ctx, models.MeetingAttrs{MeetingID: "m_1", StartTime: time.Now()})
	require.NoError(t, err)
	for _, id := range []string{"rec_ok", "rec_bad"} {
		_, err := l.CreateRecordingPending(ctx, meeting, models.RecordingAttrs{RecordingID: id, FileExtension: "MP4", OriginalStorageKey: "recordings/m_1/" + id + ".mp4"})
		require.NoError(t, err)
	}
	require.NoError(t, l.MarkProcessing(ctx, "rec_ok", "job_secret", "outputs/recordings/m_1/rec_ok"))
	require.NoError(t, l.MarkCompleted(ctx, "rec_ok", []string{"1080p", "720p", "480p"}))
	require.NoError(t, l.MarkError(ctx, "rec_bad", "download failed"))
	return l
}

type fakeObjects struct {
	objects []storage.Object
	err     error
	prefix  string
}

func (f *fakeObjects) Name() string { return "originals" }

func (f *fakeObjects) List(_ context.Context, prefix string) ([]storage.Object, error) {
	f.prefix = prefix
	return f.objects, f.err
}

func apiRouter(l *ledger.Memory, puller Puller) *gin.Engine {
	return apiRouterWithObjects(l, puller, nil)
}

func apiRouterWithObjects(l *ledger.Memory, puller Puller, objects ObjectLister) *gin.Engine {
	gin.SetMode(gin.TestMode)
	streaming := fixedLocation{name: "streaming", keys: map[string]bool{"outputs/recordings/m_1/rec_ok/rec_ok.m3u8": true}}
	originals := fixedLocation{name: "originals", keys: map[string]bool{}}
	resolver := playback.NewResolver(l, []playback.Location{streaming, originals}, originals, time.Hour, nil)
	r := gin.New()
	NewHandler(l, resolver, puller, objects, nil).Register(r)
	return r
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestStreamURL(t *testing.T) {
	r := apiRouter(seedLedger(t), nil)

	w := do(r, http.MethodGet, "/recordings/rec_ok/stream-url")
	require.Equal(t, http.StatusOK, w.Code)
	var p playback.Playback
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &p))
	assert.Equal(t, playback.StatusSuccess, p.Status)
	assert.Equal(t, playback.TypeMultiRendition, p.Type)
	assert.Len(t, p.URLs, 4)

	w = do(r, http.MethodGet, "/recordings/rec_bad/stream-url")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &p))
	assert.Equal(t, playback.StatusError, p.Status)
	assert.Equal(t, "download failed", p.Message)

	w = do(r, http.MethodGet, "/recordings/nope/stream-url")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, decode(t, w).Success)
}

func TestListGetAndStats(t *testing.T) {
	r := apiRouter(seedLedger(t), nil)

	w := do(r, http.MethodGet, "/recordings")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "job_secret")
	assert.NotContains(t, w.Body.String(), "outputs/recordings")
	var list []models.Recording
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
	assert.Len(t, list, 2)

	w = do(r, http.MethodGet, "/recordings/rec_ok")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "job_secret")

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/recordings/nope").Code)

	w = do(r, http.MethodGet, "/recordings/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.RecordingStats
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &stats))
	assert.Equal(t, models.RecordingStats{Total: 2, Completed: 1, Error: 1}, stats)
}

func TestRelease(t *testing.T) {
	l := seedLedger(t)
	r := apiRouter(l, nil)

	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/recordings/rec_ok/release").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/recordings/nope/release").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/recordings/rec_bad/release").Code)

	rec, err := l.FindRecording(context.Background(), "rec_bad")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestProcessSummary(t *testing.T) {
	var meetings []zoom.RecordingMeeting
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id":1,"uuid":"u1","host_id":"h_1","topic":"A","recording_files":[
			{"id":"r1","file_extension":"MP4","status":"completed","download_url":"https://zoom.us/d/r1"},
			{"id":"r2","file_extension":"M4A","status":"completed","download_url":"https://zoom.us/d/r2"},
			{"id":"r3","file_extension":"MP4","status":"processing"}]},
		{"id":2,"uuid":"u2","host_id":"h_1","topic":"B","recording_files":[
			{"id":"r4","file_extension":"MP4","status":"completed","download_url":"https://zoom.us/d/r4"}]}
	]`), &meetings))
	provider := &fakeProvider{meetings: meetings}
	ingester := &fakeIngester{}
	r := apiRouter(seedLedger(t), NewSweeper(provider, ingester, "", nil))

	w := do(r, http.MethodPost, "/recordings/process")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary ingest.Summary
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &summary))
	assert.Equal(t, 2, summary.ProcessedCount)
	assert.Equal(t, 1, summary.SkippedCount)
	assert.Len(t, summary.Processed, 2)
	assert.Equal(t, ingest.ReasonUnsupportedType, summary.Skipped[0].Reason)

	require.Len(t, ingester.got, 3)
	assert.Equal(t, "Host h_1", ingester.got[0].HostName)
	assert.Equal(t, 1, provider.lookups)
}

func TestProcessProviderAuthFailure(t *testing.T) {
	provider := &fakeProvider{err: &zoom.AuthError{StatusCode: http.StatusUnauthorized, Body: "invalid client"}}
	ingester := &fakeIngester{}
	r := apiRouter(seedLedger(t), NewSweeper(provider, ingester, "", nil))

	w := do(r, http.MethodPost, "/recordings/process")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decode(t, w).Error, "authentication")
	assert.Empty(t, ingester.got)
}

func TestProcessWithoutProvider(t *testing.T) {
	r := apiRouter(seedLedger(t), nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodPost, "/recordings/process").Code)
}

type ctxPuller struct {
	ctx context.Context
}

func (p *ctxPuller) Sweep(ctx context.Context) (ingest.Summary, error) {
	p.ctx = ctx
	return ingest.Summarize(nil), nil
}

func TestProcessOutlivesClientDisconnect(t *testing.T) {
	puller := &ctxPuller{}
	r := apiRouter(seedLedger(t), puller)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/recordings/process", nil).WithContext(ctx))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, puller.ctx)
	assert.NoError(t, puller.ctx.Err())
}

func TestStoredOriginals(t *testing.T) {
	modified := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	objects := &fakeObjects{objects: []storage.Object{
		{Key: "recordings/m_1/rec_ok.mp4", Size: 1024, LastModified: modified},
		{Key: "recordings/m_1/rec_bad.mp4", Size: 2048, LastModified: modified},
	}}
	r := apiRouterWithObjects(seedLedger(t), nil, objects)

	w := do(r, http.MethodGet, "/recordings/storage")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "recordings/", objects.prefix)

	var body struct {
		Bucket  string           `json:"bucket"`
		Count   int              `json:"count"`
		Objects []storage.Object `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &body))
	assert.Equal(t, "originals", body.Bucket)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "recordings/m_1/rec_ok.mp4", body.Objects[0].Key)
	assert.Equal(t, int64(1024), body.Objects[0].Size)
}

func TestStoredOriginalsErrors(t *testing.T) {
	r := apiRouterWithObjects(seedLedger(t), nil, &fakeObjects{err: errors.New("AccessDenied")})
	assert.Equal(t, http.StatusBadGateway, do(r, http.MethodGet, "/recordings/storage").Code)

	r = apiRouter(seedLedger(t), nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/recordings/storage").Code)

	r = apiRouterWithObjects(seedLedger(t), nil, &fakeObjects{})
	w := do(r, http.MethodGet, "/recordings/storage")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"objects":[]`)
}
