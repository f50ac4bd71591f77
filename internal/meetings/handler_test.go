package meetings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ledger"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/models"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/zoom"
)

func newRouter(t *testing.T, signer Signer) *gin.Engine {
	t.Helper()
	r, _ := newRouterWithProvider(t, signer, nil)
	return r
}

func newRouterWithProvider(t *testing.T, signer Signer, provider Provider) (*gin.Engine, *ledger.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	l := ledger.NewMemory()
	_, err := l.UpsertMeeting(context.Background(), models.MeetingAttrs{
		MeetingID: "85012345678", UUID: "u-1", Topic: "Weekly", HostID: "h_1", StartTime: time.Now(),
	})
	require.NoError(t, err)
	r := gin.New()
	NewHandler(l, signer, provider, "sdk-key", "", nil).Register(r)
	return r, l
}

// newZoomAPI serves the token, meeting list and meeting detail endpoints.
func newZoomAPI(t *testing.T, tokenStatus int) *zoom.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		if tokenStatus != http.StatusOK {
			http.Error(w, `{"reason":"Invalid client_id or client_secret"}`, tokenStatus)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v2/users/me/meetings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if r.URL.Query().Get("next_page_token") == "" {
			_, _ = w.Write([]byte(`{"next_page_token":"p2","meetings":[
				{"id":85012345678,"uuid":"u-1","host_id":"h_9","topic":"Weekly planning","start_time":"2024-03-04T15:00:00Z"},
				{"id":85099990000,"uuid":"u-2","host_id":"h_1","topic":"Kickoff","start_time":"2024-03-05T15:00:00Z"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"next_page_token":"","meetings":[{"id":85077770000,"uuid":"u-3","host_id":"h_1","topic":"Retro","start_time":"2024-03-06T15:00:00Z"}]}`))
	})
	mux.HandleFunc("/v2/meetings/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/meetings/85012345678" {
			http.Error(w, `{"code":3001,"message":"Meeting does not exist"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id":85012345678,"topic":"Weekly planning","status":"started","start_time":"2024-03-04T15:00:00Z","duration":45,"join_url":"https://zoom.us/j/85012345678"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return zoom.NewClient(zoom.Config{
		AccountID:    "acct",
		ClientID:     "cid",
		ClientSecret: "csecret",
		APIBaseURL:   srv.URL + "/v2",
		OAuthBaseURL: srv.URL,
	}, srv.Client(), nil, nil)
}

func post(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
	return w
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestListAndGet(t *testing.T) {
	r := newRouter(t, nil)

	w := get(r, "/meetings")
	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data []models.Meeting `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Len(t, env.Data, 1)
	assert.Equal(t, "Weekly", env.Data[0].Topic)

	assert.Equal(t, http.StatusOK, get(r, "/meetings/85012345678").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/meetings/1").Code)
}

func TestSDKSignature(t *testing.T) {
	r := newRouter(t, zoom.NewSDKSigner("sdk-key", "sdk-secret"))

	w := get(r, "/meetings/85012345678/sdk-signature?role=1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var env struct {
		Data SignatureResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, zoom.RoleHost, env.Data.Role)
	assert.Equal(t, "sdk-key", env.Data.SDKKey)

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(env.Data.Signature, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("sdk-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "85012345678", claims["mn"])
	assert.EqualValues(t, 1, claims["role"])
}

func TestSDKSignatureErrors(t *testing.T) {
	r := newRouter(t, zoom.NewSDKSigner("sdk-key", "sdk-secret"))
	assert.Equal(t, http.StatusBadRequest, get(r, "/meetings/85012345678/sdk-signature?role=7").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/meetings/85012345678/sdk-signature?role=host").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/meetings/1/sdk-signature").Code)

	unconfigured := newRouter(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(unconfigured, "/meetings/85012345678/sdk-signature").Code)
}

func TestSyncCreatesAndUpdates(t *testing.T) {
	r, l := newRouterWithProvider(t, nil, newZoomAPI(t, http.StatusOK))

	w := post(r, "/meetings/sync")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var env struct {
		Data SyncSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, SyncSummary{Total: 3, Created: 2, Updated: 1}, env.Data)

	m, err := l.FindMeeting(context.Background(), "85012345678")
	require.NoError(t, err)
	assert.Equal(t, "Weekly planning", m.Topic)
	assert.Equal(t, "h_9", m.HostID)
	assert.Equal(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC), m.StartTime)

	list, err := l.ListMeetings(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 3)

	w = post(r, "/meetings/sync")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, SyncSummary{Total: 3, Updated: 3}, env.Data)
}

func TestSyncErrors(t *testing.T) {
	r, _ := newRouterWithProvider(t, nil, newZoomAPI(t, http.StatusUnauthorized))
	w := post(r, "/meetings/sync")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "authentication")

	unconfigured := newRouter(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, post(unconfigured, "/meetings/sync").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(unconfigured, "/meetings/85012345678/status").Code)
}

func TestMeetingStatus(t *testing.T) {
	r, l := newRouterWithProvider(t, nil, newZoomAPI(t, http.StatusOK))

	w := get(r, "/meetings/85012345678/status")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var env struct {
		Data StatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "started", env.Data.Status)
	assert.Equal(t, 45, env.Data.Duration)
	require.NotNil(t, env.Data.StartTime)
	assert.Equal(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC), env.Data.StartTime.UTC())

	assert.Equal(t, http.StatusNotFound, get(r, "/meetings/1/status").Code)

	// Stored locally but gone at the provider.
	_, err := l.UpsertMeeting(context.Background(), models.MeetingAttrs{MeetingID: "85000000001", StartTime: time.Now()})
	require.NoError(t, err)
	w = get(r, "/meetings/85000000001/status")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "provider")
}
