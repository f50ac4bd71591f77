package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedWatchers int

func (w fixedWatchers) Active() int { return int(w) }

type fixedQueue struct {
	n   int64
	err error
}

func (q fixedQueue) Len(context.Context) (int64, error) { return q.n, q.err }

func getHealth(t *testing.T, h gin.HandlerFunc) map[string]any {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Data
}

func TestHealthInProcessMode(t *testing.T) {
	data := getHealth(t, healthHandler(fixedWatchers(3), nil, zap.NewNop()))
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, float64(3), data["watchers"])
	assert.NotContains(t, data, "queue_depth")
}

func TestHealthReportsQueueDepth(t *testing.T) {
	data := getHealth(t, healthHandler(fixedWatchers(0), fixedQueue{n: 7}, zap.NewNop()))
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, float64(7), data["queue_depth"])

	data = getHealth(t, healthHandler(fixedWatchers(0), fixedQueue{err: errors.New("connection refused")}, zap.NewNop()))
	assert.Equal(t, "degraded", data["status"])
	assert.NotContains(t, data, "queue_depth")
}
