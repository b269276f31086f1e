package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSystemHealth(t *testing.T) {
	s := newTestServer(&countingJob{})

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/system/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health SystemHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Greater(t, health.Goroutines, 0)
	assert.GreaterOrEqual(t, health.UptimeSeconds, 0.0)
	assert.GreaterOrEqual(t, health.CPUPercent, 0.0)
	assert.GreaterOrEqual(t, health.MemoryUsedPercent, 0.0)
}

func TestHandleSystemInfo(t *testing.T) {
	s := newTestServer(&countingJob{})

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/system/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info SystemInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "tailrisk", info.Service)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.NumCPU(), info.NumCPU)
	assert.NotEmpty(t, info.StartedAt)
}

func TestHandleTriggerRefresh(t *testing.T) {
	t.Run("runs the job", func(t *testing.T) {
		job := &countingJob{}
		s := newTestServer(job)

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/system/jobs/refresh", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, job.runs)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "success", body["status"])
	})

	t.Run("job failure is a 500", func(t *testing.T) {
		job := &countingJob{err: errors.New("history db locked")}
		s := newTestServer(job)

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/system/jobs/refresh", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("missing job reports an error status", func(t *testing.T) {
		s := newTestServer(nil)

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/system/jobs/refresh", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "error", body["status"])
	})
}
