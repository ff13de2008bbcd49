package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealth_AlwaysOK(t *testing.T) {
	s := NewServer("127.0.0.1", 0)

	rec, body := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestReady_FollowsProbe(t *testing.T) {
	s := NewServer("127.0.0.1", 0)

	rec, _ := get(t, s, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var ready atomic.Bool
	s.SetReadyFunc(ready.Load)
	rec, _ = get(t, s, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready.Store(true)
	rec, body := get(t, s, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestStatus_ServesProvider(t *testing.T) {
	s := NewServer("127.0.0.1", 0)

	rec, _ := get(t, s, "/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.SetStatusFunc(func() any {
		return map[string]any{"state": "COOLING_DOWN", "turns": 0}
	})
	rec, body := get(t, s, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "COOLING_DOWN", body["state"])
	assert.EqualValues(t, 0, body["turns"])
}

func TestAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:18791", NewServer("127.0.0.1", 18791).Addr())
}
