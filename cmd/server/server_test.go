package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ludoforge/internal/config"
)

func testConfig(t *testing.T) *config.ServerConfig {
	t.Helper()
	cfg, err := config.LoadConfig("nonexistent.yaml")
	require.NoError(t, err)
	cfg.Sandbox.InvocationDeadline = 200 * time.Millisecond
	return cfg
}

func TestSetupServerHealthEndpoints(t *testing.T) {
	handler := SetupServer(testConfig(t))

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestSetupServerRoomLifecycle(t *testing.T) {
	handler := SetupServer(testConfig(t))

	createBody, _ := json.Marshal(map[string]interface{}{
		"roomId":       "ROOM01",
		"kind":         "custom",
		"initialState": json.RawMessage(`{"count":0}`),
	})
	req := httptest.NewRequest(http.MethodPost, "/rooms", bytes.NewReader(createBody))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/rooms/ROOM01", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/rooms/MISSING", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
