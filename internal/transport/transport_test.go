package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ludoforge/internal/conversion"
	"ludoforge/internal/eventbus"
	"ludoforge/internal/roomkind"
	"ludoforge/internal/sandbox"
	"ludoforge/internal/session"
	"ludoforge/internal/store"
	"ludoforge/internal/validatorspec"
)

// withChiParam attaches a chi URL param to a request's context, mirroring
// the teacher's own test pattern (internal/handlers/actions_test.go).
func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func newTestHandler() *Handler {
	st := store.NewMemoryStore(5 * time.Second)
	sbox := sandbox.New(200 * time.Millisecond)
	bus := eventbus.New()
	lookup := func(room *roomkind.Room) validatorspec.GenericConfig {
		return validatorspec.GenericConfig{MaxPlayers: 8, MinPlayers: 1}
	}
	runtime := session.New(st, sbox, bus, lookup)
	pipeline := conversion.New(st, conversion.NewMemoryArtifactStore(), sbox, conversion.StubLLM{}, 2)
	return New(runtime, pipeline, st, bus)
}

func TestCreateRoomThenSubmitJoin(t *testing.T) {
	h := newTestHandler()

	body, _ := json.Marshal(map[string]interface{}{
		"roomId":       "ROOMZZ",
		"kind":         "custom",
		"initialState": json.RawMessage(`{}`),
	})
	req := httptest.NewRequest(http.MethodPost, "/rooms", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.CreateRoom(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	action, _ := json.Marshal(map[string]interface{}{"type": "JOIN", "playerId": "p1"})
	req = httptest.NewRequest(http.MethodPost, "/rooms/ROOMZZ/actions", bytes.NewReader(action))
	req = withChiParam(req, "id", "ROOMZZ")
	w = httptest.NewRecorder()
	h.Submit(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Players, "p1")
}

func TestSubmitAgainstMissingRoomReturnsNotFound(t *testing.T) {
	h := newTestHandler()

	action, _ := json.Marshal(map[string]interface{}{"type": "JOIN", "playerId": "p1"})
	req := httptest.NewRequest(http.MethodPost, "/rooms/GHOST/actions", bytes.NewReader(action))
	req = withChiParam(req, "id", "GHOST")
	w := httptest.NewRecorder()
	h.Submit(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	var resp submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "ROOM_NOT_FOUND", resp.Error)
}

func TestGetDocumentServesConvertedArtifact(t *testing.T) {
	h := newTestHandler()

	sourceDoc := `<html><body><button id="go">Go</button></body></html>`
	room, err := h.Pipeline.RequestConversion("ROOMDOC", sourceDoc)
	require.NoError(t, err)
	_ = room

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r, _ := h.Pipeline.Status("ROOMDOC")
		if r.ConversionStatus == roomkind.ConversionComplete || r.ConversionStatus == roomkind.ConversionFailed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	req := httptest.NewRequest(http.MethodGet, "/rooms/ROOMDOC/document", nil)
	req = withChiParam(req, "id", "ROOMDOC")
	w := httptest.NewRecorder()
	h.GetDocument(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "LudoBridge")
}

func TestListRoomsFiltersByKind(t *testing.T) {
	h := newTestHandler()

	for _, kind := range []string{"board", "board", "custom"} {
		body, _ := json.Marshal(map[string]interface{}{"kind": kind, "initialState": json.RawMessage(`{}`)})
		req := httptest.NewRequest(http.MethodPost, "/rooms", bytes.NewReader(body))
		w := httptest.NewRecorder()
		h.CreateRoom(w, req)
	}

	req := httptest.NewRequest(http.MethodGet, "/rooms?kind=board", nil)
	w := httptest.NewRecorder()
	h.ListRooms(w, req)

	var resp struct {
		Rooms []roomSummary `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Rooms, 2)
}
