// Package transport is the Transport Layer (spec §4.7): a chi router binding
// the external interfaces of §6 to the Session Runtime, Conversion Pipeline
// and Room Registry, generalized from the teacher's internal/handlers
// package (its card-game room/lobby/game pages become createRoom,
// requestConversion, submit, getRoom, listRooms and a broadcast stream).
package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ludoforge/internal/conversion"
	"ludoforge/internal/eventbus"
	"ludoforge/internal/qrshare"
	"ludoforge/internal/roomkind"
	"ludoforge/internal/session"
	"ludoforge/internal/store"
)

// Handler holds the dependencies every route needs, mirroring the teacher's
// own Handler struct (internal/handlers/handlers.go) but wired to the new
// domain's runtime instead of a card-game store and role service.
type Handler struct {
	Runtime  *session.Runtime
	Pipeline *conversion.Pipeline
	Store    store.Store
	Bus      *eventbus.Bus
}

// New constructs a Handler.
func New(runtime *session.Runtime, pipeline *conversion.Pipeline, st store.Store, bus *eventbus.Bus) *Handler {
	return &Handler{Runtime: runtime, Pipeline: pipeline, Store: st, Bus: bus}
}

// createRoomRequest is the body of POST /rooms.
type createRoomRequest struct {
	RoomID       string                      `json:"roomId"`
	Kind         string                      `json:"kind"`
	InitialState json.RawMessage             `json:"initialState"`
	Players      map[string]*roomkind.Player `json:"players,omitempty"`
	Metadata     *roomkind.Metadata          `json:"metadata,omitempty"`
}

// CreateRoom implements createRoom(roomId, kind, initialState, players?,
// metadata?) (spec §6): persists a new room directly in the complete
// conversion state, bypassing the pipeline for callers that already have a
// document/validator pair (e.g. a game published out of band).
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, roomkind.ErrInvalidActionShape)
		return
	}
	if req.RoomID == "" {
		req.RoomID, _ = store.GenerateRoomID(h.Store)
	}

	room := roomkind.NewRoom(req.RoomID, "")
	room.Kind = req.Kind
	room.State = req.InitialState
	room.ConversionStatus = roomkind.ConversionComplete
	if req.Players != nil {
		room.Players = req.Players
		for id := range req.Players {
			room.PlayerOrder = append(room.PlayerOrder, id)
		}
	}
	if req.Metadata != nil {
		room.Metadata = *req.Metadata
	}

	if err := h.Store.Put(room); err != nil {
		writeError(w, http.StatusInternalServerError, roomkind.ErrStoreFailure)
		return
	}
	writeJSON(w, http.StatusCreated, roomView(room))
}

// requestConversionRequest is the body of POST /rooms/{id}/convert.
type requestConversionRequest struct {
	SourceDocument string `json:"sourceDocument"`
}

// RequestConversion implements requestConversion(roomId, sourceDocument)
// (spec §6): kicks off the pending->processing->complete|failed pipeline.
func (h *Handler) RequestConversion(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	var req requestConversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, roomkind.ErrInvalidActionShape)
		return
	}

	room, err := h.Pipeline.RequestConversion(roomID, req.SourceDocument)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, roomView(room))
}

// GetRoom implements getRoom(roomId) (spec §6).
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	room, err := h.Store.Get(roomID)
	if err != nil {
		writeError(w, http.StatusNotFound, roomkind.ErrRoomNotFound)
		return
	}
	writeJSON(w, http.StatusOK, roomView(room))
}

// ListRooms implements listRooms(kindFilter?) (spec §6).
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.Store.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, roomkind.ErrStoreFailure)
		return
	}
	kindFilter := r.URL.Query().Get("kind")
	views := make([]roomSummary, 0, len(rooms))
	for _, room := range rooms {
		if kindFilter != "" && room.Kind != kindFilter {
			continue
		}
		views = append(views, roomView(room))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": views})
}

// submitResponse mirrors the §6 action submission response shape:
// {success, state?, players?, stateVersion?, broadcast?, error?, timestamp}.
type submitResponse struct {
	Success      bool                        `json:"success"`
	State        json.RawMessage             `json:"state,omitempty"`
	Players      map[string]*roomkind.Player `json:"players,omitempty"`
	StateVersion int64                       `json:"stateVersion,omitempty"`
	Broadcast    *roomkind.Broadcast         `json:"broadcast,omitempty"`
	Error        string                      `json:"error,omitempty"`
	Retryable    bool                        `json:"retryable,omitempty"`
	Timestamp    time.Time                   `json:"timestamp"`
}

// Submit implements submit(roomId, action) (spec §6).
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	var action roomkind.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeSubmitError(w, http.StatusBadRequest, roomkind.ErrInvalidActionShape)
		return
	}
	if action.Kind == "" {
		writeSubmitError(w, http.StatusBadRequest, roomkind.ErrInvalidActionShape)
		return
	}

	result := h.Runtime.Submit(r.Context(), roomID, action)
	if !result.Success {
		writeSubmitError(w, statusForError(result.Error), result.Error)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Success:      true,
		State:        result.State,
		Players:      result.Players,
		StateVersion: result.StateVersion,
		Broadcast:    result.Broadcast,
		Timestamp:    time.Now(),
	})
}

// SharePNG serves a QR code encoding the room's join URL (supplemented
// feature, grounded on the teacher's host-dashboard QR code).
func (h *Handler) SharePNG(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if _, err := h.Store.Get(roomID); err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	png, err := qrshare.GeneratePNG(qrshare.ShareURL(baseURL(r), roomID))
	if err != nil {
		http.Error(w, "failed to render QR code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// GetDocument serves a room's instrumented, bridge-injected document, the
// artifact a joining client's browser actually loads and plays. Content can
// run to hundreds of KB once the bridge client and a converted game's own
// markup are combined, so the router compresses this route.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	room, err := h.Store.Get(roomID)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if room.ConversionStatus != roomkind.ConversionComplete {
		http.Error(w, "room has no published document yet", http.StatusConflict)
		return
	}

	document, ok := h.Pipeline.Document(room.DocumentRef)
	if !ok {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(document))
}

// roomSummary is the wire shape for a room in list/get responses, per §6's
// "persisted room layout (logical)".
type roomSummary struct {
	RoomID           string                      `json:"roomId"`
	Kind             string                      `json:"kind"`
	DocumentRef      string                      `json:"documentRef,omitempty"`
	ValidatorRef     string                      `json:"validatorRef,omitempty"`
	State            json.RawMessage             `json:"state,omitempty"`
	Players          map[string]*roomkind.Player `json:"players,omitempty"`
	Metadata         roomkind.Metadata           `json:"metadata"`
	Version          int64                       `json:"version"`
	Phase            roomkind.Phase              `json:"phase"`
	ConversionStatus roomkind.ConversionStatus   `json:"conversionStatus"`
	ConversionError  string                      `json:"conversionError,omitempty"`
}

func roomView(room *roomkind.Room) roomSummary {
	return roomSummary{
		RoomID:           room.ID,
		Kind:             room.Kind,
		DocumentRef:      room.DocumentRef,
		ValidatorRef:     room.ValidatorRef,
		State:            room.State,
		Players:          room.Players,
		Metadata:         room.Metadata,
		Version:          room.Version,
		Phase:            room.Phase,
		ConversionStatus: room.ConversionStatus,
		ConversionError:  room.ConversionError,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeSubmitError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, submitResponse{
		Success:   false,
		Error:     err.Error(),
		Retryable: roomkind.Retryable(err),
		Timestamp: time.Now(),
	})
}

// statusForError maps the §7 error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, roomkind.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, roomkind.ErrRoomNotReady), errors.Is(err, roomkind.ErrRoomTerminated):
		return http.StatusConflict
	case errors.Is(err, roomkind.ErrInvalidActionShape), errors.Is(err, roomkind.ErrInvalidKind), errors.Is(err, roomkind.ErrPayloadTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, roomkind.ErrNotYourTurn), errors.Is(err, roomkind.ErrGameFull),
		errors.Is(err, roomkind.ErrDuplicatePlayer), errors.Is(err, roomkind.ErrIllegalMove),
		errors.Is(err, roomkind.ErrGameNotActive), errors.Is(err, roomkind.ErrGameAlreadyActive),
		errors.Is(err, roomkind.ErrNotEnoughPlayers), errors.Is(err, roomkind.ErrPlayerNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, roomkind.ErrTimeoutRetry), errors.Is(err, roomkind.ErrValidatorTimeout),
		errors.Is(err, roomkind.ErrValidatorUnavailable), errors.Is(err, roomkind.ErrValidatorLimit):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// baseURL resolves the externally visible scheme+host for a request,
// following the teacher's getBaseURL (internal/handlers/sse.go), which
// respects X-Forwarded-Proto/X-Forwarded-Host for deployments behind a proxy.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := r.Host
	if forwarded := r.Header.Get("X-Forwarded-Host"); forwarded != "" {
		host = forwarded
	}
	return scheme + "://" + host
}
