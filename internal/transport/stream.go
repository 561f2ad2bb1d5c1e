package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	datastar "github.com/starfederation/datastar-go/datastar"

	"ludoforge/internal/roomkind"
)

// snapshotMessage is §6's subscription stream snapshot shape:
// {kind:"SNAPSHOT", state, players, version}.
type snapshotMessage struct {
	Kind    string                      `json:"kind"`
	State   json.RawMessage             `json:"state"`
	Players map[string]*roomkind.Player `json:"players"`
	Version int64                       `json:"version"`
}

const heartbeatInterval = 30 * time.Second

// Stream implements subscribe(roomId) (spec §4.7 / §6): a snapshot first,
// then ordered broadcasts, over a server-push connection. Adapted from the
// teacher's StreamLobby/StreamGame (internal/handlers/sse.go): same
// datastar.NewSSE + eventBus.Subscribe/Unsubscribe/heartbeat-ticker shape,
// but emitting this domain's generic JSON snapshot/broadcast events instead
// of datastar signal patches and HTML fragments, since the wire protocol
// here is a general multiplayer event stream, not an HTML-over-the-wire UI.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	room, err := h.Store.Get(roomID)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	sse := datastar.NewSSE(w, r)

	snapshot := snapshotMessage{
		Kind:    "SNAPSHOT",
		State:   room.State,
		Players: room.Players,
		Version: room.Version,
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		http.Error(w, "failed to encode snapshot", http.StatusInternalServerError)
		return
	}
	if err := sse.Send("snapshot", []string{string(snapshotJSON)}); err != nil {
		return
	}

	broadcasts := h.Runtime.Subscribe(roomID)
	defer h.Runtime.Unsubscribe(roomID, broadcasts)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := h.Store.Get(roomID); err != nil {
				return
			}
			if err := sse.Send("keepalive", []string{`{}`}); err != nil {
				return
			}
		case broadcast, ok := <-broadcasts:
			if !ok {
				return
			}
			payload, err := json.Marshal(broadcast)
			if err != nil {
				continue
			}
			if err := sse.Send("broadcast", []string{string(payload)}); err != nil {
				return
			}
		}
	}
}
