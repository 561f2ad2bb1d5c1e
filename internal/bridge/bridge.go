// Package bridge is the Go-side half of the Event Bridge (spec §4.1): the
// marker vocabulary and envelope types the Conversion Pipeline injects into a
// converted document, plus the embedded client-side library implementing
// them inside that document's sandboxed frame.
package bridge

import (
	_ "embed"
	"encoding/json"
	"time"
)

//go:embed static/bridge.js
var clientSource string

// ClientSource returns the embedded bridge client library source, to be
// concatenated into a converted document's bundle at conversion time (spec
// §4.3 step 6, "inject bridge").
func ClientSource() string { return clientSource }

// Marker attribute names the bridge's auto-interception logic looks for on
// DOM elements, and that the Conversion Pipeline's instrumentation step
// writes onto elements the analyzer identified (spec §4.1 "Marker injection",
// GLOSSARY "Marker").
const (
	ActionMarker = "data-bridge-action"
	StateMarker  = "data-bridge-state"
	TouchMarker  = "data-bridge-touch"
)

// EventKind identifies the four event kinds the client emits to its host.
type EventKind string

const (
	EventTransition EventKind = "TRANSITION"
	EventInteraction EventKind = "INTERACTION"
	EventUpdate      EventKind = "UPDATE"
	EventError       EventKind = "ERROR"
)

// EventMeta carries the envelope metadata spec §3 requires alongside every
// emitted event.
type EventMeta struct {
	RoomID    string    `json:"roomId"`
	PlayerID  string    `json:"playerId"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	Sequence  int64     `json:"sequence"`
	Priority  bool      `json:"priority"`
}

// Event is one observation emitted by the game document to its host. Events
// never mutate server state directly; they are consumed by bridge
// subscribers (e.g. a conversion-quality telemetry sink) and are orthogonal
// to roomkind.Action/Broadcast, which carry the actual game-state traffic.
type Event struct {
	Kind EventKind       `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
	Meta EventMeta       `json:"meta"`
}

// HostEnvelope is the structured postMessage payload the bridge posts to its
// enclosing host (spec §4.1 "Host-frame transport").
type HostEnvelope struct {
	Source   string  `json:"source"`
	RoomID   string  `json:"roomId"`
	PlayerID string  `json:"playerId"`
	Events   []Event `json:"events"`
}

// SourceTag is the constant HostEnvelope.Source value the host uses to
// distinguish bridge messages from other postMessage traffic.
const SourceTag = "ludoforge-bridge"

// HostMessageKind identifies the four kinds of message a host can push down
// into the bridge, each independently subscribable via on(kind, handler)
// (spec §4.1, §6 "on(kind, handler)").
type HostMessageKind string

const (
	HostStateUpdate  HostMessageKind = "STATE_UPDATE"
	HostPlayerAction HostMessageKind = "PLAYER_ACTION"
	HostGameEvent    HostMessageKind = "GAME_EVENT"
	HostConfigUpdate HostMessageKind = "CONFIG_UPDATE"
)

// HostMessage is the structured postMessage payload a host posts down into
// the bridge's sandboxed frame (spec §4.1 "Host-frame transport"): the
// opposite direction of HostEnvelope, addressed by `target` rather than
// `source` and carrying one `type` at a time rather than a batch of events.
type HostMessage struct {
	Target string          `json:"target"`
	RoomID string          `json:"roomId"`
	Type   HostMessageKind `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
}
