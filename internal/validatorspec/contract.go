// Package validatorspec defines the Validator Module contract (spec §4.6): the
// pure function signature every synthesized or generic validator implements,
// plus the JS template synthesizer and the Go-native generic fallback.
package validatorspec

import (
	"encoding/json"
	"time"

	"ludoforge/internal/roomkind"
)

// Input is the argument bundle passed to a validator invocation.
type Input struct {
	Action    roomkind.ActionKind `json:"action"`
	State     json.RawMessage     `json:"state"`
	PlayerID  string              `json:"playerId"`
	Data      json.RawMessage     `json:"data,omitempty"`
	RoomID    string              `json:"roomId"`
	Timestamp time.Time           `json:"timestamp"`
}

// BroadcastHint is the validator-declared broadcast shape; the Session Runtime
// folds it into a full roomkind.Broadcast with room id and version.
type BroadcastHint struct {
	Kind   roomkind.BroadcastKind `json:"kind"`
	Change string                 `json:"change,omitempty"`
}

// Output is what a validator invocation produces.
type Output struct {
	Valid        bool                   `json:"valid"`
	Reason       string                 `json:"reason,omitempty"`
	UpdatedState json.RawMessage        `json:"updatedState,omitempty"`
	Broadcast    *BroadcastHint         `json:"broadcast,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Metadata keys a validator may declare in its initial-state Output.Metadata to
// override the Session Runtime's generic defaults (spec §4.6 "Allowed declarations").
const (
	MetaMaxPlayers = "maxPlayers"
	MetaMinPlayers = "minPlayers"
)

// Invoker is what the Session Runtime calls; sandbox.Sandbox and the in-process
// generic fallback both implement it.
type Invoker interface {
	Invoke(in Input) (Output, error)
}

// InvokerFunc adapts a function to an Invoker.
type InvokerFunc func(in Input) (Output, error)

func (f InvokerFunc) Invoke(in Input) (Output, error) { return f(in) }
