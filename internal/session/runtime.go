// Package session is the Session Runtime (spec §4.4): the authority that
// turns a submitted Action into a committed state mutation or a rejection,
// one room at a time, strictly ordered per room.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"ludoforge/internal/eventbus"
	"ludoforge/internal/roomkind"
	"ludoforge/internal/sandbox"
	"ludoforge/internal/store"
	"ludoforge/internal/validatorspec"
)

// Defaults per spec §4.4 "Timeouts".
const (
	DefaultSubmitDeadline    = 24 * time.Second
	DefaultValidatorDeadline = 300 * time.Millisecond
)

// Result is what Submit returns to the transport layer (spec §4.4 step 9).
type Result struct {
	Success      bool
	Error        error
	State        json.RawMessage
	Players      map[string]*roomkind.Player
	StateVersion int64
	Broadcast    *roomkind.Broadcast
}

// GenericConfigLookup resolves the fallback configuration for a room's kind,
// used only when no validator is deployed or the deployed one fails with
// VALIDATOR_TIMEOUT/VALIDATOR_UNAVAILABLE on a standard action kind.
type GenericConfigLookup func(room *roomkind.Room) validatorspec.GenericConfig

// Runtime owns the per-room serialization locks and wires the store, the
// sandbox, and the broadcast bus together per the action-processing
// algorithm in spec §4.4.
type Runtime struct {
	store  store.Store
	sbox   *sandbox.Sandbox
	bus    *eventbus.Bus
	lookup GenericConfigLookup

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	submitDeadline    time.Duration
	validatorDeadline time.Duration
}

// New constructs a Runtime. lookup supplies the generic fallback
// configuration per room; pass a function returning a zero-value
// validatorspec.GenericConfig if no kind-specific tuning is needed.
func New(st store.Store, sbox *sandbox.Sandbox, bus *eventbus.Bus, lookup GenericConfigLookup) *Runtime {
	return &Runtime{
		store:             st,
		sbox:              sbox,
		bus:               bus,
		lookup:            lookup,
		locks:             make(map[string]chan struct{}),
		submitDeadline:    DefaultSubmitDeadline,
		validatorDeadline: DefaultValidatorDeadline,
	}
}

// Configure overrides the default submit/validator deadlines, called from
// cmd/server's SetupServer to apply operator-tunable config. Only the submit
// deadline is enforced by the Runtime; validator invocations are bounded by
// the sandbox's own deadline (sandbox.New), and the stored validator deadline
// is not applied to them.
func (r *Runtime) Configure(submitDeadline, validatorDeadline time.Duration) {
	if submitDeadline > 0 {
		r.submitDeadline = submitDeadline
	}
	if validatorDeadline > 0 {
		r.validatorDeadline = validatorDeadline
	}
}

// lockFor returns the per-room serialization token: a 1-buffered channel
// holding a single token, acquired by receiving and released by sending.
// Unlike sync.Mutex, a channel lets Submit race lock acquisition itself
// against the submit deadline instead of blocking unconditionally.
func (r *Runtime) lockFor(roomID string) chan struct{} {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[roomID]
	if !ok {
		l = make(chan struct{}, 1)
		l <- struct{}{}
		r.locks[roomID] = l
	}
	return l
}

// Submit processes one action against one room, per spec §4.4's nine-step
// algorithm. Actions for the same room are totally ordered by lock
// acquisition; actions across rooms proceed independently. The submit
// deadline starts before lock acquisition is attempted, so a submit queued
// behind a long-running action on the same room fails with TIMEOUT_RETRY
// (no side effects) instead of blocking past its deadline (spec §4.4
// "Timeouts", §5 "Cancellation and timeouts").
func (r *Runtime) Submit(ctx context.Context, roomID string, action roomkind.Action) Result {
	ctx, cancel := context.WithTimeout(ctx, r.submitDeadline)
	defer cancel()

	lock := r.lockFor(roomID)
	select {
	case <-lock:
		defer func() { lock <- struct{}{} }()
	case <-ctx.Done():
		return Result{Success: false, Error: roomkind.ErrTimeoutRetry}
	}

	room, err := r.store.Get(roomID)
	if err != nil {
		return Result{Success: false, Error: roomkind.ErrRoomNotFound}
	}
	if room.ConversionStatus != roomkind.ConversionComplete {
		return Result{Success: false, Error: roomkind.ErrRoomNotReady}
	}

	if err := enforcePreconditions(room, action); err != nil {
		return Result{Success: false, Error: err}
	}

	select {
	case <-ctx.Done():
		return Result{Success: false, Error: roomkind.ErrTimeoutRetry}
	default:
	}

	out, genericResult, err := r.invokeValidator(room, action)
	if err != nil {
		return Result{Success: false, Error: err}
	}

	if genericResult != nil {
		return r.commitGeneric(room, *genericResult)
	}
	return r.commitValidatorOutput(ctx, room, out)
}

// invokeValidator calls the deployed validator if one exists; on
// VALIDATOR_TIMEOUT/VALIDATOR_UNAVAILABLE for a standard action kind it falls
// back to the generic handler (spec §4.4 "Timeouts" and "Generic handlers").
// Exactly one of (out, genericResult) is meaningful in the non-error return.
func (r *Runtime) invokeValidator(room *roomkind.Room, action roomkind.Action) (validatorspec.Output, *validatorspec.GenericResult, error) {
	in := validatorspec.Input{
		Action:    action.Kind,
		State:     room.State,
		PlayerID:  action.PlayerID,
		Data:      action.Data,
		RoomID:    room.ID,
		Timestamp: time.Now(),
	}

	if r.sbox != nil {
		out, err := r.sbox.Invoke(room.ID, in)
		if err == nil {
			return out, nil, nil
		}
		if !action.Kind.IsStandard() {
			return validatorspec.Output{}, nil, err
		}
		if !errors.Is(err, roomkind.ErrValidatorTimeout) && !errors.Is(err, roomkind.ErrValidatorUnavailable) {
			return validatorspec.Output{}, nil, err
		}
		// fall through to generic handler for standard kinds only.
	} else if !action.Kind.IsStandard() {
		return validatorspec.Output{}, nil, roomkind.ErrValidatorUnavailable
	}

	cfg := validatorspec.GenericConfig{}
	if r.lookup != nil {
		cfg = r.lookup(room)
	}
	res, err := validatorspec.ApplyGeneric(room, cfg, in)
	if err != nil {
		return validatorspec.Output{}, nil, err
	}
	return validatorspec.Output{}, &res, nil
}

func (r *Runtime) commitGeneric(room *roomkind.Room, res validatorspec.GenericResult) Result {
	if !res.Valid {
		return Result{Success: false, Error: res.Reason}
	}

	committed, err := r.store.Update(room.ID, func(stored *roomkind.Room) error {
		stored.State = room.State
		stored.Players = room.Players
		stored.PlayerOrder = room.PlayerOrder
		stored.Phase = room.Phase
		stored.Metadata = room.Metadata
		return nil
	})
	if err != nil {
		return Result{Success: false, Error: roomkind.ErrStoreFailure}
	}

	broadcast := roomkind.Broadcast{
		Kind:    res.Broadcast,
		RoomID:  room.ID,
		Version: committed.Version,
		Change:  res.Change,
		State:   committed.State,
	}
	r.bus.Publish(broadcast)

	return Result{
		Success:      true,
		State:        committed.State,
		Players:      committed.Players,
		StateVersion: committed.Version,
		Broadcast:    &broadcast,
	}
}

func (r *Runtime) commitValidatorOutput(ctx context.Context, room *roomkind.Room, out validatorspec.Output) Result {
	if !out.Valid {
		return Result{Success: false, Error: classifyReason(out.Reason)}
	}

	select {
	case <-ctx.Done():
		return Result{Success: false, Error: roomkind.ErrTimeoutRetry}
	default:
	}

	committed, err := r.store.Update(room.ID, func(stored *roomkind.Room) error {
		if len(out.UpdatedState) > 0 {
			stored.State = out.UpdatedState
		}
		applyDeclaredMetadata(stored, out.Metadata)
		return nil
	})
	if err != nil {
		return Result{Success: false, Error: roomkind.ErrStoreFailure}
	}

	var broadcast *roomkind.Broadcast
	if out.Broadcast != nil {
		b := roomkind.Broadcast{
			Kind:    out.Broadcast.Kind,
			RoomID:  room.ID,
			Version: committed.Version,
			Change:  out.Broadcast.Change,
			State:   committed.State,
		}
		r.bus.Publish(b)
		broadcast = &b
	}

	return Result{
		Success:      true,
		State:        committed.State,
		Players:      committed.Players,
		StateVersion: committed.Version,
		Broadcast:    broadcast,
	}
}

func applyDeclaredMetadata(room *roomkind.Room, metadata map[string]interface{}) {
	if metadata == nil {
		return
	}
	if v, ok := metadata[validatorspec.MetaMaxPlayers]; ok {
		if f, ok := v.(float64); ok {
			room.Metadata.MaxPlayers = int(f)
		}
	}
	if v, ok := metadata[validatorspec.MetaMinPlayers]; ok {
		if f, ok := v.(float64); ok {
			room.Metadata.MinPlayers = int(f)
		}
	}
}

// classifyReason maps a validator-supplied reason string back onto the
// sentinel taxonomy when possible, falling back to ErrIllegalMove for an
// unrecognized reason so callers always get a comparable error.
func classifyReason(reason string) error {
	for _, candidate := range []error{
		roomkind.ErrNotYourTurn, roomkind.ErrGameFull, roomkind.ErrDuplicatePlayer,
		roomkind.ErrIllegalMove, roomkind.ErrGameNotActive, roomkind.ErrGameAlreadyActive,
		roomkind.ErrNotEnoughPlayers, roomkind.ErrInvalidActionShape, roomkind.ErrInvalidKind,
	} {
		if candidate.Error() == reason {
			return candidate
		}
	}
	return roomkind.ErrIllegalMove
}

// enforcePreconditions is the Session Runtime's own guard, applied before any
// validator is consulted, for the five standard action kinds (spec §4.4
// step 4). Custom kinds are the validator's sole responsibility.
func enforcePreconditions(room *roomkind.Room, action roomkind.Action) error {
	if !action.Kind.IsStandard() {
		return nil
	}

	switch action.Kind {
	case roomkind.ActionJoin:
		if _, exists := room.Players[action.PlayerID]; exists {
			return roomkind.ErrDuplicatePlayer
		}
	case roomkind.ActionStart:
		if room.Phase != roomkind.PhaseLobby {
			return roomkind.ErrGameAlreadyActive
		}
	case roomkind.ActionMove:
		if _, exists := room.Players[action.PlayerID]; !exists {
			return roomkind.ErrPlayerNotFound
		}
		if room.Phase != roomkind.PhaseActive {
			return roomkind.ErrGameNotActive
		}
	case roomkind.ActionUpdate:
		if _, exists := room.Players[action.PlayerID]; !exists {
			return roomkind.ErrPlayerNotFound
		}
	case roomkind.ActionEnd:
		if _, exists := room.Players[action.PlayerID]; !exists {
			return roomkind.ErrPlayerNotFound
		}
		if room.Phase != roomkind.PhaseActive {
			return roomkind.ErrGameNotActive
		}
	}
	return nil
}

// Snapshot returns the current authoritative state for a room. The transport
// layer's getRoom and stream handlers read the store directly instead.
func (r *Runtime) Snapshot(roomID string) (*roomkind.Room, error) {
	return r.store.Get(roomID)
}

// Subscribe registers a broadcast subscriber for a room.
func (r *Runtime) Subscribe(roomID string) chan roomkind.Broadcast {
	return r.bus.Subscribe(roomID)
}

// Unsubscribe removes a broadcast subscriber.
func (r *Runtime) Unsubscribe(roomID string, ch chan roomkind.Broadcast) {
	r.bus.Unsubscribe(roomID, ch)
}
