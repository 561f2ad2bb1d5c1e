package validatorspec

import (
	"encoding/json"
	"fmt"
	"time"

	"ludoforge/internal/roomkind"
)

// GenericConfig parameterizes the built-in fallback handlers (spec §4.4
// "Generic handlers"), used whenever no validator is deployed for a room, or
// as the per-standard-kind fallback when the sandbox reports
// ErrValidatorUnavailable / ErrValidatorTimeout.
type GenericConfig struct {
	TurnBased   bool
	Board       bool
	TargetScore int // 0 disables the target-score win check
	MaxPlayers  int // 0 means "use the kind-determined default"
	MinPlayers  int // 0 means 1
}

// DefaultMaxPlayers mirrors spec §4.4's JOIN rule: 2 for turn-based/board kinds,
// 8 otherwise.
func DefaultMaxPlayers(turnBased, board bool) int {
	if turnBased || board {
		return 2
	}
	return 8
}

// GenericResult is what ApplyGeneric reports back to the caller (the Session
// Runtime), which folds it into the roomkind.Broadcast envelope and commits
// the version bump.
type GenericResult struct {
	Valid     bool
	Reason    error
	Broadcast roomkind.BroadcastKind
	Change    string
}

// ApplyGeneric mutates room in place (Players, PlayerOrder, Phase, Metadata,
// State) for one of the five standard action kinds. It never touches custom
// kinds — callers must reject those before calling in (spec §4.4 step 4: "For
// custom kinds, return failure" when no validator is available).
func ApplyGeneric(room *roomkind.Room, cfg GenericConfig, in Input) (GenericResult, error) {
	if cfg.MaxPlayers == 0 {
		cfg.MaxPlayers = DefaultMaxPlayers(cfg.TurnBased, cfg.Board)
	}
	if cfg.MinPlayers == 0 {
		cfg.MinPlayers = 1
	}

	state, err := decodeState(room.State)
	if err != nil {
		return GenericResult{}, fmt.Errorf("decode room state: %w", err)
	}

	switch in.Action {
	case roomkind.ActionJoin:
		return applyJoin(room, cfg, in, state)
	case roomkind.ActionStart:
		return applyStart(room, cfg, state)
	case roomkind.ActionMove:
		return applyMove(room, cfg, in, state)
	case roomkind.ActionUpdate:
		return applyUpdate(room, in, state)
	case roomkind.ActionEnd:
		return applyEnd(room, in, state)
	default:
		return GenericResult{}, roomkind.ErrInvalidKind
	}
}

func decodeState(raw json.RawMessage) (map[string]interface{}, error) {
	state := map[string]interface{}{}
	if len(raw) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return state, nil
}

func encodeState(room *roomkind.Room, state map[string]interface{}) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	room.State = raw
	return nil
}

func applyJoin(room *roomkind.Room, cfg GenericConfig, in Input, state map[string]interface{}) (GenericResult, error) {
	if _, exists := room.Players[in.PlayerID]; exists {
		return GenericResult{Valid: false, Reason: roomkind.ErrDuplicatePlayer}, nil
	}
	if len(room.Players) >= cfg.MaxPlayers {
		return GenericResult{Valid: false, Reason: roomkind.ErrGameFull}, nil
	}

	player := &roomkind.Player{ID: in.PlayerID, JoinedAt: time.Now(), Active: true}
	room.AddPlayer(player)

	if cfg.TurnBased && len(room.Players) == 1 {
		room.Metadata.CurrentTurn = in.PlayerID
		state["currentTurn"] = in.PlayerID
	}
	if err := encodeState(room, state); err != nil {
		return GenericResult{}, err
	}
	return GenericResult{Valid: true, Broadcast: roomkind.BroadcastPlayerJoined, Change: "player joined: " + in.PlayerID}, nil
}

func applyStart(room *roomkind.Room, cfg GenericConfig, state map[string]interface{}) (GenericResult, error) {
	if room.Phase != roomkind.PhaseLobby {
		return GenericResult{Valid: false, Reason: roomkind.ErrGameAlreadyActive}, nil
	}
	if len(room.Players) < cfg.MinPlayers {
		return GenericResult{Valid: false, Reason: roomkind.ErrNotEnoughPlayers}, nil
	}

	room.Phase = roomkind.PhaseActive
	room.Metadata.StartedAt = time.Now()
	room.Metadata.Round = 1
	state["phase"] = string(roomkind.PhaseActive)
	state["round"] = 1

	if err := encodeState(room, state); err != nil {
		return GenericResult{}, err
	}
	return GenericResult{Valid: true, Broadcast: roomkind.BroadcastGameStarted, Change: "game started"}, nil
}

func applyMove(room *roomkind.Room, cfg GenericConfig, in Input, state map[string]interface{}) (GenericResult, error) {
	if room.Phase != roomkind.PhaseActive {
		return GenericResult{Valid: false, Reason: roomkind.ErrGameNotActive}, nil
	}
	if cfg.TurnBased && room.Metadata.CurrentTurn != in.PlayerID {
		return GenericResult{Valid: false, Reason: roomkind.ErrNotYourTurn}, nil
	}

	var payload map[string]interface{}
	if len(in.Data) > 0 {
		if err := json.Unmarshal(in.Data, &payload); err != nil {
			return GenericResult{}, fmt.Errorf("%w: %v", roomkind.ErrInvalidActionShape, err)
		}
	}

	change := "move by " + in.PlayerID

	// Board position, if present ("row"/"col" in the action payload).
	if cfg.Board && payload != nil {
		if _, ok := payload["row"]; ok {
			row, col := asInt(payload["row"]), asInt(payload["col"])
			board, _ := state["board"].(map[string]interface{})
			if board == nil {
				board = map[string]interface{}{}
			}
			key := fmt.Sprintf("%d,%d", row, col)
			if _, occupied := board[key]; occupied {
				return GenericResult{Valid: false, Reason: roomkind.ErrIllegalMove}, nil
			}
			board[key] = in.PlayerID
			state["board"] = board
		}
	}

	// Counter-style delta, matching the counter-race scenario in spec §8.
	if payload != nil {
		if delta, ok := payload["delta"]; ok {
			state["counter"] = asInt(state["counter"]) + asInt(delta)
		}
	}

	// Score accrual merged into the player record, mirrored into state for
	// client display.
	if payload != nil {
		if scoreDelta, ok := payload["scoreDelta"]; ok {
			if p := room.Players[in.PlayerID]; p != nil {
				p.Score += asFloat(scoreDelta)
				p.HasScore = true
			}
		}
	}

	winner := ""
	if cfg.TargetScore > 0 && asInt(state["counter"]) >= cfg.TargetScore {
		winner = in.PlayerID
	}
	if cfg.Board {
		if w := boardWinner(state); w != "" {
			winner = w
		}
	}

	if cfg.TurnBased {
		room.Metadata.CurrentTurn = room.NextTurnHolder(in.PlayerID)
		state["currentTurn"] = room.Metadata.CurrentTurn
	}

	broadcastKind := roomkind.BroadcastMoveMade
	if winner != "" {
		state["winner"] = winner
		room.Phase = roomkind.PhaseEnded
		room.Metadata.EndedAt = time.Now()
		state["phase"] = string(roomkind.PhaseEnded)
		broadcastKind = roomkind.BroadcastGameEnded
		change = "game ended, winner: " + winner
	}

	if err := encodeState(room, state); err != nil {
		return GenericResult{}, err
	}
	return GenericResult{Valid: true, Broadcast: broadcastKind, Change: change}, nil
}

// boardWinner checks three-in-a-row on a 3x3 board indexed by "row,col"
// (spec §4.4 MOVE generic win condition).
func boardWinner(state map[string]interface{}) string {
	board, _ := state["board"].(map[string]interface{})
	if board == nil {
		return ""
	}
	lines := [][3][2]int{
		{{0, 0}, {0, 1}, {0, 2}}, {{1, 0}, {1, 1}, {1, 2}}, {{2, 0}, {2, 1}, {2, 2}},
		{{0, 0}, {1, 0}, {2, 0}}, {{0, 1}, {1, 1}, {2, 1}}, {{0, 2}, {1, 2}, {2, 2}},
		{{0, 0}, {1, 1}, {2, 2}}, {{0, 2}, {1, 1}, {2, 0}},
	}
	cellOwner := func(r, c int) string {
		v, ok := board[fmt.Sprintf("%d,%d", r, c)]
		if !ok {
			return ""
		}
		s, _ := v.(string)
		return s
	}
	for _, line := range lines {
		a := cellOwner(line[0][0], line[0][1])
		if a == "" {
			continue
		}
		b := cellOwner(line[1][0], line[1][1])
		c := cellOwner(line[2][0], line[2][1])
		if a == b && b == c {
			return a
		}
	}
	return ""
}

func applyUpdate(room *roomkind.Room, in Input, state map[string]interface{}) (GenericResult, error) {
	if room.Phase == roomkind.PhaseEnded {
		return GenericResult{Valid: false, Reason: roomkind.ErrGameNotActive}, nil
	}
	var payload map[string]interface{}
	if len(in.Data) > 0 {
		if err := json.Unmarshal(in.Data, &payload); err != nil {
			return GenericResult{}, fmt.Errorf("%w: %v", roomkind.ErrInvalidActionShape, err)
		}
	}
	for k, v := range payload {
		if k == "player" {
			if p := room.Players[in.PlayerID]; p != nil {
				if m, ok := v.(map[string]interface{}); ok {
					mergePlayer(p, m)
				}
			}
			continue
		}
		state[k] = v
	}
	if err := encodeState(room, state); err != nil {
		return GenericResult{}, err
	}
	return GenericResult{Valid: true, Broadcast: roomkind.BroadcastStateUpdate, Change: "state updated by " + in.PlayerID}, nil
}

func mergePlayer(p *roomkind.Player, fields map[string]interface{}) {
	if v, ok := fields["score"]; ok {
		p.Score = asFloat(v)
		p.HasScore = true
	}
	if v, ok := fields["lives"]; ok {
		p.Lives = asInt(v)
		p.HasLives = true
	}
	if v, ok := fields["eliminated"]; ok {
		if b, ok := v.(bool); ok {
			p.Eliminated = b
		}
	}
}

func applyEnd(room *roomkind.Room, in Input, state map[string]interface{}) (GenericResult, error) {
	if room.Phase != roomkind.PhaseActive {
		return GenericResult{Valid: false, Reason: roomkind.ErrGameNotActive}, nil
	}
	room.Phase = roomkind.PhaseEnded
	room.Metadata.EndedAt = time.Now()
	state["phase"] = string(roomkind.PhaseEnded)
	if err := encodeState(room, state); err != nil {
		return GenericResult{}, err
	}
	return GenericResult{Valid: true, Broadcast: roomkind.BroadcastGameEnded, Change: "game ended by " + in.PlayerID}, nil
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}
