package validatorspec

import (
	"bytes"
	"fmt"
	"text/template"

	"ludoforge/internal/analyzer"
)

// templateData is what the synthesized validator module's JS sees as
// compile-time constants, derived from the analysis report (spec §4.3 step 7:
// "Synthesize the validator module using a template parameterized by the
// analysis report").
type templateData struct {
	Kind        string
	TurnBased   bool
	Board       bool
	BoardDim    int
	TargetScore int
	MaxPlayers  int
	MinPlayers  int
}

// validatorJSTemplate produces a self-contained script defining a single
// global function (EntryPoint) matching the contract in Input/Output:
// validate({action, state, playerId, data, roomId, timestamp}) -> output.
// It mirrors the Go-native generic handlers in generic.go field-for-field, so
// a deployed-but-unexceptional game behaves identically whether the sandbox
// or the fallback path handles a given action.
const validatorJSTemplate = `// Generated for kind "{{.Kind}}". Do not hand-edit; regenerate from the
// source document's analysis report instead.
function validate(input) {
  const state = input.state && Object.keys(input.state).length ? input.state : {};
  const players = state.players || {};
  const playerOrder = state.playerOrder || [];
  const maxPlayers = {{.MaxPlayers}};
  const minPlayers = {{.MinPlayers}};

  function activeIds() {
    return playerOrder.filter((id) => players[id] && !players[id].eliminated);
  }

  function nextTurn(current) {
    const active = activeIds();
    if (active.length === 0) return "";
    if (active.length === 1) return active[0];
    const idx = active.indexOf(current);
    return active[(idx + 1) % active.length];
  }

  function fail(reason) {
    return { valid: false, reason, timestamp: input.timestamp };
  }

  function ok(broadcastKind, change) {
    return {
      valid: true,
      updatedState: state,
      broadcast: { kind: broadcastKind, change },
      timestamp: input.timestamp,
    };
  }

  switch (input.action) {
    case "JOIN": {
      if (players[input.playerId]) return fail("DUPLICATE_PLAYER");
      if (playerOrder.length >= maxPlayers) return fail("GAME_FULL");
      players[input.playerId] = { joinedAt: input.timestamp, eliminated: false };
      playerOrder.push(input.playerId);
      {{if .TurnBased}}if (playerOrder.length === 1) state.currentTurn = input.playerId;{{end}}
      state.players = players;
      state.playerOrder = playerOrder;
      return ok("PLAYER_JOINED", "player joined: " + input.playerId);
    }
    case "START": {
      if (state.phase === "active" || state.phase === "ended") return fail("GAME_ALREADY_ACTIVE");
      if (playerOrder.length < minPlayers) return fail("NOT_ENOUGH_PLAYERS");
      state.phase = "active";
      state.round = 1;
      return ok("GAME_STARTED", "game started");
    }
    case "MOVE": {
      if (state.phase !== "active") return fail("GAME_NOT_ACTIVE");
      {{if .TurnBased}}if (state.currentTurn !== input.playerId) return fail("NOT_YOUR_TURN");{{end}}
      const data = input.data || {};
      let winner = "";
      {{if .Board}}
      if (typeof data.row === "number") {
        state.board = state.board || {};
        const key = data.row + "," + data.col;
        if (state.board[key]) return fail("ILLEGAL_MOVE");
        state.board[key] = input.playerId;
        winner = boardWinner(state.board) || winner;
      }
      {{end}}
      if (typeof data.delta === "number") {
        state.counter = (state.counter || 0) + data.delta;
        {{if gt .TargetScore 0}}if (state.counter >= {{.TargetScore}}) winner = input.playerId;{{end}}
      }
      {{if .TurnBased}}state.currentTurn = nextTurn(input.playerId);{{end}}
      let kind = "MOVE_MADE";
      let change = "move by " + input.playerId;
      if (winner) {
        state.winner = winner;
        state.phase = "ended";
        kind = "GAME_ENDED";
        change = "game ended, winner: " + winner;
      }
      return ok(kind, change);
    }
    case "UPDATE": {
      if (state.phase === "ended") return fail("GAME_NOT_ACTIVE");
      const data = input.data || {};
      for (const key of Object.keys(data)) {
        if (key === "player" && players[input.playerId]) {
          Object.assign(players[input.playerId], data.player);
          continue;
        }
        state[key] = data[key];
      }
      state.players = players;
      return ok("STATE_UPDATE", "state updated by " + input.playerId);
    }
    case "END": {
      if (state.phase !== "active") return fail("GAME_NOT_ACTIVE");
      state.phase = "ended";
      return ok("GAME_ENDED", "game ended by " + input.playerId);
    }
    default:
      return fail("INVALID_KIND");
  }
}

{{if .Board}}
function boardWinner(board) {
  const dim = {{.BoardDim}};
  const lines = [];
  for (let r = 0; r < dim; r++) {
    const row = [];
    for (let c = 0; c < dim; c++) row.push([r, c]);
    lines.push(row);
  }
  for (let c = 0; c < dim; c++) {
    const col = [];
    for (let r = 0; r < dim; r++) col.push([r, c]);
    lines.push(col);
  }
  const diagA = [], diagB = [];
  for (let i = 0; i < dim; i++) {
    diagA.push([i, i]);
    diagB.push([i, dim - 1 - i]);
  }
  lines.push(diagA, diagB);

  for (const line of lines) {
    const owners = line.map(([r, c]) => board[r + "," + c]);
    if (owners[0] && owners.every((o) => o === owners[0])) return owners[0];
  }
  return "";
}
{{end}}
`

// EntryPoint is the global binding sandbox.Sandbox looks up after running a
// compiled artifact; every template render exposes the same name.
const EntryPoint = "validate"

var parsedValidatorTemplate = template.Must(template.New("validator").Parse(validatorJSTemplate))

// SynthesizeJS renders the validator module source for a given analysis
// report. The Conversion Pipeline deploys the result to the Validator
// Sandbox, which keeps it as an artifact addressed by its sha256; it is not
// embedded in the published document.
func SynthesizeJS(report analyzer.Report) (string, error) {
	dim := report.Elements.BoardDimension
	if dim == 0 && report.Mechanics.Board {
		dim = 3
	}
	target := 0
	if report.Mechanics.Score && !report.Mechanics.Board {
		target = 10
	}
	data := templateData{
		Kind:        report.Kind,
		TurnBased:   report.Mechanics.Turns,
		Board:       report.Mechanics.Board,
		BoardDim:    dim,
		TargetScore: target,
		MaxPlayers:  DefaultMaxPlayers(report.Mechanics.Turns, report.Mechanics.Board),
		MinPlayers:  1,
	}
	if report.Mechanics.Turns || report.Mechanics.Board {
		data.MinPlayers = 2
	}

	var buf bytes.Buffer
	if err := parsedValidatorTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render validator template: %w", err)
	}
	return buf.String(), nil
}

// GenericConfigFromReport derives the Go-native fallback configuration from
// the same analysis report, so the sandboxed JS and the in-process fallback
// agree on max/min players and win thresholds.
func GenericConfigFromReport(report analyzer.Report) GenericConfig {
	cfg := GenericConfig{
		TurnBased:  report.Mechanics.Turns,
		Board:      report.Mechanics.Board,
		MaxPlayers: DefaultMaxPlayers(report.Mechanics.Turns, report.Mechanics.Board),
		MinPlayers: 1,
	}
	if cfg.TurnBased || cfg.Board {
		cfg.MinPlayers = 2
	}
	if report.Mechanics.Score && !report.Mechanics.Board {
		cfg.TargetScore = 10
	}
	return cfg
}
