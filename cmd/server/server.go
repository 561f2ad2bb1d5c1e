package main

import (
	"net/http"

	"ludoforge/internal/config"
	"ludoforge/internal/conversion"
	"ludoforge/internal/eventbus"
	"ludoforge/internal/roomkind"
	"ludoforge/internal/sandbox"
	"ludoforge/internal/session"
	"ludoforge/internal/store"
	"ludoforge/internal/transport"
	"ludoforge/internal/validatorspec"
)

// SetupServer builds the fully wired HTTP handler: config, Room Registry,
// Validator Sandbox, Conversion Pipeline, Session Runtime, EventBus and
// Transport Layer, mirroring the teacher's own SetupServer (cmd/server/server.go)
// as the single assembly point shared by main() and integration tests.
func SetupServer(cfg *config.ServerConfig) http.Handler {
	st := store.NewMemoryStore(cfg.Store.CacheFreshFor)
	sbox := sandbox.New(cfg.Sandbox.InvocationDeadline)
	artifacts := conversion.NewMemoryArtifactStore()
	bus := eventbus.New()

	lookup := func(room *roomkind.Room) validatorspec.GenericConfig {
		return validatorspec.GenericConfig{
			TurnBased:   room.Metadata.TurnBased,
			Board:       room.Metadata.Board,
			TargetScore: room.Metadata.TargetScore,
			MaxPlayers:  room.Metadata.MaxPlayers,
			MinPlayers:  room.Metadata.MinPlayers,
		}
	}

	runtime := session.New(st, sbox, bus, lookup)
	runtime.Configure(cfg.Session.SubmitDeadline, cfg.Session.ValidatorDeadline)

	pipeline := conversion.New(st, artifacts, sbox, conversion.StubLLM{}, cfg.Conversion.Concurrency)

	h := transport.New(runtime, pipeline, st, bus)
	return transport.SetupRouter(h, cfg, nil)
}
