package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ludoforge/internal/eventbus"
	"ludoforge/internal/roomkind"
	"ludoforge/internal/store"
	"ludoforge/internal/validatorspec"
)

func newTestRuntime(t *testing.T) (*Runtime, store.Store) {
	t.Helper()
	st := store.NewMemoryStore(5 * time.Second)
	bus := eventbus.New()
	lookup := func(room *roomkind.Room) validatorspec.GenericConfig {
		return validatorspec.GenericConfig{TurnBased: true, TargetScore: 10}
	}
	rt := New(st, nil, bus, lookup)
	return rt, st
}

func completeRoom(t *testing.T, st store.Store, id string) *roomkind.Room {
	t.Helper()
	room := roomkind.NewRoom(id, "<html></html>")
	room.ConversionStatus = roomkind.ConversionComplete
	require.NoError(t, st.Put(room))
	return room
}

func TestSubmitRejectsRoomNotReady(t *testing.T) {
	rt, st := newTestRuntime(t)
	room := roomkind.NewRoom("room-1", "<html></html>")
	require.NoError(t, st.Put(room))

	res := rt.Submit(context.Background(), "room-1", roomkind.Action{Kind: roomkind.ActionJoin, PlayerID: "p1"})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, roomkind.ErrRoomNotReady)
}

func TestSubmitJoinFallsBackToGenericAndRejectsDuplicate(t *testing.T) {
	rt, st := newTestRuntime(t)
	completeRoom(t, st, "room-2")

	// The store assigns max(current+1, wall-clock ms) as the new version.
	before := time.Now().UnixMilli()
	res := rt.Submit(context.Background(), "room-2", roomkind.Action{Kind: roomkind.ActionJoin, PlayerID: "p1"})
	require.True(t, res.Success)
	assert.GreaterOrEqual(t, res.StateVersion, before)
	assert.NotNil(t, res.Broadcast)
	assert.Equal(t, roomkind.BroadcastPlayerJoined, res.Broadcast.Kind)

	res = rt.Submit(context.Background(), "room-2", roomkind.Action{Kind: roomkind.ActionJoin, PlayerID: "p1"})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, roomkind.ErrDuplicatePlayer)
}

func TestSubmitMoveRejectsUnknownPlayer(t *testing.T) {
	rt, st := newTestRuntime(t)
	completeRoom(t, st, "room-3")

	res := rt.Submit(context.Background(), "room-3", roomkind.Action{Kind: roomkind.ActionMove, PlayerID: "p1"})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, roomkind.ErrPlayerNotFound)
}

func TestSubmitTimesOutBeforeLockAcquisitionWithoutSideEffects(t *testing.T) {
	rt, st := newTestRuntime(t)
	completeRoom(t, st, "room-5")
	rt.Configure(30*time.Millisecond, 0)

	// Hold the room's lock token ourselves, simulating a long-running
	// action already in flight for this room.
	lock := rt.lockFor("room-5")
	<-lock

	res := rt.Submit(context.Background(), "room-5", roomkind.Action{Kind: roomkind.ActionJoin, PlayerID: "p1"})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, roomkind.ErrTimeoutRetry)

	lock <- struct{}{}

	room, err := st.Get("room-5")
	require.NoError(t, err)
	assert.Empty(t, room.Players)
}

func TestSubmitBroadcastsToSubscriber(t *testing.T) {
	rt, st := newTestRuntime(t)
	completeRoom(t, st, "room-4")

	ch := rt.Subscribe("room-4")
	res := rt.Submit(context.Background(), "room-4", roomkind.Action{Kind: roomkind.ActionJoin, PlayerID: "p1"})
	require.True(t, res.Success)

	select {
	case b := <-ch:
		assert.Equal(t, "room-4", b.RoomID)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast")
	}
}
