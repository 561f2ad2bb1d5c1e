package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ludoforge/internal/roomkind"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New()
	ch := bus.Subscribe("room-1")

	bus.Publish(roomkind.Broadcast{RoomID: "room-1", Kind: roomkind.BroadcastGameStarted, Version: 1})

	got := <-ch
	assert.Equal(t, int64(1), got.Version)
}

func TestPublishIgnoresOtherRooms(t *testing.T) {
	bus := New()
	ch := bus.Subscribe("room-1")

	bus.Publish(roomkind.Broadcast{RoomID: "room-2", Version: 1})

	select {
	case <-ch:
		t.Fatal("subscriber should not receive broadcasts for other rooms")
	default:
	}
}

func TestPublishDropsOldestWhenSubscriberFull(t *testing.T) {
	bus := New()
	ch := bus.Subscribe("room-1")

	for i := 0; i < subscriberBuffer+5; i++ {
		bus.Publish(roomkind.Broadcast{RoomID: "room-1", Version: int64(i)})
	}

	last := roomkind.Broadcast{}
	count := 0
	for {
		select {
		case b := <-ch:
			last = b
			count++
			continue
		default:
		}
		break
	}
	require.Greater(t, count, 0)
	assert.Equal(t, int64(subscriberBuffer+4), last.Version)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	ch := bus.Subscribe("room-1")
	bus.Unsubscribe("room-1", ch)

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, bus.SubscriberCount("room-1"))
}
