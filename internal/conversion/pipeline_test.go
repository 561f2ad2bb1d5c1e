package conversion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ludoforge/internal/analyzer"
	"ludoforge/internal/roomkind"
	"ludoforge/internal/sandbox"
	"ludoforge/internal/store"
)

const sampleDoc = `<html><body>
<div class="board">
  <div class="cell"></div><div class="cell"></div><div class="cell"></div>
  <div class="cell"></div><div class="cell"></div><div class="cell"></div>
  <div class="cell"></div><div class="cell"></div><div class="cell"></div>
</div>
<button id="reset">Reset</button>
<script>let currentPlayer = "X";</script>
</body></html>`

func newTestPipeline() (*Pipeline, store.Store) {
	st := store.NewMemoryStore(5 * time.Second)
	artifacts := NewMemoryArtifactStore()
	sbox := sandbox.New(200 * time.Millisecond)
	p := New(st, artifacts, sbox, StubLLM{}, 2)
	return p, st
}

func waitForTerminal(t *testing.T, p *Pipeline, roomID string) *roomkind.Room {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		room, err := p.Status(roomID)
		require.NoError(t, err)
		if room.ConversionStatus == roomkind.ConversionComplete || room.ConversionStatus == roomkind.ConversionFailed {
			return room
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("conversion did not reach a terminal state in time")
	return nil
}

func TestRequestConversionReachesComplete(t *testing.T) {
	p, _ := newTestPipeline()
	room, err := p.RequestConversion("room-1", sampleDoc)
	require.NoError(t, err)
	assert.Equal(t, roomkind.ConversionPending, room.ConversionStatus)

	final := waitForTerminal(t, p, "room-1")
	assert.Equal(t, roomkind.ConversionComplete, final.ConversionStatus)
	assert.NotEmpty(t, final.DocumentRef)
	assert.NotEmpty(t, final.ValidatorRef)
	assert.Contains(t, final.Kind, "board")
}

func TestRequestConversionIsIdempotent(t *testing.T) {
	p, _ := newTestPipeline()
	first, err := p.RequestConversion("room-2", sampleDoc)
	require.NoError(t, err)

	second, err := p.RequestConversion("room-2", "a different document entirely")
	require.NoError(t, err)
	assert.Equal(t, first.SourceDocument, second.SourceDocument)

	waitForTerminal(t, p, "room-2")

	third, err := p.RequestConversion("room-2", "yet another document")
	require.NoError(t, err)
	assert.Equal(t, sampleDoc, third.SourceDocument)
}

func TestConvertWithRetryFailsOnEmptyDocument(t *testing.T) {
	p, _ := newTestPipeline()
	_, err := p.convertWithRetry(context.Background(), "", analyzer.Report{})
	assert.Error(t, err)
}
