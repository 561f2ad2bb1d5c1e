package bridge

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSourceEmbedsExpectedEntryPoints(t *testing.T) {
	src := ClientSource()
	assert.Contains(t, src, "window.LudoBridge")
	assert.Contains(t, src, "function emit(")
	assert.Contains(t, src, "function on(")
	assert.Contains(t, src, "function destroy(")
	assert.Contains(t, src, ActionMarker)
	assert.Contains(t, src, TouchMarker)
}

func TestClientSourceValidatesEmitKindAndDispatchesHostKinds(t *testing.T) {
	src := ClientSource()
	assert.Contains(t, src, "INVALID_KIND")
	for _, kind := range []HostMessageKind{HostStateUpdate, HostPlayerAction, HostGameEvent, HostConfigUpdate} {
		assert.Contains(t, src, string(kind))
	}
	assert.Contains(t, src, `msg.target !== SOURCE`)
}

func TestHostEnvelopeRoundTrips(t *testing.T) {
	env := HostEnvelope{
		Source:   SourceTag,
		RoomID:   "room-1",
		PlayerID: "p1",
		Events: []Event{
			{Kind: EventInteraction, Meta: EventMeta{RoomID: "room-1", PlayerID: "p1", Sequence: 1}},
		},
	}
	require.Equal(t, SourceTag, env.Source)
	require.Len(t, env.Events, 1)
	assert.Equal(t, EventInteraction, env.Events[0].Kind)
}

// instrumentedPage serves a minimal document with the bridge client and one
// marked, clickable element, mirroring what the Conversion Pipeline produces
// by injecting ClientSource() plus a data-bridge-action attribute.
func instrumentedPage() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<!doctype html><html><body>
<button id="go" %s="clicked">Go</button>
<script>%s</script>
<script>
  window.LudoBridge.init({roomId: "room-1", playerId: "p1"});
  window.__events = [];
  window.LudoBridge.on("INTERACTION", (e) => window.__events.push(e));
</script>
</body></html>`, ActionMarker, ClientSource())
	})
	return mux
}

func TestBridgeInterceptsMarkedClick(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	ts := httptest.NewServer(instrumentedPage())
	defer ts.Close()

	runBrowserClickTest(t, ts.URL)
}

// hostDispatchPage serves a bare document with the bridge client and a
// STATE_UPDATE subscriber, so a test can post a host-style message at the
// page's own window (standing in for the parent frame) and observe dispatch.
func hostDispatchPage() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<!doctype html><html><body>
<script>%s</script>
<script>
  window.LudoBridge.init({roomId: "room-1", playerId: "p1"});
  window.__stateUpdates = [];
  window.__wildcard = [];
  window.LudoBridge.on("STATE_UPDATE", (m) => window.__stateUpdates.push(m));
  window.LudoBridge.on("*", (m) => window.__wildcard.push(m));
  window.__invalidEmit = window.LudoBridge.emit("NOT_A_REAL_KIND", {});
</script>
</body></html>`, ClientSource())
	})
	return mux
}

func TestBridgeRejectsInvalidEmitKind(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	ts := httptest.NewServer(hostDispatchPage())
	defer ts.Close()

	runBrowserInvalidEmitTest(t, ts.URL)
}

func TestBridgeDispatchesHostMessagesByType(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	ts := httptest.NewServer(hostDispatchPage())
	defer ts.Close()

	runBrowserHostDispatchTest(t, ts.URL)
}
