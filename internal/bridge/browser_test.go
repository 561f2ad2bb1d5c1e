package bridge

import (
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
)

// runBrowserClickTest drives a real headless browser against url, clicks the
// marked button, and asserts the bridge emitted exactly one INTERACTION
// event carrying the marker's action name — an end-to-end check that the
// embedded client library actually runs as browser JS, not just that its
// source text contains the right tokens.
func runBrowserClickTest(t *testing.T, url string) {
	t.Helper()

	l := launcher.New().Headless(true)
	browserURL := l.MustLaunch()
	defer l.Kill()

	browser := rod.New().ControlURL(browserURL).MustConnect()
	defer browser.MustClose()

	page := browser.MustPage(url)
	defer page.MustClose()
	page.MustWaitLoad()

	page.MustElement("#go").MustClick()

	count := page.MustEval(`() => window.__events.length`).Int()
	assert.Equal(t, 1, count)

	action := page.MustEval(`() => window.__events[0].data.action`).Str()
	assert.Equal(t, "clicked", action)
}

// runBrowserInvalidEmitTest asserts emit() rejects a kind outside
// {TRANSITION, INTERACTION, UPDATE, ERROR} instead of silently queuing it.
func runBrowserInvalidEmitTest(t *testing.T, url string) {
	t.Helper()

	l := launcher.New().Headless(true)
	browserURL := l.MustLaunch()
	defer l.Kill()

	browser := rod.New().ControlURL(browserURL).MustConnect()
	defer browser.MustClose()

	page := browser.MustPage(url)
	defer page.MustClose()
	page.MustWaitLoad()

	ok := page.MustEval(`() => window.__invalidEmit.ok`).Bool()
	assert.False(t, ok)

	errCode := page.MustEval(`() => window.__invalidEmit.error`).Str()
	assert.Equal(t, "INVALID_KIND", errCode)
}

// runBrowserHostDispatchTest posts a host-style {target, roomId, type, data}
// message at the page's own window (standing in for the parent frame) and
// asserts it reaches exactly the subscriber registered for that type, plus
// the wildcard subscriber, rather than being dropped or misrouted to UPDATE.
func runBrowserHostDispatchTest(t *testing.T, url string) {
	t.Helper()

	l := launcher.New().Headless(true)
	browserURL := l.MustLaunch()
	defer l.Kill()

	browser := rod.New().ControlURL(browserURL).MustConnect()
	defer browser.MustClose()

	page := browser.MustPage(url)
	defer page.MustClose()
	page.MustWaitLoad()

	page.MustEval(`() => {
		window.postMessage({target: "ludoforge-bridge", roomId: "room-1", type: "STATE_UPDATE", data: {foo: 1}}, "*");
	}`)
	time.Sleep(200 * time.Millisecond)

	stateUpdateCount := page.MustEval(`() => window.__stateUpdates.length`).Int()
	assert.Equal(t, 1, stateUpdateCount)

	dataFoo := page.MustEval(`() => window.__stateUpdates[0].data.foo`).Int()
	assert.Equal(t, 1, dataFoo)

	wildcardCount := page.MustEval(`() => window.__wildcard.length`).Int()
	assert.Equal(t, 1, wildcardCount)
}
