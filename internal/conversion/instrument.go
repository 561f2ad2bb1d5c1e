package conversion

import (
	"fmt"
	"regexp"
	"strings"

	"ludoforge/internal/bridge"
)

// Marker instrumentation (spec §4.3 step 3): add action/state/touch markers
// to inferred elements when missing; existing markers are preserved
// verbatim. This stays a regex-based text transform rather than a full HTML
// parse, matching the Game Analyzer's own text-scanning approach — the
// source documents here are well-formed-enough game markup, not arbitrary
// hostile HTML, so a lightweight tag-attribute patch suffices.
var (
	buttonTagRe = regexp.MustCompile(`(?i)<button\b[^>]*>`)
	cellTagRe   = regexp.MustCompile(`(?i)<(div|td|span)\b[^>]*class="[^"]*\bcell\b[^"]*"[^>]*>`)
	canvasTagRe = regexp.MustCompile(`(?i)<canvas\b[^>]*>`)
)

// InstrumentMarkers adds bridge marker attributes to elements the analyzer
// would classify as interactive surfaces, skipping any tag that already
// carries the relevant marker.
func InstrumentMarkers(document string) string {
	document = instrumentTags(document, buttonTagRe, bridge.ActionMarker, "game-action")
	document = instrumentTags(document, cellTagRe, bridge.StateMarker, "cell")
	document = instrumentTags(document, canvasTagRe, bridge.TouchMarker, "canvas-surface")
	return document
}

func instrumentTags(document string, re *regexp.Regexp, marker, value string) string {
	return re.ReplaceAllStringFunc(document, func(tag string) string {
		if strings.Contains(tag, marker) {
			return tag
		}
		return insertAttribute(tag, marker, value)
	})
}

// insertAttribute splices an attribute into an opening tag just before its
// closing '>', handling both "<tag ...>" and self-closing "<tag .../>" forms.
func insertAttribute(tag, name, value string) string {
	closing := ">"
	body := tag[:len(tag)-1]
	if strings.HasSuffix(body, "/") {
		body = body[:len(body)-1]
		closing = "/>"
	}
	return fmt.Sprintf("%s %s=%q%s", body, name, value, closing)
}
