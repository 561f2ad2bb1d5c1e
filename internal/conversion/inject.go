package conversion

import (
	"encoding/json"
	"fmt"
	"strings"

	"ludoforge/internal/bridge"
)

// RoomConfig is the configuration object injected alongside the bridge
// client (spec §4.3 step 6): room identifier, player identifier
// provisioning, session identifier, batching parameters.
type RoomConfig struct {
	RoomID            string `json:"roomId"`
	PlayerIDParam     string `json:"playerIdParam"`
	SessionIDParam    string `json:"sessionIdParam"`
	BatchIntervalMS   int    `json:"batchIntervalMs"`
	BatchSize         int    `json:"batchSize"`
}

// InjectBridge appends the bridge client library and a room configuration
// object to document, immediately before </body> if present, otherwise at
// the document's end. Markers added by InstrumentMarkers are untouched since
// this only appends a trailing script block.
func InjectBridge(document, roomID string) (string, error) {
	cfg := RoomConfig{
		RoomID:          roomID,
		PlayerIDParam:   "playerId",
		SessionIDParam:  "sessionId",
		BatchIntervalMS: 50,
		BatchSize:       20,
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal room config: %w", err)
	}

	script := fmt.Sprintf("<script>%s</script>\n<script>window.LudoBridge.init(Object.assign(%s, {playerId: new URLSearchParams(location.search).get(\"playerId\")}));</script>",
		bridge.ClientSource(), string(cfgJSON))

	if idx := strings.LastIndex(strings.ToLower(document), "</body>"); idx != -1 {
		return document[:idx] + script + document[idx:], nil
	}
	return document + script, nil
}
