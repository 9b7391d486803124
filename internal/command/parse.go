// Package command applies structured commands emitted by the chat assistant
// to the local store.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Block delimiters around the command JSON inside an assistant reply.
const (
	StartMarker = "__JSON_START__"
	EndMarker   = "__JSON_END__"
)

// Supported actions.
const (
	ActionUpdateDailyCheck  = "UPDATE_DAILY_CHECK"
	ActionUpdateMetricEntry = "UPDATE_METRIC_ENTRY"
	ActionUpdateWeeklyPlan  = "UPDATE_WEEKLY_PLAN"
	ActionAddImpactLog      = "ADD_IMPACT_LOG"
)

// ErrMalformedBlock is returned when a command block is present but cannot
// be decoded.
var ErrMalformedBlock = errors.New("malformed command block")

// Command is one assistant-issued mutation.
type Command struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// Parse extracts the command block from an assistant reply. It returns a nil
// command when the reply has no block, and the reply text with the block
// removed.
func Parse(reply string) (*Command, string, error) {
	start := strings.Index(reply, StartMarker)
	if start < 0 {
		return nil, strings.TrimSpace(reply), nil
	}

	rest := reply[start+len(StartMarker):]
	end := strings.Index(rest, EndMarker)
	if end < 0 {
		return nil, strings.TrimSpace(reply), fmt.Errorf("%w: missing %s", ErrMalformedBlock, EndMarker)
	}

	text := strings.TrimSpace(reply[:start] + rest[end+len(EndMarker):])

	var cmd Command
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &cmd); err != nil {
		return nil, text, fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}
	if cmd.Action == "" {
		return nil, text, fmt.Errorf("%w: missing action", ErrMalformedBlock)
	}
	return &cmd, text, nil
}
