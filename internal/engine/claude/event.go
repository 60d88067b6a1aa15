package claude

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

type EventType string

const (
	EventSystem      EventType = "system"
	EventAssistant   EventType = "assistant"
	EventUser        EventType = "user"
	EventResult      EventType = "result"
	EventStreamEvent EventType = "stream_event"
)

// Event is one line of `claude -p --output-format stream-json` output.
// Assistant and user messages carry Messages API payloads in Message.
type Event struct {
	Type         EventType       `json:"type"`
	Subtype      string          `json:"subtype,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
	Model        string          `json:"model,omitempty"`
	Message      json.RawMessage `json:"message,omitempty"`
	Result       string          `json:"result,omitempty"`
	IsError      bool            `json:"is_error,omitempty"`
	Usage        json.RawMessage `json:"usage,omitempty"`
	NumTurns     int             `json:"num_turns,omitempty"`
	TotalCostUSD float64         `json:"total_cost_usd,omitempty"`
}

func decodeEvent(line []byte) (Event, bool) {
	if !gjson.ValidBytes(line) || !gjson.GetBytes(line, "type").Exists() {
		return Event{}, false
	}
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, false
	}
	return ev, true
}
