package codex

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

type EventType string

const (
	EventThreadStarted EventType = "thread.started"
	EventTurnStarted   EventType = "turn.started"
	EventTurnCompleted EventType = "turn.completed"
	EventTurnFailed    EventType = "turn.failed"
	EventItemStarted   EventType = "item.started"
	EventItemUpdated   EventType = "item.updated"
	EventItemCompleted EventType = "item.completed"
	EventError         EventType = "error"
)

type ItemType string

const (
	ItemAgentMessage     ItemType = "agent_message"
	ItemReasoning        ItemType = "reasoning"
	ItemCommandExecution ItemType = "command_execution"
	ItemFileChange       ItemType = "file_change"
	ItemMCPToolCall      ItemType = "mcp_tool_call"
	ItemWebSearch        ItemType = "web_search"
	ItemTodoList         ItemType = "todo_list"
	ItemError            ItemType = "error"
)

// Event is one line of `codex exec --json` output.
type Event struct {
	Type     EventType  `json:"type"`
	ThreadID string     `json:"thread_id,omitempty"`
	Item     *Item      `json:"item,omitempty"`
	Usage    *Usage     `json:"usage,omitempty"`
	Error    *ErrorInfo `json:"error,omitempty"`
	Message  string     `json:"message,omitempty"`
}

type Item struct {
	ID     string   `json:"id"`
	Type   ItemType `json:"type"`
	Status string   `json:"status,omitempty"`

	// agent_message, reasoning
	Text string `json:"text,omitempty"`

	// command_execution
	Command          string `json:"command,omitempty"`
	AggregatedOutput string `json:"aggregated_output,omitempty"`
	ExitCode         *int64 `json:"exit_code,omitempty"`

	// file_change
	Changes []FileChange `json:"changes,omitempty"`

	// mcp_tool_call
	Server string `json:"server,omitempty"`
	Tool   string `json:"tool,omitempty"`

	// web_search
	Query string `json:"query,omitempty"`

	// todo_list
	Items json.RawMessage `json:"items,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

type FileChange struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

type Usage struct {
	InputTokens       int64 `json:"input_tokens"`
	CachedInputTokens int64 `json:"cached_input_tokens"`
	OutputTokens      int64 `json:"output_tokens"`
}

type ErrorInfo struct {
	Message string `json:"message"`
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
