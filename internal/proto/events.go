package proto

import "time"

// Channel is the stream a log entry belongs to.
type Channel string

const (
	Stdout Channel = "stdout"
	Stderr Channel = "stderr"
)

func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c), nil
}

func (c *Channel) UnmarshalText(data []byte) error {
	*c = Channel(data)
	return nil
}

// LogEntry is the normalized, human-readable unit of streamed output.
type LogEntry struct {
	Time      int64   `json:"time"`
	SessionID string  `json:"session_id"`
	Channel   Channel `json:"channel"`
	Content   string  `json:"content"`
}

// NewLogEntry stamps content with the current time.
func NewLogEntry(sessionID string, channel Channel, content string) LogEntry {
	return LogEntry{
		Time:      time.Now().UnixMilli(),
		SessionID: sessionID,
		Channel:   channel,
		Content:   content,
	}
}

// CompleteEvent is published once per turn, after every output event.
type CompleteEvent struct {
	SessionID string     `json:"session_id"`
	Engine    string     `json:"engine"`
	Success   bool       `json:"success"`
	Logs      []LogEntry `json:"logs"`
	Duration  int64      `json:"duration"`
	StartTime int64      `json:"start_time"`
	EndTime   int64      `json:"end_time"`
	Error     string     `json:"error,omitempty"`
	Usage     Usage      `json:"usage"`
	Cost      *Cost      `json:"cost,omitempty"`

	// Result is the provider's final answer text, when it reports one.
	Result string `json:"result,omitempty"`
}

type SessionEventType string

const (
	SessionEventOutput   SessionEventType = "output"
	SessionEventComplete SessionEventType = "complete"
)

func (t SessionEventType) MarshalText() ([]byte, error) {
	return []byte(t), nil
}

func (t *SessionEventType) UnmarshalText(data []byte) error {
	*t = SessionEventType(data)
	return nil
}

// SessionEvent is the payload carried on a per-session channel.
type SessionEvent struct {
	Type     SessionEventType `json:"type"`
	Output   *LogEntry        `json:"output,omitempty"`
	Complete *CompleteEvent   `json:"complete,omitempty"`
}
