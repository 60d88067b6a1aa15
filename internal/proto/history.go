package proto

// HistoryRecord is one finished (or failed) turn retained per project.
type HistoryRecord struct {
	ID            string     `json:"id"`
	Prompt        string     `json:"prompt"`
	Timestamp     int64      `json:"timestamp"`
	Success       bool       `json:"success"`
	Logs          []LogEntry `json:"logs"`
	Duration      int64      `json:"duration"`
	Engine        string     `json:"engine"`
	Model         string     `json:"model,omitempty"`
	TaskContextID string     `json:"task_context_id,omitempty"`
	Usage         Usage      `json:"usage"`
	Cost          *Cost      `json:"cost,omitempty"`
	Error         string     `json:"error,omitempty"`
}
