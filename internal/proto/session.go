package proto

// SessionInfo is a point-in-time snapshot of a registry session.
type SessionInfo struct {
	ID            string `json:"id"`
	Engine        string `json:"engine"`
	ProviderToken string `json:"provider_session_token,omitempty"`
	ProjectName   string `json:"project_name"`
	ProjectPath   string `json:"project_path"`
	CreatedAt     int64  `json:"created_at"`
	LastPrompt    string `json:"last_prompt"`
	Usage         Usage  `json:"usage"`
	MessageCount  int64  `json:"message_count"`
	ToolCallCount int64  `json:"tool_call_count"`
	Model         string `json:"model,omitempty"`
	TaskContextID string `json:"task_context_id,omitempty"`
	Running       bool   `json:"running"`
}

// SessionStatus is the answer to a status query. Unknown sessions report
// Running=false.
type SessionStatus struct {
	SessionID string `json:"session_id"`
	Running   bool   `json:"running"`
	Uptime    int64  `json:"uptime"`
	LogCount  int    `json:"log_count"`
}

// SessionRecord is the session metadata persisted when a turn finishes.
type SessionRecord struct {
	ID            string
	Engine        string
	ProjectName   string
	ProjectPath   string
	ProviderToken string
	Model         string
	Usage         Usage
	Cost          Cost
	MessageCount  int64
	ToolCallCount int64
	LastPrompt    string
	Success       bool
	CreatedAt     int64
	UpdatedAt     int64
}
