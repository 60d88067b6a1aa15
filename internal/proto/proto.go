package proto

// Error represents an error response.
type Error struct {
	Message string `json:"message"`
}

// VersionInfo describes the running build.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// EngineInfo describes a configured engine.
type EngineInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	Model       string `json:"model,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

// ExecuteRequest is a prompt dispatched to an engine.
type ExecuteRequest struct {
	ProjectName   string `json:"project_name"`
	ProjectPath   string `json:"project_path"`
	Prompt        string `json:"prompt"`
	SessionID     string `json:"session_id,omitempty"`
	TaskContextID string `json:"task_context_id,omitempty"`
	Mode          string `json:"mode,omitempty"`

	// ContextPreamble is prepended to Prompt when the turn is sent to the
	// provider. The recorded prompt stays un-prefixed.
	ContextPreamble string `json:"-"`
}

// DispatchedPrompt returns the text actually sent to the provider.
func (r ExecuteRequest) DispatchedPrompt() string {
	if r.ContextPreamble == "" {
		return r.Prompt
	}
	return r.ContextPreamble + "\n\n" + r.Prompt
}

// ExecuteResult is returned as soon as a turn has been started.
type ExecuteResult struct {
	SessionID string `json:"session_id"`
	StartedAt int64  `json:"started_at"`
	Resumed   bool   `json:"resumed"`
}

// TerminateResult reports how a session was stopped.
type TerminateResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PromptRequest is the body accepted by the session creation endpoint.
type PromptRequest struct {
	ExecuteRequest
	ConversationID string `json:"conversation_id,omitempty"`
}
