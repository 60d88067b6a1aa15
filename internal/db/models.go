package db

type Session struct {
	ID               string  `json:"id"`
	Engine           string  `json:"engine"`
	ProjectName      string  `json:"project_name"`
	ProjectPath      string  `json:"project_path"`
	ProviderToken    string  `json:"provider_token"`
	Model            string  `json:"model"`
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	CacheWriteTokens int64   `json:"cache_write_tokens"`
	CacheReadTokens  int64   `json:"cache_read_tokens"`
	Cost             float64 `json:"cost"`
	MessageCount     int64   `json:"message_count"`
	ToolCallCount    int64   `json:"tool_call_count"`
	LastPrompt       string  `json:"last_prompt"`
	Success          bool    `json:"success"`
	CreatedAt        int64   `json:"created_at"`
	UpdatedAt        int64   `json:"updated_at"`
}
