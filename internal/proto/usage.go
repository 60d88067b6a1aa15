package proto

// Usage is the cumulative token usage of a session.
type Usage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens"`
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:      u.InputTokens + o.InputTokens,
		OutputTokens:     u.OutputTokens + o.OutputTokens,
		CacheWriteTokens: u.CacheWriteTokens + o.CacheWriteTokens,
		CacheReadTokens:  u.CacheReadTokens + o.CacheReadTokens,
	}
}

func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheWriteTokens + u.CacheReadTokens
}

func (u Usage) IsZero() bool {
	return u == Usage{}
}

// Cost is the monetary breakdown derived from a Usage.
type Cost struct {
	Input       float64 `json:"input"`
	Output      float64 `json:"output"`
	CacheWrite  float64 `json:"cache_write"`
	CacheRead   float64 `json:"cache_read"`
	Total       float64 `json:"total"`
	TotalTokens int64   `json:"total_tokens"`
}
