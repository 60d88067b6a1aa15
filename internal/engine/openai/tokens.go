package openai

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

const (
	fallbackEncoding = "cl100k_base"
	// Per-message framing tokens of the chat format.
	messageOverhead = 4
)

// tokenizer estimates token counts for endpoints that do not report usage.
// Without an encoding (BPE files unavailable offline) it falls back to four
// bytes per token.
type tokenizer struct {
	enc *tiktoken.Tiktoken
}

func newTokenizer(model string) *tokenizer {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		slog.Debug("Token encoding unavailable, using estimate", "model", model, "error", err)
		return &tokenizer{}
	}
	return &tokenizer{enc: enc}
}

func (t *tokenizer) count(text string) int64 {
	if text == "" {
		return 0
	}
	if t.enc == nil {
		return int64(max(1, len(text)/4))
	}
	return int64(len(t.enc.Encode(text, nil, nil)))
}

func (t *tokenizer) countMessages(texts []string) int64 {
	var total int64
	for _, text := range texts {
		total += messageOverhead + t.count(text)
	}
	return total
}
