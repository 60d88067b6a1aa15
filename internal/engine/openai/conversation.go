package openai

import (
	"slices"

	"github.com/openai/openai-go"

	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/proto"
)

type exchange struct {
	role    proto.MessageRole
	content string
}

// conversation is the session state of an API engine: the completed
// exchanges plus the prompt of the turn in flight.
type conversation struct {
	history []exchange
	pending string
}

func conversationOf(s *engine.Session) conversation {
	conv, _ := s.State().(conversation)
	conv.history = slices.Clone(conv.history)
	return conv
}

// commit records the pending prompt and its reply.
func (c conversation) commit(reply string) conversation {
	c.history = append(c.history,
		exchange{role: proto.User, content: c.pending},
		exchange{role: proto.Assistant, content: reply},
	)
	c.pending = ""
	return c
}

func (c conversation) messages(systemPrompt string) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(c.history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(systemPrompt))
	}
	for _, ex := range c.history {
		switch ex.role {
		case proto.User:
			msgs = append(msgs, openai.UserMessage(ex.content))
		case proto.Assistant:
			msgs = append(msgs, openai.AssistantMessage(ex.content))
		}
	}
	return append(msgs, openai.UserMessage(c.pending))
}

func (c conversation) texts(systemPrompt string) []string {
	texts := make([]string, 0, len(c.history)+2)
	if systemPrompt != "" {
		texts = append(texts, systemPrompt)
	}
	for _, ex := range c.history {
		texts = append(texts, ex.content)
	}
	return append(texts, c.pending)
}
