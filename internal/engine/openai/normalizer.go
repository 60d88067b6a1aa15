package openai

import (
	"errors"
	"strings"

	"github.com/openai/openai-go"

	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/proto"
)

const paragraphBreak = "\n\n"

// normalizer buffers content deltas and publishes them a paragraph at a
// time. The turn ends in Flush since the usage chunk trails the finish
// reason.
type normalizer struct {
	session      *engine.Session
	systemPrompt string
	tokens       func() *tokenizer

	token    string
	chunks   int
	content  strings.Builder
	pending  strings.Builder
	emitted  bool
	usage    openai.CompletionUsage
	hasUsage bool
}

func (n *normalizer) Normalize(chunk openai.ChatCompletionChunk) []engine.Update {
	n.chunks++

	var updates []engine.Update
	if n.token == "" && chunk.ID != "" {
		n.token = chunk.ID
		updates = append(updates, engine.Update{Kind: engine.KindDrop, Token: chunk.ID, Model: chunk.Model})
	}
	if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
		n.usage = chunk.Usage
		n.hasUsage = true
	}

	for _, choice := range chunk.Choices {
		n.content.WriteString(choice.Delta.Content)
		n.pending.WriteString(choice.Delta.Content)
	}

	buffered := n.pending.String()
	if i := strings.LastIndex(buffered, paragraphBreak); i >= 0 {
		n.pending.Reset()
		n.pending.WriteString(buffered[i+len(paragraphBreak):])
		updates = append(updates, n.text(buffered[:i])...)
	}
	return updates
}

func (n *normalizer) Flush(err error) []engine.Update {
	rest := n.pending.String()
	n.pending.Reset()
	updates := n.text(rest)

	reply := n.content.String()
	usage := n.turnUsage(reply)
	if err != nil {
		return append(updates, engine.Failed(usage, err))
	}
	if n.chunks == 0 {
		return append(updates, engine.Failed(usage, errors.New("received empty streaming response")))
	}

	n.session.SetState(conversationOf(n.session).commit(reply))
	return append(updates, engine.Done(usage, reply))
}

func (n *normalizer) text(s string) []engine.Update {
	s = strings.Trim(s, "\n")
	if strings.TrimSpace(s) == "" {
		return nil
	}
	u := engine.Stdout(s)
	if !n.emitted {
		u.Message = true
		n.emitted = true
	}
	return []engine.Update{u}
}

func (n *normalizer) turnUsage(reply string) proto.Usage {
	if n.hasUsage {
		cached := n.usage.PromptTokensDetails.CachedTokens
		return proto.Usage{
			InputTokens:     n.usage.PromptTokens - cached,
			OutputTokens:    n.usage.CompletionTokens,
			CacheReadTokens: cached,
		}
	}
	if n.chunks == 0 {
		return proto.Usage{}
	}
	tok := n.tokens()
	return proto.Usage{
		InputTokens:  tok.countMessages(conversationOf(n.session).texts(n.systemPrompt)),
		OutputTokens: tok.count(reply),
	}
}
