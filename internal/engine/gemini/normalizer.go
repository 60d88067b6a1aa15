package gemini

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/devpilot-ai/devpilot/internal/engine"
	"github.com/devpilot-ai/devpilot/internal/proto"
)

const paragraphBreak = "\n\n"

type normalizer struct {
	session *engine.Session

	token     string
	responses int
	content   strings.Builder
	pending   strings.Builder
	emitted   bool
	usage     *genai.GenerateContentResponseUsageMetadata
}

func (n *normalizer) Normalize(resp *genai.GenerateContentResponse) []engine.Update {
	if resp == nil {
		return nil
	}
	n.responses++

	var updates []engine.Update
	if n.token == "" && resp.ResponseID != "" {
		n.token = resp.ResponseID
		updates = append(updates, engine.Update{Kind: engine.KindDrop, Token: resp.ResponseID, Model: resp.ModelVersion})
	}
	// Usage metadata is cumulative; the last one wins.
	if resp.UsageMetadata != nil {
		n.usage = resp.UsageMetadata
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return append(updates, engine.Failed(n.turnUsage(), fmt.Errorf("prompt blocked: %s", fb.BlockReason)))
	}

	text := resp.Text()
	n.content.WriteString(text)
	n.pending.WriteString(text)

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

	usage := n.turnUsage()
	if err != nil {
		return append(updates, engine.Failed(usage, err))
	}
	if n.responses == 0 {
		return append(updates, engine.Failed(usage, errors.New("received empty streaming response")))
	}

	reply := n.content.String()
	n.session.SetState(transcriptOf(n.session).commit(reply))
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

func (n *normalizer) turnUsage() proto.Usage {
	if n.usage == nil {
		return proto.Usage{}
	}
	cached := int64(n.usage.CachedContentTokenCount)
	return proto.Usage{
		InputTokens:     int64(n.usage.PromptTokenCount) - cached,
		OutputTokens:    int64(n.usage.CandidatesTokenCount) + int64(n.usage.ThoughtsTokenCount),
		CacheReadTokens: cached,
	}
}
