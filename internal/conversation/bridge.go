// Package conversation tracks logical conversations that span engine sessions
// and builds the context preamble sent when the engine changes.
package conversation

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rivo/uniseg"

	"github.com/devpilot-ai/devpilot/internal/proto"
)

const (
	contextWindow      = 10
	renderedMessages   = 6
	maxMessageChars    = 500
	contextHeader      = "[Context from previous conversation with %s]"
	contextFooter      = "[End of previous context]"
	defaultMaxMessages = 50
)

// DisplayNameFunc maps an engine name to its display name.
type DisplayNameFunc func(engine string) string

type Bridge struct {
	mu            sync.Mutex
	conversations map[string]*proto.Conversation
	maxMessages   int
	displayName   DisplayNameFunc
	now           func() time.Time
}

func NewBridge(maxMessages int, displayName DisplayNameFunc) *Bridge {
	if displayName == nil {
		displayName = func(engine string) string { return engine }
	}
	return &Bridge{
		conversations: make(map[string]*proto.Conversation),
		maxMessages:   cmp.Or(maxMessages, defaultMaxMessages),
		displayName:   displayName,
		now:           time.Now,
	}
}

// ContextPrompt returns the preamble to prepend when engine differs from the
// conversation's last engine. It must be called before AddUserMessage for the
// same turn.
func (b *Bridge) ContextPrompt(conversationID, engine string) (string, bool) {
	if conversationID == "" {
		return "", false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	conv, ok := b.conversations[conversationID]
	if !ok || len(conv.Messages) == 0 || conv.LastEngine == engine {
		return "", false
	}

	window := conv.Messages[max(0, len(conv.Messages)-contextWindow):]
	window = window[max(0, len(window)-renderedMessages):]

	var sb strings.Builder
	fmt.Fprintf(&sb, contextHeader, b.displayName(conv.LastEngine))
	sb.WriteString("\n")
	for _, m := range window {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, clip(m.Content))
	}
	sb.WriteString(contextFooter)
	return sb.String(), true
}

// clip keeps the first maxMessageChars grapheme clusters of s.
func clip(s string) string {
	if uniseg.GraphemeClusterCount(s) <= maxMessageChars {
		return s
	}
	rest, state, end := s, -1, 0
	for range maxMessageChars {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		end += len(cluster)
	}
	return s[:end] + "..."
}

// AddUserMessage records a dispatched prompt, then marks engine as the
// conversation's last engine.
func (b *Bridge) AddUserMessage(conversationID, engine, prompt string) {
	if conversationID == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	conv := b.appendLocked(conversationID, proto.ConversationMessage{
		Role:    proto.User,
		Content: prompt,
		Engine:  engine,
	})
	conv.LastEngine = engine
}

func (b *Bridge) AddAssistantMessage(conversationID, engine, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	if conversationID == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.appendLocked(conversationID, proto.ConversationMessage{
		Role:    proto.Assistant,
		Content: content,
		Engine:  engine,
	})
}

func (b *Bridge) appendLocked(conversationID string, msg proto.ConversationMessage) *proto.Conversation {
	now := b.now()
	conv, ok := b.conversations[conversationID]
	if !ok {
		conv = &proto.Conversation{ID: conversationID, StartTime: now.UnixMilli()}
		b.conversations[conversationID] = conv
	}

	msg.Timestamp = now.UnixMilli()
	conv.Messages = append(conv.Messages, msg)
	if over := len(conv.Messages) - b.maxMessages; over > 0 {
		conv.Messages = slices.Clone(conv.Messages[over:])
	}
	if !slices.Contains(conv.Engines, msg.Engine) {
		conv.Engines = append(conv.Engines, msg.Engine)
	}
	return conv
}

// Get returns a copy of the conversation.
func (b *Bridge) Get(conversationID string) (proto.Conversation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conv, ok := b.conversations[conversationID]
	if !ok {
		return proto.Conversation{}, false
	}
	return clone(conv), true
}

// List returns copies of all conversations, oldest first.
func (b *Bridge) List() []proto.Conversation {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]proto.Conversation, 0, len(b.conversations))
	for _, c := range b.conversations {
		out = append(out, clone(c))
	}
	slices.SortFunc(out, func(a, b proto.Conversation) int {
		return cmp.Or(cmp.Compare(a.StartTime, b.StartTime), strings.Compare(a.ID, b.ID))
	})
	return out
}

func (b *Bridge) Clear(conversationID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.conversations[conversationID]
	delete(b.conversations, conversationID)
	return ok
}

func clone(c *proto.Conversation) proto.Conversation {
	out := *c
	out.Messages = slices.Clone(c.Messages)
	out.Engines = slices.Clone(c.Engines)
	return out
}
