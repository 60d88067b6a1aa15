package engine

import (
	"context"

	"github.com/devpilot-ai/devpilot/internal/proto"
)

// Turn is one prompt sent to a provider.
type Turn struct {
	SessionID   string
	Prompt      string
	ProjectPath string
	Mode        string
	// ResumeToken is the provider-native session handle, set only when the
	// session is resumed and the driver supports resumption.
	ResumeToken string
}

// Stream iterates a provider's native events.
type Stream[E any] interface {
	Next() bool
	Current() E
	Err() error
	Close() error
}

// Interrupter is implemented by streams that can be stopped cooperatively.
type Interrupter interface {
	Interrupt() error
}

// Driver adapts one provider's native client to the runner.
type Driver[E any] interface {
	// Init checks that the native client can be built.
	Init() error
	Open(ctx context.Context, s *Session, t Turn) (Stream[E], error)
	NewNormalizer(s *Session) Normalizer[E]
	CanResume() bool
}

// Normalizer maps native events of one turn to updates.
type Normalizer[E any] interface {
	Normalize(ev E) []Update
	// Flush is called once when the stream ends without a terminal update.
	// err is the stream error, if any.
	Flush(err error) []Update
}

type UpdateKind int

const (
	KindDrop UpdateKind = iota
	KindUsage
	KindContent
	KindTerminal
)

// Update is the result of normalizing a native event. Token, Model and Usage
// are applied whatever the kind.
type Update struct {
	Kind    UpdateKind
	Channel proto.Channel
	Content string

	// Usage is the turn delta to add to the session.
	Usage proto.Usage
	Token string
	Model string

	ToolCall bool
	Message  bool

	// Terminal updates only.
	Success bool
	Err     error
	Result  string
}

func Drop() Update {
	return Update{Kind: KindDrop}
}

func Stdout(content string) Update {
	return Update{Kind: KindContent, Channel: proto.Stdout, Content: content}
}

func Stderr(content string) Update {
	return Update{Kind: KindContent, Channel: proto.Stderr, Content: content}
}

func UsageUpdate(u proto.Usage) Update {
	return Update{Kind: KindUsage, Usage: u}
}

func Done(usage proto.Usage, result string) Update {
	return Update{Kind: KindTerminal, Success: true, Usage: usage, Result: result}
}

func Failed(usage proto.Usage, err error) Update {
	return Update{Kind: KindTerminal, Success: false, Usage: usage, Err: err}
}
