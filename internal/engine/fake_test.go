package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devpilot-ai/devpilot/internal/config"
	"github.com/devpilot-ai/devpilot/internal/cost"
	"github.com/devpilot-ai/devpilot/internal/history"
	"github.com/devpilot-ai/devpilot/internal/proto"
	"github.com/devpilot-ai/devpilot/internal/pubsub"
	"github.com/devpilot-ai/devpilot/internal/render"
)

type fakeEvent struct {
	kind  string
	text  string
	token string
	usage proto.Usage
}

type fakeStream struct {
	ctx    context.Context
	events []fakeEvent
	failAt int // index at which Next fails; -1 never
	failErr error

	gate      chan struct{}
	interrupt chan struct{}
	once      sync.Once

	idx     int
	current fakeEvent
	err     error
	closed  bool
}

func (s *fakeStream) Next() bool {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-s.interrupt:
			s.err = errors.New("signal: interrupt")
			return false
		case <-s.ctx.Done():
			s.err = s.ctx.Err()
			return false
		}
	}
	if s.failAt >= 0 && s.idx == s.failAt {
		s.err = s.failErr
		return false
	}
	if s.idx >= len(s.events) {
		return false
	}
	s.current = s.events[s.idx]
	s.idx++
	return true
}

func (s *fakeStream) Current() fakeEvent { return s.current }
func (s *fakeStream) Err() error         { return s.err }
func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type interruptibleStream struct {
	*fakeStream
}

func (s interruptibleStream) Interrupt() error {
	s.once.Do(func() { close(s.interrupt) })
	return nil
}

type fakeDriver struct {
	initErr   error
	canResume bool

	mu    sync.Mutex
	turns []Turn
	// script builds the stream for each turn.
	script func(ctx context.Context, t Turn) Stream[fakeEvent]
}

func (d *fakeDriver) Init() error     { return d.initErr }
func (d *fakeDriver) CanResume() bool { return d.canResume }

func (d *fakeDriver) Open(ctx context.Context, _ *Session, t Turn) (Stream[fakeEvent], error) {
	d.mu.Lock()
	d.turns = append(d.turns, t)
	d.mu.Unlock()
	return d.script(ctx, t), nil
}

func (d *fakeDriver) Turns() []Turn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Turn(nil), d.turns...)
}

func (d *fakeDriver) NewNormalizer(*Session) Normalizer[fakeEvent] {
	return fakeNormalizer{}
}

type fakeNormalizer struct{}

func (fakeNormalizer) Normalize(ev fakeEvent) []Update {
	switch ev.kind {
	case "init":
		return []Update{{Kind: KindDrop, Token: ev.token, Model: "fake-model"}}
	case "text":
		u := Stdout(ev.text)
		u.Message = true
		return []Update{u}
	case "tool":
		u := Stdout(ev.text)
		u.ToolCall = true
		return []Update{u}
	case "usage":
		return []Update{UsageUpdate(ev.usage)}
	case "result":
		return []Update{Done(ev.usage, ev.text)}
	case "fail":
		return []Update{Failed(ev.usage, errors.New(ev.text))}
	case "panic":
		panic("normalizer exploded")
	}
	return nil
}

func (fakeNormalizer) Flush(error) []Update { return nil }

type fakeRecorder struct {
	mu      sync.Mutex
	records []proto.SessionRecord
}

func (r *fakeRecorder) RecordSession(_ context.Context, rec proto.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRecorder) Records() []proto.SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]proto.SessionRecord(nil), r.records...)
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Registry:       NewRegistry(),
		Bus:            NewBus(100),
		History:        history.NewStore(t.TempDir(), 10),
		Recorder:       &fakeRecorder{},
		Costs:          cost.NewTable(),
		Render:         render.New(render.DefaultOptions()),
		MaxSessionLogs: 100,
	}
}

func newTestAdapter(t *testing.T, name string, d *fakeDriver, deps Deps) *Adapter[fakeEvent] {
	t.Helper()
	a := NewAdapter(config.EngineConfig{
		Name:        name,
		Type:        config.EngineTypeClaudeCLI,
		DisplayName: name + " engine",
		Provider:    "anthropic",
	}, Driver[fakeEvent](d), deps)
	t.Cleanup(a.Shutdown)
	return a
}

func scripted(events ...fakeEvent) func(context.Context, Turn) Stream[fakeEvent] {
	return func(ctx context.Context, _ Turn) Stream[fakeEvent] {
		return &fakeStream{ctx: ctx, events: events, failAt: -1}
	}
}

// collect reads a subscription until the complete event.
func collect(t *testing.T, ch <-chan pubsub.Event[proto.SessionEvent]) ([]proto.LogEntry, proto.CompleteEvent) {
	t.Helper()
	var outputs []proto.LogEntry
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "subscription closed before complete")
			switch ev.Type {
			case OutputEvent:
				outputs = append(outputs, *ev.Payload.Output)
			case CompleteEvent:
				return outputs, *ev.Payload.Complete
			}
		case <-timeout:
			t.Fatal("timed out waiting for complete")
		}
	}
}

func requireNoEvent(t *testing.T, ch <-chan pubsub.Event[proto.SessionEvent]) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event %q", ev.Type)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
