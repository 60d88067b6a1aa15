package engine

import (
	"context"

	"github.com/devpilot-ai/devpilot/internal/csync"
	"github.com/devpilot-ai/devpilot/internal/proto"
	"github.com/devpilot-ai/devpilot/internal/pubsub"
)

const (
	OutputEvent   pubsub.EventType = pubsub.EventType(proto.SessionEventOutput)
	CompleteEvent pubsub.EventType = pubsub.EventType(proto.SessionEventComplete)
)

// Bus holds one typed channel per session. Each channel retains the events of
// the current turn so a subscriber that arrives after Execute returns still
// sees every output and the completion.
type Bus struct {
	brokers *csync.Map[string, *pubsub.Broker[proto.SessionEvent]]
	retain  int
}

func NewBus(retain int) *Bus {
	return &Bus{
		brokers: csync.NewMap[string, *pubsub.Broker[proto.SessionEvent]](),
		retain:  retain,
	}
}

func (b *Bus) broker(sessionID string) *pubsub.Broker[proto.SessionEvent] {
	return b.brokers.GetOrSet(sessionID, func() *pubsub.Broker[proto.SessionEvent] {
		return pubsub.NewRetainingBroker[proto.SessionEvent](b.retain)
	})
}

func (b *Bus) Subscribe(ctx context.Context, sessionID string) <-chan pubsub.Event[proto.SessionEvent] {
	return b.broker(sessionID).Subscribe(ctx)
}

// StartTurn drops the events retained from the previous turn.
func (b *Bus) StartTurn(sessionID string) {
	b.broker(sessionID).Reset()
}

func (b *Bus) PublishOutput(entry proto.LogEntry) {
	b.broker(entry.SessionID).Publish(OutputEvent, proto.SessionEvent{
		Type:   proto.SessionEventOutput,
		Output: &entry,
	})
}

// PublishComplete is delivered even to subscribers that fell behind.
func (b *Bus) PublishComplete(ev proto.CompleteEvent) {
	b.broker(ev.SessionID).PublishFinal(CompleteEvent, proto.SessionEvent{
		Type:     proto.SessionEventComplete,
		Complete: &ev,
	})
}

// Remove closes the session's channel and every subscription to it.
func (b *Bus) Remove(sessionID string) {
	if br, ok := b.brokers.Take(sessionID); ok {
		br.Shutdown()
	}
}

func (b *Bus) Subscribers(sessionID string) int {
	br, ok := b.brokers.Get(sessionID)
	if !ok {
		return 0
	}
	return br.GetSubscriberCount()
}

func (b *Bus) Shutdown() {
	for id := range b.brokers.Seq2() {
		b.Remove(id)
	}
}
