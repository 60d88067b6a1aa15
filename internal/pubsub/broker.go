package pubsub

import (
	"context"
	"log/slog"
	"sync"
)

const bufferSize = 256

// Broker fans events out to subscribers. A retaining broker also keeps the
// events published since the last Reset and replays them, in order, to
// subscribers that arrive late.
type Broker[T any] struct {
	subs map[chan Event[T]]struct{}
	mu   sync.Mutex
	done chan struct{}

	retain    bool
	maxEvents int
	retained  []Event[T]
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[chan Event[T]]struct{}),
		done: make(chan struct{}),
	}
}

// NewRetainingBroker returns a broker that replays up to maxEvents retained
// events to every new subscriber.
func NewRetainingBroker[T any](maxEvents int) *Broker[T] {
	b := NewBroker[T]()
	b.retain = true
	b.maxEvents = maxEvents
	return b
}

func (b *Broker[T]) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}

	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.retained = nil
}

func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	sub := make(chan Event[T], bufferSize+len(b.retained))
	for _, ev := range b.retained {
		sub <- ev
	}
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub)
		}
	}()

	return sub
}

func (b *Broker[T]) GetSubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Reset drops the retained events.
func (b *Broker[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retained = nil
}

func (b *Broker[T]) Publish(t EventType, payload T) {
	b.publish(Event[T]{Type: t, Payload: payload}, false)
}

// PublishFinal publishes an event every subscriber must receive. When a
// subscriber's buffer is full its oldest queued event is evicted to make room.
func (b *Broker[T]) PublishFinal(t EventType, payload T) {
	b.publish(Event[T]{Type: t, Payload: payload}, true)
}

func (b *Broker[T]) publish(event Event[T], evict bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return
	default:
	}

	if b.retain {
		b.retained = append(b.retained, event)
		if b.maxEvents > 0 && len(b.retained) > b.maxEvents {
			b.retained = b.retained[len(b.retained)-b.maxEvents:]
		}
	}

	for sub := range b.subs {
		select {
		case sub <- event:
			continue
		default:
		}
		if !evict {
			// Channel is full, subscriber is slow - skip this event.
			slog.Warn("Dropping event for slow subscriber", "type", event.Type)
			continue
		}
		// Only publish sends, and it holds the lock, so one receive is
		// enough to free a slot.
		select {
		case old := <-sub:
			slog.Warn("Evicting event for slow subscriber", "type", old.Type)
		default:
		}
		sub <- event
	}
}
