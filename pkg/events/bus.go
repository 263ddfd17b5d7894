package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// subscriberBuffer is the per-subscriber channel capacity. A slow consumer
// loses the oldest events rather than blocking publishers.
const subscriberBuffer = 256

// Bus fans events out to subscribers. Publishing never blocks the
// pipeline; delivery to a full subscriber drops its oldest event.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextSub     int
	closed      bool
	logger      *slog.Logger
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[int]chan Event),
		logger:      slog.Default().With("component", "event-bus"),
	}
}

// Subscribe registers a new consumer. The returned cancel func must be
// called to release the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to all subscribers. Assigns ID and timestamp
// when unset so emitters stay terse.
func (b *Bus) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest to make room; publishers never block.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
				b.logger.Warn("dropping event for saturated subscriber", "subscriber", id, "kind", ev.Kind)
			}
		}
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
