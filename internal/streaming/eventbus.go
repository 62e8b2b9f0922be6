package streaming

import (
	"context"
	"sync"
	"sync/atomic"

	"honeyshield/pkg/logger"
)

const subscriberBuffer = 100

type subscriber struct {
	ch     chan *Event
	filter *Subscription
}

// EventBus is the single fan-out point for detection events. Local
// subscribers (the WebSocket hub) get every matching event; when NATS is
// connected the event is also forwarded to other replicas.
type EventBus struct {
	nats   *NATSPublisher
	logger *logger.Logger

	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool

	dropped atomic.Int64
}

// NewEventBus creates an event bus. nats may be nil.
func NewEventBus(nats *NATSPublisher, log *logger.Logger) *EventBus {
	return &EventBus{
		nats:   nats,
		logger: log.WithComponent("event-bus"),
		subs:   make(map[uint64]*subscriber),
	}
}

// Publish delivers e to local subscribers without blocking and forwards
// it to NATS. A NATS failure is logged, not returned.
func (b *EventBus) Publish(ctx context.Context, e *Event) error {
	b.mu.RLock()
	for id, s := range b.subs {
		if s.filter != nil && !s.filter.Matches(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
			b.logger.Debug().Uint64("subscriber", id).Str("event_type", string(e.Type)).Msg("subscriber full, event dropped")
		}
	}
	b.mu.RUnlock()

	if b.nats != nil && b.nats.IsConnected() {
		if err := b.nats.Publish(ctx, e); err != nil {
			b.logger.Warn().Err(err).Str("event_type", string(e.Type)).Msg("NATS publish failed")
		}
	}
	return nil
}

// Subscribe registers a local subscriber. filter may be nil. The returned
// cancel func is idempotent.
func (b *EventBus) Subscribe(filter *Subscription) (<-chan *Event, func()) {
	ch := make(chan *Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = &subscriber{ch: ch, filter: filter}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
}

func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped counts events discarded because a subscriber was not reading.
func (b *EventBus) Dropped() int64 { return b.dropped.Load() }

// Close ends every subscription. The NATS connection is owned by the caller.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
}
