// Package broadcast implements the connectivity broadcaster: a single
// process-wide publish/subscribe stream carrying connectivity transitions
// and arbitrary typed events to all interested consumers.
//
// The broadcaster is constructed once at the composition root and passed by
// handle; there is no package-level singleton. Every subscriber receives
// every published event in publication order. A slow or panicking consumer
// cannot prevent delivery to the others: each subscription owns a buffered
// queue, and a full queue drops the event for that subscriber only (counted,
// logged — a connectivity consumer recovers on the next transition).
package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Event is the discriminated union of broadcast payloads. Consumers switch
// on the concrete type and ignore kinds they do not recognize.
type Event interface {
	isEvent()
}

// ConnectionChanged announces a connectivity transition observed by the
// transport-layer signal source or forced by a manual override.
type ConnectionChanged struct {
	HasConnection bool
}

func (ConnectionChanged) isEvent() {}

// Custom carries any other typed payload. Listeners that only care about
// connectivity ignore it.
type Custom struct {
	Kind    string
	Payload any
}

func (Custom) isEvent() {}

// Kinds of Custom events published by the engine.
const (
	KindUploadDone  = "upload-done"
	KindUserChanged = "user-changed"
	KindModeChanged = "connectivity-mode-changed"
)

// subscriberBuffer is the per-subscription queue depth. Deep enough that a
// consumer doing asynchronous follow-up work never drops under normal load.
const subscriberBuffer = 64

// Broadcaster is a single-producer-ordered, multi-consumer event stream.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int64]*Subscription
	nextID int64
	closed bool
	logger *slog.Logger
}

// New creates a Broadcaster. Call Close at application shutdown.
func New(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}

	return &Broadcaster{
		subs:   make(map[int64]*Subscription),
		logger: logger,
	}
}

// Subscription is one consumer's view of the stream. Cancel must be called
// when the consumer goes away; a missed Cancel is a resource leak that
// ActiveSubscribers makes testable.
type Subscription struct {
	id      int64
	ch      chan Event
	b       *Broadcaster
	once    sync.Once
	dropped atomic.Int64
}

// Subscribe registers a new consumer. Returns a subscription whose channel
// receives every subsequently published event in order. Subscribing to a
// closed broadcaster returns a subscription with an already-closed channel.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{ch: make(chan Event, subscriberBuffer), b: b}

	if b.closed {
		close(sub.ch)
		return sub
	}

	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub

	return sub
}

// C returns the subscription's receive channel. The channel is closed when
// the subscription is cancelled or the broadcaster shuts down.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Cancel releases the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.b != nil && s.id != 0 {
			s.b.mu.Lock()
			if _, ok := s.b.subs[s.id]; ok {
				delete(s.b.subs, s.id)
				close(s.ch)
			}
			s.b.mu.Unlock()

			return
		}

		// Never registered (broadcaster already closed at Subscribe time).
	})
}

// Dropped returns how many events were discarded because this subscriber's
// queue was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Publish delivers the event to every active subscriber. Publication order
// is preserved per subscriber because delivery happens under the broadcaster
// lock. Publishing after Close is a no-op.
func (b *Broadcaster) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			n := sub.dropped.Add(1)
			b.logger.Warn("broadcast: subscriber queue full, event dropped",
				slog.Int64("subscriber", sub.id),
				slog.Int64("total_dropped", n),
			)
		}
	}
}

// ActiveSubscribers returns the number of live subscriptions. Component
// teardown tests assert this returns to zero.
func (b *Broadcaster) ActiveSubscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}

// Close releases all subscriptions and stops accepting publishes. Safe to
// call more than once.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
