package events

import (
	"sync"
)

const defaultBufferSize = 64

// Subscription is one subscriber's handle on a session's event stream.
// Events arrive on the channel returned by Events; the channel is closed
// when the subscription is cancelled or the session is dropped.
type Subscription struct {
	id        int
	sessionID string
	channel   chan Event
}

// Events returns the subscription's receive channel. Events for the
// subscribed session arrive in the order they were published.
func (s *Subscription) Events() <-chan Event {
	return s.channel
}

// SessionID returns the session this subscription follows.
func (s *Subscription) SessionID() string {
	return s.sessionID
}

// Bus routes published events to the subscribers of the matching session.
// Delivery is non-blocking: when a subscriber's buffer is full the event is
// dropped for that subscriber (counted in metrics) so one stalled consumer
// never delays another session's stream.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[int]*Subscription
	nextID      int
	bufferSize  int
	metrics     *Metrics
}

// NewBus creates a Bus whose subscriber channels buffer bufferSize events.
// A bufferSize of zero or less uses the default.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Bus{
		subscribers: make(map[string]map[int]*Subscription),
		bufferSize:  bufferSize,
		metrics:     NewMetrics(),
	}
}

// Subscribe registers a new subscriber for the given session id. Subscribing
// to a session that does not exist yet is allowed; events start flowing once
// something publishes under that id.
func (b *Bus) Subscribe(sessionID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:        b.nextID,
		sessionID: sessionID,
		channel:   make(chan Event, b.bufferSize),
	}

	if b.subscribers[sessionID] == nil {
		b.subscribers[sessionID] = make(map[int]*Subscription)
	}
	b.subscribers[sessionID][sub.id] = sub
	b.metrics.RecordSubscription(1)
	return sub
}

// Unsubscribe cancels a subscription and closes its channel. Safe to call
// for an already-cancelled subscription.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, exists := b.subscribers[sub.sessionID]
	if !exists {
		return
	}
	if _, active := subs[sub.id]; !active {
		return
	}

	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(b.subscribers, sub.sessionID)
	}
	close(sub.channel)
	b.metrics.RecordSubscription(-1)
}

// DropSession cancels every subscription for the session, closing each
// channel. Called when a session is removed from the registry.
func (b *Bus) DropSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, exists := b.subscribers[sessionID]
	if !exists {
		return
	}
	delete(b.subscribers, sessionID)
	for _, sub := range subs {
		close(sub.channel)
		b.metrics.RecordSubscription(-1)
	}
}

// Publish delivers the event to every subscriber of its session. Publishing
// while holding only the read lock keeps concurrent publishes possible; the
// write lock taken by Unsubscribe/DropSession guarantees no channel is
// closed mid-send.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.metrics.RecordPublished(1)
	for _, sub := range b.subscribers[event.SessionID] {
		select {
		case sub.channel <- event:
			b.metrics.RecordDelivered(1)
		default:
			b.metrics.RecordDropped(1)
		}
	}
}

// Metrics returns a snapshot of the bus delivery counters.
func (b *Bus) Metrics() MetricsSnapshot {
	return b.metrics.Snapshot()
}
