package pool

import (
	"sync"
	"time"
)

// EventKind identifies a connection lifecycle event.
type EventKind int

const (
	// EventConnected fires when a connection is established, both initially
	// and after a successful reconnection.
	EventConnected EventKind = iota

	// EventDisconnected fires when a connection leaves the pool, whether
	// closed explicitly, evicted, or failed.
	EventDisconnected

	// EventReconnecting fires once per reconnection attempt.
	EventReconnecting

	// EventReconnectionFailed fires exactly once per connection, when all
	// reconnection attempts are exhausted. Terminal.
	EventReconnectionFailed

	// EventQuotaExceeded fires when connection creation is rejected because
	// the usage quota is exhausted.
	EventQuotaExceeded
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventReconnectionFailed:
		return "reconnection_failed"
	case EventQuotaExceeded:
		return "quota_exceeded"
	default:
		return "unknown"
	}
}

// Event describes one connection lifecycle transition.
type Event struct {
	// Kind is the event type.
	Kind EventKind

	// Key is the pool key of the affected connection. Empty for
	// EventQuotaExceeded raised before a connection exists.
	Key string

	// Attempt is the reconnection attempt number. Only set for
	// EventReconnecting.
	Attempt int

	// Err carries the triggering error, when there is one.
	Err error

	// Time is when the event occurred.
	Time time.Time
}

// Handler receives pool events. Handlers are invoked synchronously from pool
// goroutines and must return quickly; slow work belongs in the handler's own
// goroutine.
type Handler func(Event)

// Subscription is the handle returned by [Pool.Subscribe]. Cancel it to stop
// receiving events.
type Subscription struct {
	id uint64
	b  *broadcaster
}

// Cancel removes the subscription. Safe to call multiple times.
func (s *Subscription) Cancel() {
	if s == nil || s.b == nil {
		return
	}
	s.b.mu.Lock()
	delete(s.b.subs, s.id)
	s.b.mu.Unlock()
}

// broadcaster fans events out to registered handlers.
type broadcaster struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]Handler
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[uint64]Handler)}
}

func (b *broadcaster) subscribe(h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subs[b.next] = h
	return &Subscription{id: b.next, b: b}
}

// publish delivers ev to all current subscribers. Handlers are copied out
// under the lock and invoked without it, so a handler may subscribe or cancel
// without deadlocking.
func (b *broadcaster) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
