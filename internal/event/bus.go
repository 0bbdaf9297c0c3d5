package event

import (
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/sharedsave/internal/logging"
)

// Handler is a function that handles an event.
type Handler func(Event)

// wildcard is the event type of SubscribeAll subscriptions.
const wildcard = "*"

type subscription struct {
	id        string
	eventType string
	handler   Handler
}

// Bus fans session transitions out to observers: the CLI's verbose
// output, tests and anything else that wants to watch the machine.
//
// Publishing reads an immutable snapshot of the subscriptions, so handlers
// may subscribe or unsubscribe from inside a callback without deadlocking.
type Bus struct {
	// mu serializes writers; readers use subs.
	mu     sync.Mutex
	subs   atomic.Pointer[[]subscription]
	nextID atomic.Uint64
	logger *logging.Logger
}

// NewBus creates a new event bus. A nil logger discards handler panics.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NopLogger()
	}
	b := &Bus{logger: logger.WithComponent("event")}
	b.subs.Store(&[]subscription{})
	return b
}

func (b *Bus) snapshot() []subscription {
	return *b.subs.Load()
}

// Subscribe registers a handler for one event type and returns its ID.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	id := fmt.Sprintf("sub-%d", b.nextID.Add(1))

	b.mu.Lock()
	defer b.mu.Unlock()
	next := append(slices.Clone(b.snapshot()), subscription{id: id, eventType: eventType, handler: handler})
	b.subs.Store(&next)
	return id
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(wildcard, handler)
}

// Unsubscribe removes a subscription and reports whether it existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.snapshot()
	i := slices.IndexFunc(cur, func(s subscription) bool { return s.id == id })
	if i < 0 {
		return false
	}
	next := slices.Delete(slices.Clone(cur), i, i+1)
	b.subs.Store(&next)
	return true
}

// Publish calls the handlers of the event's type, then the wildcard
// handlers, each group in subscription order. A panicking handler is
// logged and skipped.
func (b *Bus) Publish(e Event) {
	subs := b.snapshot()
	eventType := e.EventType()

	for _, s := range subs {
		if s.eventType == eventType {
			b.call(s, e)
		}
	}
	for _, s := range subs {
		if s.eventType == wildcard {
			b.call(s, e)
		}
	}
}

// Emit publishes e, so a Bus can be used wherever a Sink is expected.
func (b *Bus) Emit(e Event) {
	b.Publish(e)
}

func (b *Bus) call(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", e.EventType(),
				"subscription", s.id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	s.handler(e)
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs.Store(&[]subscription{})
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	return len(b.snapshot())
}
