package event

import "sync"

// Queue is an unbounded multi-producer, single-consumer event queue.
// Emit never blocks, so slow consumers cannot stall observers, and no
// signal is dropped while the queue is open.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	ready  chan struct{}
	closed bool
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Emit appends e. Events emitted after Close are discarded.
func (q *Queue) Emit(e Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready returns a channel that receives a value whenever events are
// waiting. A single wake-up may cover several events; call Drain.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Drain removes and returns all queued events in emission order.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting events. Already queued events can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
