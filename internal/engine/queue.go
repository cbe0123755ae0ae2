package engine

import (
	"context"
	"sync"
)

// eventQueue is the engine's unbounded FIFO. Producers (command surface,
// action pumps, the poll ticker) append from any goroutine; the loop is
// the single consumer. Unbounded by design: an action's terminal
// notification must never be dropped or block behind a full buffer, or
// the loop would lose liveness.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	signal chan struct{}
	closed bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		// Buffered by one so a push never blocks on the signal.
		signal: make(chan struct{}, 1),
	}
}

// push appends an event. Returns ErrEngineClosed after close.
func (q *eventQueue) push(ev Event) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrEngineClosed
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// pop removes the oldest event, blocking until one is available or the
// context is cancelled. The second return is false when the wait was
// interrupted.
func (q *eventQueue) pop(ctx context.Context) (Event, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = nil // release reference for GC
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// close rejects further pushes. Events already queued remain poppable.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// depth returns the number of queued events, for telemetry.
func (q *eventQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
