// Package eventqueue provides the ordered queue that carries worker events
// from resolver instances to a transport.
//
// Producers never block: Push appends to an unbounded FIFO. A single consumer
// drains it with Pull. Events pushed by one goroutine are pulled in the order
// they were pushed.
package eventqueue

import (
	"context"
	"errors"
	"sync"

	"github.com/specialistvlad/liveresolver/internal/protocol"
)

// ErrClosed is returned by Pull once the queue is closed and drained.
var ErrClosed = errors.New("event queue closed")

// Queue is an unbounded FIFO of events.
type Queue struct {
	mu     sync.Mutex
	items  []protocol.Event
	notify chan struct{}
	closed bool
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends ev. It reports false if the queue is closed.
func (q *Queue) Push(ev protocol.Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.wake()
	return true
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pull removes and returns the oldest event, blocking until one is
// available, the queue is closed and drained, or ctx is done.
func (q *Queue) Pull(ctx context.Context) (protocol.Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = protocol.Event{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return protocol.Event{}, ErrClosed
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return protocol.Event{}, ctx.Err()
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting events. Events already queued can still be pulled.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}
