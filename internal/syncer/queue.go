package syncer

import (
	"sync"

	"github.com/roach88/streamcore/internal/protocol"
)

// updateQueue is a thread-safe FIFO of sync updates for one stream.
//
// The queue is unbounded so the receive loop never blocks on a slow
// stream; each stream drains its own queue in its own goroutine.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the worker loop.
type updateQueue struct {
	mu      sync.Mutex
	updates []*protocol.StreamAndCookie
	closed  bool
	signal  chan struct{} // Signals update availability (buffered, size 1)
}

func newUpdateQueue() *updateQueue {
	return &updateQueue{
		updates: make([]*protocol.StreamAndCookie, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds an update to the back of the queue.
// Returns false if the queue is closed.
func (q *updateQueue) Enqueue(u *protocol.StreamAndCookie) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.updates = append(q.updates, u)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front update without blocking.
func (q *updateQueue) TryDequeue() (*protocol.StreamAndCookie, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.updates) == 0 {
		return nil, false
	}
	u := q.updates[0]
	q.updates[0] = nil
	if len(q.updates) == 1 {
		q.updates = q.updates[:0]
	} else {
		q.updates = q.updates[1:]
	}
	return u, true
}

// Wait returns a channel that signals when updates may be available. It
// is closed when the queue is closed.
func (q *updateQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *updateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.updates)
}

// Close signals that no more updates will be enqueued and wakes the
// worker. Updates already queued are still delivered.
func (q *updateQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
