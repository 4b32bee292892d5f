package queue

import (
	"context"
	"sync"

	"deltabot/internal/metrics"
	"deltabot/internal/model"
)

// Queue is a thread-safe FIFO hand-off of normalized messages from
// ingestion to processing. It is unbounded: polling cadence must never
// block on processing cadence. No dedup happens here; detecting an
// already-handled comment is the reply detector's job.
type Queue struct {
	mu     sync.Mutex
	msgs   []model.QueueMessage
	closed bool
	signal chan struct{} // buffered size 1, coalesces availability signals
}

func New() *Queue {
	return &Queue{
		msgs:   make([]model.QueueMessage, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Push adds a message to the back of the queue. Safe to call from any
// goroutine. Returns false if the queue is closed.
func (q *Queue) Push(msg model.QueueMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.msgs = append(q.msgs, msg)
	metrics.QueueDepth.Set(float64(len(q.msgs)))
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Pop removes and returns the front message, blocking until one is
// available, the queue is closed, or ctx is done.
func (q *Queue) Pop(ctx context.Context) (model.QueueMessage, bool) {
	for {
		q.mu.Lock()
		if len(q.msgs) > 0 {
			msg := q.msgs[0]
			q.msgs = q.msgs[1:]
			metrics.QueueDepth.Set(float64(len(q.msgs)))
			// re-signal if more remain, for a second consumer
			if len(q.msgs) > 0 {
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return msg, true
		}
		if q.closed {
			q.mu.Unlock()
			return model.QueueMessage{}, false
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return model.QueueMessage{}, false
		}
	}
}

// Len returns the number of waiting messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// Close marks the queue closed. Pending messages can still be popped;
// further pushes are rejected.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
