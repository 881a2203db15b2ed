// Package dispatch provides the bounded FIFO queue and the fixed-size worker
// pool that sit between the accept loop and the request handler.
package dispatch

import (
	"context"
	"errors"
	"time"
)

// ErrQueueFull is returned by Enqueue when no slot frees up before the
// admission timeout.
var ErrQueueFull = errors.New("dispatch: queue full")

// Queue is a fixed-capacity FIFO. Enqueue never grows it past Cap(); Dequeue
// blocks until an item is available.
//
// Thread safety:
// All methods are safe for concurrent use. The queue is a buffered channel,
// so ordering is strict FIFO across producers and consumers.
type Queue[E any] struct {
	items chan E
}

// NewQueue creates a queue holding at most capacity items. Capacities below 1
// are raised to 1.
func NewQueue[E any](capacity int) *Queue[E] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[E]{items: make(chan E, capacity)}
}

// Enqueue appends item, waiting up to timeout for a free slot.
//
// Returns:
//   - nil once the item is queued
//   - ErrQueueFull if the timeout elapses first; the queue is unchanged
//   - ctx.Err() if ctx is cancelled first
//
// A timeout <= 0 makes a single non-blocking attempt.
func (q *Queue[E]) Enqueue(ctx context.Context, item E, timeout time.Duration) error {
	select {
	case q.items <- item:
		return nil
	default:
	}

	if timeout <= 0 {
		return ErrQueueFull
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.items <- item:
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Put appends item, waiting as long as it takes or until ctx is done.
func (q *Queue[E]) Put(ctx context.Context, item E) error {
	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes and returns the oldest item, blocking while the queue is empty.
func (q *Queue[E]) Dequeue() E {
	return <-q.items
}

// Len returns the number of queued items.
func (q *Queue[E]) Len() int {
	return len(q.items)
}

// Cap returns the fixed capacity.
func (q *Queue[E]) Cap() int {
	return cap(q.items)
}
