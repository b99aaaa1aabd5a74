// Package queue provides the bounded hand-off between the scan reader
// goroutine and the consumer.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrEnded is returned by Dequeue once the producer has closed the queue and
// every pending element has been consumed, and by Enqueue after Close.
var ErrEnded = errors.New("queue ended")

// Bounded is a fixed-capacity FIFO. Enqueue blocks while full and Dequeue
// blocks while empty. It is safe for one producer and one consumer; all
// synchronisation is internal.
type Bounded[T any] struct {
	mu      sync.Mutex
	items   []T
	cap     int
	closed  bool
	changed chan struct{} // closed and replaced on every state change
}

// NewBounded returns an empty queue holding at most capacity elements.
// A capacity below one is treated as one.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[T]{
		items:   make([]T, 0, capacity),
		cap:     capacity,
		changed: make(chan struct{}),
	}
}

func (q *Bounded[T]) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Enqueue appends v, waiting for space while the queue is full.
func (q *Bounded[T]) Enqueue(ctx context.Context, v T) error {
	q.mu.Lock()
	for {
		if q.closed {
			q.mu.Unlock()
			return ErrEnded
		}
		if len(q.items) < q.cap {
			q.items = append(q.items, v)
			q.broadcastLocked()
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		q.mu.Lock()
	}
}

// Dequeue removes and returns the oldest element, waiting while the queue is
// empty. Pending elements are still delivered after Close; once they are
// gone Dequeue returns ErrEnded.
func (q *Bounded[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	q.mu.Lock()
	for {
		if len(q.items) > 0 {
			v := q.items[0]
			n := copy(q.items, q.items[1:])
			q.items[n] = zero
			q.items = q.items[:n]
			q.broadcastLocked()
			q.mu.Unlock()
			return v, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrEnded
		}
		wait := q.changed
		q.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		q.mu.Lock()
	}
}

// Clear discards pending elements and reopens a closed queue.
func (q *Bounded[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make([]T, 0, q.cap)
	q.closed = false
	q.broadcastLocked()
}

// Close marks the producer as finished. Blocked producers return ErrEnded;
// consumers drain what is left and then receive ErrEnded.
func (q *Bounded[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.broadcastLocked()
}

// Closed reports whether Close has been called since the last Clear.
func (q *Bounded[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of pending elements.
func (q *Bounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Bounded[T]) Cap() int {
	return q.cap
}
