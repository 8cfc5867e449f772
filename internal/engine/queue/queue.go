package queue

import (
	"context"
	"time"
)

// Queue is a bounded FIFO between the capture producer and the consumer.
// Enqueue never blocks; EnqueueWait blocks until there is room; Dequeue waits
// up to a timeout.
type Queue[T any] struct {
	ch chan T
}

// New creates a queue that holds at most capacity items.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Enqueue adds item and reports whether it was accepted.
// A full queue rejects the item immediately.
func (q *Queue[T]) Enqueue(item T) bool {
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

// EnqueueWait adds item, blocking while the queue is full until ctx is done.
func (q *Queue[T]) EnqueueWait(ctx context.Context, item T) error {
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue returns the oldest item, waiting at most timeout for one to arrive.
func (q *Queue[T]) Dequeue(timeout time.Duration) (T, bool) {
	select {
	case item := <-q.ch:
		return item, true
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case item := <-q.ch:
		return item, true
	case <-timer.C:
		var zero T
		return zero, false
	}
}

// TryDequeue returns the oldest item without waiting.
func (q *Queue[T]) TryDequeue() (T, bool) {
	select {
	case item := <-q.ch:
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int { return len(q.ch) }
