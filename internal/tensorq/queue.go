package tensorq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrTimeout is returned by Get when no item arrived in time.
	ErrTimeout = errors.New("tensorq: get timed out")
	// ErrClosed is returned once a queue has been closed and drained.
	ErrClosed = errors.New("tensorq: queue closed")
)

// Queue is an unbounded FIFO. Put never blocks; Get blocks until an item
// is present, the timeout elapses, or the context is cancelled.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	wake   chan struct{}
	closed bool

	puts atomic.Int64
	gets atomic.Int64
}

// NewQueue creates an empty unbounded queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{wake: make(chan struct{})}
}

// Put appends an item. Puts after Close are discarded.
func (q *Queue[T]) Put(v T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, v)
	q.puts.Add(1)
	q.broadcast()
	q.mu.Unlock()
}

// broadcast wakes every blocked getter. Caller holds q.mu.
func (q *Queue[T]) broadcast() {
	close(q.wake)
	q.wake = make(chan struct{})
}

// Get removes and returns the oldest item. A timeout of zero means no
// timeout; the wait is then bounded only by the context.
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items = q.items[1:]
			q.gets.Add(1)
			q.mu.Unlock()
			return v, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-wake:
		case <-timeoutC:
			return zero, ErrTimeout
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryGet removes and returns the oldest item without blocking.
func (q *Queue[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	q.gets.Add(1)
	return v, true
}

// Len returns the current number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close discards queued items and releases every blocked getter.
// Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	q.broadcast()
}

// Stats reports lifetime put/get counts.
func (q *Queue[T]) Stats() (puts, gets int64) {
	return q.puts.Load(), q.gets.Load()
}
