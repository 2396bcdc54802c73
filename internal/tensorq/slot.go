package tensorq

import (
	"context"
	"sync"
	"sync/atomic"
)

// Slot is a capacity-1 queue with drop-oldest eviction. A Put into a full
// slot discards the pending item before the new one lands, so Put never
// blocks and a consumer always receives the freshest item.
type Slot[T any] struct {
	mu     sync.Mutex
	item   T
	full   bool
	wake   chan struct{}
	closed bool

	dropped atomic.Int64
}

// NewSlot creates an empty slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{wake: make(chan struct{})}
}

// Put stores an item, evicting the previous one if still pending.
func (s *Slot[T]) Put(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.full {
		s.dropped.Add(1)
	}
	s.item = v
	s.full = true
	close(s.wake)
	s.wake = make(chan struct{})
	s.mu.Unlock()
}

// Get blocks until an item is present or the context is cancelled.
func (s *Slot[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		if s.full {
			v := s.item
			s.item = zero
			s.full = false
			s.mu.Unlock()
			return v, nil
		}
		if s.closed {
			s.mu.Unlock()
			return zero, ErrClosed
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryGet returns the pending item without blocking.
func (s *Slot[T]) TryGet() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		var zero T
		return zero, false
	}
	v := s.item
	var zero T
	s.item = zero
	s.full = false
	return v, true
}

// Len returns 0 or 1.
func (s *Slot[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return 1
	}
	return 0
}

// Dropped returns how many pending items were evicted by newer ones.
func (s *Slot[T]) Dropped() int64 {
	return s.dropped.Load()
}

// Close discards any pending item and releases blocked getters.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	var zero T
	s.item = zero
	s.full = false
	close(s.wake)
	s.wake = make(chan struct{})
}
