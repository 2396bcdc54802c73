package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/streamhive/streambridge/types"
)

// future carries the eventual result of one submission cycle. It is
// resolved exactly once, with either a tensor or an error.
type future struct {
	done   chan struct{}
	once   sync.Once
	result *types.Tensor
	err    error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

// resolve completes the future. Later calls are ignored.
func (f *future) resolve(t *types.Tensor, err error) {
	f.once.Do(func() {
		f.result = t
		f.err = err
		close(f.done)
	})
}

// await blocks until the future resolves, the timeout elapses, or the
// context is cancelled. A timeout of zero disables the timer.
func (f *future) await(ctx context.Context, timeout time.Duration) (*types.Tensor, error) {
	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}
	select {
	case <-f.done:
		return f.result, f.err
	case <-timeoutC:
		return nil, types.NewError(types.ErrInputTimeout, "backend result not ready").WithRetryable(true)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// futureList bounds outstanding futures for one modality. Pushing past
// the bound evicts the oldest pending future and resolves it with the
// last successfully completed result, so a slow backend degrades to
// bounded staleness instead of unbounded memory or a blocked caller.
type futureList struct {
	mu       sync.Mutex
	pending  []*future
	lastGood *types.Tensor
	bound    int
	logger   *zap.Logger
}

func newFutureList(bound int, logger *zap.Logger) *futureList {
	return &futureList{bound: bound, logger: logger}
}

// push appends a new future, evicting the oldest when full.
func (l *futureList) push(f *future) {
	l.mu.Lock()
	var evicted *future
	var stale *types.Tensor
	if len(l.pending) >= l.bound {
		evicted = l.pending[0]
		l.pending = l.pending[1:]
		stale = l.lastGood
	}
	l.pending = append(l.pending, f)
	l.mu.Unlock()

	if evicted != nil {
		// Bounded-staleness fallback: the evicted caller gets the last
		// known good result rather than an error or a hang.
		l.logger.Warn("future list saturated, evicting oldest",
			zap.String("code", string(types.ErrQueueSaturation)))
		evicted.resolve(stale, nil)
	}
}

// pop removes and returns the oldest pending future.
func (l *futureList) pop() (*future, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return nil, false
	}
	f := l.pending[0]
	l.pending = l.pending[1:]
	return f, true
}

// complete records a successful result for staleness fallback.
func (l *futureList) complete(t *types.Tensor) {
	l.mu.Lock()
	l.lastGood = t
	l.mu.Unlock()
}

// drain resolves every pending future with the given error.
func (l *futureList) drain(err error) {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, f := range pending {
		f.resolve(nil, err)
	}
}

func (l *futureList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
