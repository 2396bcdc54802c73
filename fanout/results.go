package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/streamhive/streambridge/types"
)

// resultSet holds completed results keyed by frame id until the caller
// claims them. Waiters are woken on every completion and re-check for
// their own id, so out-of-order arrival costs nothing but a wakeup.
//
// Frame ids are monotonic, so a watermark of the last settled id is
// enough to reject every stale arrival: results for skipped frames and
// for frames whose wait already timed out are dropped on receipt
// instead of piling up until Cleanup.
type resultSet struct {
	mu        sync.Mutex
	results   map[uint64]*types.Tensor
	watermark uint64
	wake      chan struct{}
	closed    bool
}

func newResultSet() *resultSet {
	return &resultSet{
		results: make(map[uint64]*types.Tensor),
		wake:    make(chan struct{}),
	}
}

// put records a completed result and wakes every waiter. Results at or
// below the watermark belong to frames already settled and are dropped.
func (r *resultSet) put(id uint64, t *types.Tensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || id <= r.watermark {
		return
	}
	r.results[id] = t
	r.broadcast()
}

func (r *resultSet) broadcast() {
	close(r.wake)
	r.wake = make(chan struct{})
}

// take removes and returns the result for id if present.
func (r *resultSet) take(id uint64) (*types.Tensor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.results[id]
	if ok {
		delete(r.results, id)
	}
	return t, ok
}

// release settles every id up to and including the given one: filed
// results under the mark are pruned and late arrivals for them are
// rejected by put. Called for skipped frames and after each emit,
// whether the emitted frame's wait succeeded or timed out.
func (r *resultSet) release(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id <= r.watermark {
		return
	}
	r.watermark = id
	for filed := range r.results {
		if filed <= id {
			delete(r.results, filed)
		}
	}
}

// wait blocks until a result for id arrives, the timeout elapses, or
// the set is closed.
func (r *resultSet) wait(ctx context.Context, id uint64, timeout time.Duration) (*types.Tensor, error) {
	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}
	for {
		r.mu.Lock()
		if t, ok := r.results[id]; ok {
			delete(r.results, id)
			r.mu.Unlock()
			return t, nil
		}
		if r.closed {
			r.mu.Unlock()
			return nil, types.NewError(types.ErrClientClosed, "orchestrator closed")
		}
		wake := r.wake
		r.mu.Unlock()

		select {
		case <-wake:
		case <-timeoutC:
			return nil, types.NewError(types.ErrInputTimeout, "no result within timeout").WithRetryable(true)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// close clears pending results and releases every waiter. Idempotent.
func (r *resultSet) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.results = make(map[uint64]*types.Tensor)
	r.broadcast()
}

func (r *resultSet) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}
