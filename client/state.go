package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ExecState is the per-connection execution state. A backend that runs
// one graph at a time must not receive a second submission before the
// first completes; the state machine and its gate event enforce that.
type ExecState string

const (
	ExecIdle     ExecState = "idle"
	ExecSubmitted ExecState = "submitted"
	ExecAwaiting ExecState = "awaiting-result"
)

// execGate tracks the execution state machine and exposes the
// execution-complete event gating the next submission. Every transition
// is logged and every wait is timeout-bounded.
type execGate struct {
	mu       sync.Mutex
	state    ExecState
	complete chan struct{} // closed while execution is complete (idle)
	logger   *zap.Logger
}

func newExecGate(logger *zap.Logger) *execGate {
	g := &execGate{
		state:    ExecIdle,
		complete: make(chan struct{}),
		logger:   logger,
	}
	close(g.complete) // idle means the gate starts open
	return g
}

// transition moves the machine to a new state, adjusting the gate:
// entering ExecIdle sets execution-complete, leaving it clears the event.
func (g *execGate) transition(to ExecState) {
	g.mu.Lock()
	from := g.state
	if from == to {
		g.mu.Unlock()
		return
	}
	g.state = to
	if to == ExecIdle {
		close(g.complete)
	} else if from == ExecIdle {
		g.complete = make(chan struct{})
	}
	g.mu.Unlock()

	g.logger.Debug("execution state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
}

// forceComplete marks the current execution finished regardless of what
// the backend reported. Used to recover from protocol and connection
// failures so the submission loop can never hang.
func (g *execGate) forceComplete() {
	g.transition(ExecIdle)
}

// state returns the current execution state.
func (g *execGate) current() ExecState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// waitComplete blocks until the previous execution completes. The wait is
// bounded: on timeout it returns false and the caller decides whether to
// force progress.
func (g *execGate) waitComplete(ctx context.Context, timeout time.Duration) bool {
	g.mu.Lock()
	complete := g.complete
	g.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-complete:
		return true
	case <-timer.C:
		g.logger.Warn("execution gate wait timed out",
			zap.Duration("timeout", timeout),
			zap.String("state", string(g.current())))
		return false
	case <-ctx.Done():
		return false
	}
}
