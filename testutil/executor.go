package testutil

import (
	"context"
	"sync"

	"github.com/streamhive/streambridge/internal/tensorq"
	"github.com/streamhive/streambridge/types"
	"github.com/streamhive/streambridge/workflow"
)

// MockExecutor is a scriptable in-process backend. By default it echoes
// each input tensor to the matching output queue; Transform and Err
// override that per test.
type MockExecutor struct {
	mu sync.Mutex

	// Transform maps an input tensor to the output tensor. Nil means
	// echo.
	Transform func(*types.Tensor) *types.Tensor
	// Err, when set, fails every Execute call.
	Err error

	calls int
}

// NewMockExecutor returns an echoing executor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// WithTransform sets the output transform and returns the executor.
func (m *MockExecutor) WithTransform(f func(*types.Tensor) *types.Tensor) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transform = f
	return m
}

// WithError makes every Execute call fail.
func (m *MockExecutor) WithError(err error) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
	return m
}

// Calls reports how many Execute calls completed.
func (m *MockExecutor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Execute consumes one input tensor from whichever input queue holds
// one and writes the transformed result to the matching output queue.
func (m *MockExecutor) Execute(ctx context.Context, g workflow.Graph, q *tensorq.Queues) error {
	m.mu.Lock()
	transform := m.Transform
	err := m.Err
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if transform == nil {
		transform = func(t *types.Tensor) *types.Tensor { return t }
	}

	if t, ok := q.VideoIn.TryGet(); ok {
		q.VideoOut.Put(transform(t))
	} else if t, ok := q.AudioIn.TryGet(); ok {
		q.AudioOut.Put(transform(t))
	}

	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return nil
}
