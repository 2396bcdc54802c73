package client

import (
	"context"
	"time"

	"github.com/streamhive/streambridge/types"
	"github.com/streamhive/streambridge/workflow"
)

// Client is the contract every backend transport implements. SetGraph
// validates and activates a computation graph; a rejected graph leaves
// the previous one in effect. Submit methods hand a tensor to the
// backend; Await methods block until the matching output is available or
// the timeout elapses. Cleanup tears down background tasks and releases
// every blocked caller; it is idempotent.
type Client interface {
	SetGraph(ctx context.Context, g workflow.Graph) error
	Capabilities() workflow.CapabilitySet

	SubmitVideo(ctx context.Context, t *types.Tensor) error
	SubmitAudio(ctx context.Context, t *types.Tensor) error

	AwaitVideoOutput(ctx context.Context, timeout time.Duration) (*types.Tensor, error)
	AwaitAudioOutput(ctx context.Context, timeout time.Duration) (*types.Tensor, error)
	AwaitTextOutput(ctx context.Context, timeout time.Duration) (string, error)

	Cleanup(ctx context.Context) error
}

// Default bounds shared by both transports.
const (
	// maxPendingFutures bounds outstanding submissions; pushing past it
	// evicts the oldest pending future with the last completed result.
	maxPendingFutures = 50
	// executionGateTimeout bounds the wait for the previous cycle to
	// finish before a new submission is forced through.
	executionGateTimeout = 30 * time.Second
)
