package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/streamhive/streambridge/internal/tensorq"
	"github.com/streamhive/streambridge/types"
	"github.com/streamhive/streambridge/workflow"
)

// Executor is the opaque in-process inference entry point. One call
// executes the active graph once: the executor reads its input tensor
// from the queue set and writes the produced tensors into the matching
// output queues.
type Executor interface {
	Execute(ctx context.Context, g workflow.Graph, q *tensorq.Queues) error
}

// submission is one queued (input, result-future) pair.
type submission struct {
	modality workflow.Modality
	tensor   *types.Tensor
	fut      *future
}

// InProcess drives an in-process backend. A single background loop
// drains the submission FIFO, so submissions are strictly sequential: a
// new cycle never starts before the previous one's future resolves.
type InProcess struct {
	exec   Executor
	queues *tensorq.Queues
	logger *zap.Logger

	// mu serializes graph replacement and introspection reads against
	// the mutable active graph.
	mu    sync.RWMutex
	graph workflow.Graph
	caps  workflow.CapabilitySet

	submissions  *tensorq.Queue[submission]
	videoFutures *futureList
	audioFutures *futureList

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	cleanup sync.Once
}

// NewInProcess creates a client around an in-process executor and starts
// its submission loop.
func NewInProcess(exec Executor, logger *zap.Logger) *InProcess {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "inprocess_client"))

	ctx, cancel := context.WithCancel(context.Background())
	c := &InProcess{
		exec:         exec,
		queues:       tensorq.NewQueues(),
		logger:       logger,
		caps:         workflow.NewCapabilitySet(),
		submissions:  tensorq.NewQueue[submission](),
		videoFutures: newFutureList(maxPendingFutures, logger),
		audioFutures: newFutureList(maxPendingFutures, logger),
		ctx:          ctx,
		cancel:       cancel,
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// Queues exposes the client's queue set so the executor's host can wire
// result delivery.
func (c *InProcess) Queues() *tensorq.Queues {
	return c.queues
}

// SetGraph validates, converts, and activates a graph. On validation
// failure the previously active graph stays in effect.
func (c *InProcess) SetGraph(ctx context.Context, g workflow.Graph) error {
	converted, err := workflow.ValidateAndConvert(g, c.logger)
	if err != nil {
		c.logger.Warn("graph rejected", zap.Error(err))
		return err
	}
	caps := workflow.DetectModalities(converted)

	c.mu.Lock()
	c.graph = converted
	c.caps = caps
	c.mu.Unlock()

	c.logger.Info("graph activated",
		zap.Int("nodes", len(converted)),
		zap.Bool("video_in", caps.AcceptsInput(workflow.ModalityVideo)),
		zap.Bool("audio_in", caps.AcceptsInput(workflow.ModalityAudio)))
	return nil
}

// Capabilities returns the cached modality capabilities of the active
// graph. The cache is replaced exactly when the graph is.
func (c *InProcess) Capabilities() workflow.CapabilitySet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caps
}

func (c *InProcess) activeGraph() workflow.Graph {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph
}

// SubmitVideo queues a video tensor for the next execution cycle.
func (c *InProcess) SubmitVideo(ctx context.Context, t *types.Tensor) error {
	return c.submit(workflow.ModalityVideo, t, c.videoFutures)
}

// SubmitAudio queues an audio tensor for the next execution cycle.
func (c *InProcess) SubmitAudio(ctx context.Context, t *types.Tensor) error {
	return c.submit(workflow.ModalityAudio, t, c.audioFutures)
}

func (c *InProcess) submit(m workflow.Modality, t *types.Tensor, futs *futureList) error {
	if c.activeGraph() == nil {
		return types.NewError(types.ErrWorkflowValidation, "no active graph")
	}
	fut := newFuture()
	futs.push(fut)
	c.submissions.Put(submission{modality: m, tensor: t, fut: fut})
	return nil
}

// AwaitVideoOutput blocks until the oldest outstanding video submission
// resolves. With no outstanding submission it falls back to the raw
// output queue, which lets warmup drain results it did not pair.
func (c *InProcess) AwaitVideoOutput(ctx context.Context, timeout time.Duration) (*types.Tensor, error) {
	if fut, ok := c.videoFutures.pop(); ok {
		return fut.await(ctx, timeout)
	}
	return c.awaitQueue(ctx, c.queues.VideoOut, timeout)
}

// AwaitAudioOutput blocks until the oldest outstanding audio submission
// resolves.
func (c *InProcess) AwaitAudioOutput(ctx context.Context, timeout time.Duration) (*types.Tensor, error) {
	if fut, ok := c.audioFutures.pop(); ok {
		return fut.await(ctx, timeout)
	}
	return c.awaitQueue(ctx, c.queues.AudioOut, timeout)
}

// AwaitTextOutput blocks until the backend produces a text payload.
func (c *InProcess) AwaitTextOutput(ctx context.Context, timeout time.Duration) (string, error) {
	s, err := c.queues.TextOut.Get(ctx, timeout)
	if err != nil {
		return "", mapQueueErr(err)
	}
	return s, nil
}

func (c *InProcess) awaitQueue(ctx context.Context, q *tensorq.Queue[*types.Tensor], timeout time.Duration) (*types.Tensor, error) {
	t, err := q.Get(ctx, timeout)
	if err != nil {
		return nil, mapQueueErr(err)
	}
	return t, nil
}

func mapQueueErr(err error) error {
	switch err {
	case tensorq.ErrTimeout:
		return types.NewError(types.ErrInputTimeout, "no output within timeout").WithRetryable(true)
	case tensorq.ErrClosed:
		return types.NewError(types.ErrClientClosed, "client closed")
	default:
		return err
	}
}

// run drains the submission FIFO. Exceptions raised inside a cycle are
// attached to that cycle's future; callers treat a failed future as
// "this cycle failed" and apply their own fallback.
func (c *InProcess) run() {
	defer c.wg.Done()
	for {
		sub, err := c.submissions.Get(c.ctx, 0)
		if err != nil {
			return
		}
		c.cycle(sub)
	}
}

func (c *InProcess) cycle(sub submission) {
	graph := c.activeGraph()
	if graph == nil {
		sub.fut.resolve(nil, types.NewError(types.ErrWorkflowValidation, "no active graph"))
		return
	}

	var in interface{ Put(*types.Tensor) }
	var out *tensorq.Queue[*types.Tensor]
	var futs *futureList
	switch sub.modality {
	case workflow.ModalityAudio:
		in, out, futs = c.queues.AudioIn, c.queues.AudioOut, c.audioFutures
	default:
		in, out, futs = c.queues.VideoIn, c.queues.VideoOut, c.videoFutures
	}

	in.Put(sub.tensor)
	if err := c.exec.Execute(c.ctx, graph, c.queues); err != nil {
		c.logger.Warn("execute failed", zap.Error(err))
		sub.fut.resolve(nil, types.NewError(types.ErrInternalError, "backend execute").WithCause(err))
		return
	}

	// The backend wrote its result into the matching output queue; the
	// wait is bounded so a misbehaving executor cannot stall the loop.
	result, err := out.Get(c.ctx, executionGateTimeout)
	if err != nil {
		sub.fut.resolve(nil, mapQueueErr(err))
		return
	}
	futs.complete(result)
	sub.fut.resolve(result, nil)
}

// Cleanup stops the submission loop, drains all queues to release
// blocked getters, and fails every outstanding future. Idempotent.
func (c *InProcess) Cleanup(ctx context.Context) error {
	c.cleanup.Do(func() {
		c.cancel()
		c.submissions.Close()
		c.queues.Close()
		closed := types.NewError(types.ErrClientClosed, "client closed")
		c.videoFutures.drain(closed)
		c.audioFutures.drain(closed)

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		}
		c.logger.Info("in-process client cleaned up")
	})
	return nil
}
