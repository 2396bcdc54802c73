package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamhive/streambridge/testutil"
	"github.com/streamhive/streambridge/types"
	"github.com/streamhive/streambridge/workflow"
)

func videoGraph() workflow.Graph {
	return workflow.Graph{
		"12": {ClassType: workflow.NodeLoadImage, Inputs: map[string]any{"image": "frame.jpg"}},
		"13": {ClassType: workflow.NodePreviewImage, Inputs: map[string]any{"images": []any{"12", float64(0)}}},
	}
}

func TestInProcess_SubmitAwaitVideo(t *testing.T) {
	exec := testutil.NewMockExecutor()
	c := NewInProcess(exec, nil)
	defer c.Cleanup(context.Background())

	require.NoError(t, c.SetGraph(context.Background(), videoGraph()))

	in := types.ZeroVideoTensor(8, 8)
	require.NoError(t, c.SubmitVideo(context.Background(), in))

	out, err := c.AwaitVideoOutput(context.Background(), 2*time.Second)
	require.NoError(t, err)
	assert.Same(t, in, out)
	assert.Equal(t, 1, exec.Calls())
}

func TestInProcess_SubmitWithoutGraph(t *testing.T) {
	c := NewInProcess(testutil.NewMockExecutor(), nil)
	defer c.Cleanup(context.Background())

	err := c.SubmitVideo(context.Background(), types.ZeroVideoTensor(4, 4))
	require.Error(t, err)
	assert.Equal(t, types.ErrWorkflowValidation, types.GetErrorCode(err))
}

func TestInProcess_RejectedGraphKeepsPrevious(t *testing.T) {
	c := NewInProcess(testutil.NewMockExecutor(), nil)
	defer c.Cleanup(context.Background())

	require.NoError(t, c.SetGraph(context.Background(), videoGraph()))
	before := c.Capabilities()

	bad := workflow.Graph{"1": {ClassType: workflow.NodeLoadImage, Inputs: map[string]any{}}}
	err := c.SetGraph(context.Background(), bad)
	require.Error(t, err)

	assert.Equal(t, before, c.Capabilities())
	// The old graph still accepts submissions.
	require.NoError(t, c.SubmitVideo(context.Background(), types.ZeroVideoTensor(4, 4)))
	_, err = c.AwaitVideoOutput(context.Background(), 2*time.Second)
	assert.NoError(t, err)
}

func TestInProcess_SubmissionsAreSequential(t *testing.T) {
	// The transform records the order cycles execute in; futures resolve
	// strictly in submission order because one loop drains the FIFO.
	var order []int
	seq := 0
	exec := testutil.NewMockExecutor().WithTransform(func(in *types.Tensor) *types.Tensor {
		seq++
		order = append(order, seq)
		return in
	})
	c := NewInProcess(exec, nil)
	defer c.Cleanup(context.Background())

	require.NoError(t, c.SetGraph(context.Background(), videoGraph()))
	for i := 0; i < 5; i++ {
		require.NoError(t, c.SubmitVideo(context.Background(), types.ZeroVideoTensor(4, 4)))
	}
	for i := 0; i < 5; i++ {
		_, err := c.AwaitVideoOutput(context.Background(), 2*time.Second)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, order)
}

func TestInProcess_ExecuteFailureAttachedToFuture(t *testing.T) {
	exec := testutil.NewMockExecutor().WithError(assert.AnError)
	c := NewInProcess(exec, nil)
	defer c.Cleanup(context.Background())

	require.NoError(t, c.SetGraph(context.Background(), videoGraph()))
	require.NoError(t, c.SubmitVideo(context.Background(), types.ZeroVideoTensor(4, 4)))

	_, err := c.AwaitVideoOutput(context.Background(), 2*time.Second)
	require.Error(t, err)
	assert.Equal(t, types.ErrInternalError, types.GetErrorCode(err))
}

func TestInProcess_AudioPath(t *testing.T) {
	exec := testutil.NewMockExecutor()
	c := NewInProcess(exec, nil)
	defer c.Cleanup(context.Background())

	g := workflow.Graph{
		"1": {ClassType: workflow.NodeAudioTensorIn, Inputs: map[string]any{}},
		"2": {ClassType: workflow.NodeAudioTensorOut, Inputs: map[string]any{}},
	}
	require.NoError(t, c.SetGraph(context.Background(), g))
	assert.True(t, c.Capabilities().AcceptsInput(workflow.ModalityAudio))

	in := types.SilenceTensor(160)
	require.NoError(t, c.SubmitAudio(context.Background(), in))
	out, err := c.AwaitAudioOutput(context.Background(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 160, out.Len())
}

func TestInProcess_CleanupIdempotentAndReleasesWaiters(t *testing.T) {
	c := NewInProcess(testutil.NewMockExecutor(), nil)
	require.NoError(t, c.SetGraph(context.Background(), videoGraph()))

	done := make(chan error, 1)
	go func() {
		_, err := c.AwaitTextOutput(context.Background(), 0)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, c.Cleanup(context.Background()))
	require.NoError(t, c.Cleanup(context.Background()))

	select {
	case err := <-done:
		assert.Equal(t, types.ErrClientClosed, types.GetErrorCode(err))
	case <-time.After(time.Second):
		t.Fatal("text waiter still blocked after cleanup")
	}
}

func TestInProcess_AwaitHonorsCancelledContext(t *testing.T) {
	c := NewInProcess(testutil.NewMockExecutor(), nil)
	defer c.Cleanup(context.Background())
	require.NoError(t, c.SetGraph(context.Background(), videoGraph()))

	_, err := c.AwaitVideoOutput(testutil.CancelledContext(), time.Second)
	require.ErrorIs(t, err, context.Canceled)
}
