package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamhive/streambridge/internal/tensorq"
	"github.com/streamhive/streambridge/testutil"
	"github.com/streamhive/streambridge/types"
	"github.com/streamhive/streambridge/workflow"
)

// fakeClient is a scriptable backend client for pipeline tests. Video
// and audio outputs are fed through queues so tests control exactly
// what the pipeline pairs with.
type fakeClient struct {
	mu   sync.Mutex
	caps workflow.CapabilitySet

	videoSubmitted []*types.Tensor
	audioSubmitted []*types.Tensor

	videoOut *tensorq.Queue[*types.Tensor]
	audioOut *tensorq.Queue[*types.Tensor]
	textOut  *tensorq.Queue[string]

	submitErr error
	cleanups  int
}

func newFakeClient(caps workflow.CapabilitySet) *fakeClient {
	return &fakeClient{
		caps:     caps,
		videoOut: tensorq.NewQueue[*types.Tensor](),
		audioOut: tensorq.NewQueue[*types.Tensor](),
		textOut:  tensorq.NewQueue[string](),
	}
}

func (f *fakeClient) SetGraph(ctx context.Context, g workflow.Graph) error { return nil }

func (f *fakeClient) Capabilities() workflow.CapabilitySet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caps
}

func (f *fakeClient) SubmitVideo(ctx context.Context, t *types.Tensor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.videoSubmitted = append(f.videoSubmitted, t)
	return nil
}

func (f *fakeClient) SubmitAudio(ctx context.Context, t *types.Tensor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.audioSubmitted = append(f.audioSubmitted, t)
	return nil
}

func (f *fakeClient) AwaitVideoOutput(ctx context.Context, timeout time.Duration) (*types.Tensor, error) {
	return f.videoOut.Get(ctx, timeout)
}

func (f *fakeClient) AwaitAudioOutput(ctx context.Context, timeout time.Duration) (*types.Tensor, error) {
	return f.audioOut.Get(ctx, timeout)
}

func (f *fakeClient) AwaitTextOutput(ctx context.Context, timeout time.Duration) (string, error) {
	return f.textOut.Get(ctx, timeout)
}

func (f *fakeClient) Cleanup(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups++
	f.videoOut.Close()
	f.audioOut.Close()
	f.textOut.Close()
	return nil
}

func capsFor(inputs []workflow.Modality, outputs ...workflow.Modality) workflow.CapabilitySet {
	set := workflow.NewCapabilitySet()
	for _, m := range inputs {
		c := set[m]
		c.Input = true
		set[m] = c
	}
	for _, m := range outputs {
		c := set[m]
		c.Output = true
		set[m] = c
	}
	return set
}

func videoCaps() workflow.CapabilitySet {
	return capsFor([]workflow.Modality{workflow.ModalityVideo}, workflow.ModalityVideo)
}

func testConfig() Config {
	return Config{
		OutputTimeout:     200 * time.Millisecond,
		AudioInputTimeout: 100 * time.Millisecond,
		WarmupRuns:        2,
		WarmupWidth:       4,
		WarmupHeight:      4,
		WarmupSamples:     8,
	}
}

func TestPipeline_VideoRoundTripKeepsTiming(t *testing.T) {
	fc := newFakeClient(videoCaps())
	p := New(fc, testConfig(), nil, nil)
	defer p.Cleanup(context.Background())

	in := testutil.VideoFrame(12345, 4, 4)
	require.NoError(t, p.PutVideoFrame(context.Background(), in))

	out := types.ZeroVideoTensor(4, 4)
	for i := range out.Data {
		out.Data[i] = 0.5
	}
	fc.videoOut.Put(out)

	got, err := p.GetProcessedVideoFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12345), got.PTS)
	assert.Equal(t, types.Rational{Num: 1, Den: 90000}, got.TimeBase)
	assert.False(t, got.Skipped)
	assert.False(t, got.Passthrough)
	assert.Equal(t, byte(128), got.Data[0])
}

func TestPipeline_PassthroughWhenGraphRejectsVideo(t *testing.T) {
	fc := newFakeClient(workflow.NewCapabilitySet())
	p := New(fc, testConfig(), nil, nil)
	defer p.Cleanup(context.Background())

	in := testutil.VideoFrame(777, 4, 4)
	in.Data[0] = 42
	require.NoError(t, p.PutVideoFrame(context.Background(), in))

	got, err := p.GetProcessedVideoFrame(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Passthrough)
	assert.Equal(t, int64(777), got.PTS)
	assert.Equal(t, byte(42), got.Data[0])

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.Empty(t, fc.videoSubmitted, "passthrough frames must not reach the backend")
}

func TestPipeline_DropOldestPairsNewestFrame(t *testing.T) {
	fc := newFakeClient(videoCaps())
	p := New(fc, testConfig(), nil, nil)
	defer p.Cleanup(context.Background())

	oldest := testutil.VideoFrame(100, 4, 4)
	middle := testutil.VideoFrame(200, 4, 4)
	newest := testutil.VideoFrame(300, 4, 4)
	for _, f := range []*types.VideoFrame{oldest, middle, newest} {
		require.NoError(t, p.PutVideoFrame(context.Background(), f))
	}
	fc.videoOut.Put(types.ZeroVideoTensor(4, 4))

	got, err := p.GetProcessedVideoFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.PTS, "result pairs with the newest waiting frame")
	assert.True(t, oldest.Skipped)
	assert.True(t, middle.Skipped)
	assert.False(t, newest.Skipped)
}

func TestPipeline_VideoFallbackReusesLastGoodOutput(t *testing.T) {
	fc := newFakeClient(videoCaps())
	p := New(fc, testConfig(), nil, nil)
	defer p.Cleanup(context.Background())

	first := testutil.VideoFrame(1, 4, 4)
	require.NoError(t, p.PutVideoFrame(context.Background(), first))
	good := types.ZeroVideoTensor(4, 4)
	for i := range good.Data {
		good.Data[i] = 1
	}
	fc.videoOut.Put(good)
	_, err := p.GetProcessedVideoFrame(context.Background())
	require.NoError(t, err)

	// Second cycle produces no output within the timeout; the last
	// good tensor stands in.
	second := testutil.VideoFrame(2, 4, 4)
	require.NoError(t, p.PutVideoFrame(context.Background(), second))
	got, err := p.GetProcessedVideoFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.PTS)
	assert.Equal(t, byte(255), got.Data[0])
}

func TestPipeline_CleanupIdempotentAndReleasesGetters(t *testing.T) {
	fc := newFakeClient(videoCaps())
	p := New(fc, testConfig(), nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.GetProcessedVideoFrame(context.Background())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, p.Cleanup(context.Background()))
	require.NoError(t, p.Cleanup(context.Background()))

	select {
	case err := <-done:
		assert.Equal(t, types.ErrClientClosed, types.GetErrorCode(err))
	case <-time.After(time.Second):
		t.Fatal("blocked getter was not released by cleanup")
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.Equal(t, 1, fc.cleanups)
}

func TestPipeline_WarmupRunsConfiguredCycles(t *testing.T) {
	fc := newFakeClient(videoCaps())
	p := New(fc, testConfig(), nil, nil)
	defer p.Cleanup(context.Background())

	// Pre-load one output per warmup run so draining never waits.
	fc.videoOut.Put(types.ZeroVideoTensor(4, 4))
	fc.videoOut.Put(types.ZeroVideoTensor(4, 4))

	require.NoError(t, p.Warm(context.Background()))

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Len(t, fc.videoSubmitted, 2)
	w, h := fc.videoSubmitted[0].Dims()
	assert.Equal(t, 4, w)
	assert.Equal(t, 4, h)
}

func TestPipeline_TextForwarder(t *testing.T) {
	fc := newFakeClient(capsFor(
		[]workflow.Modality{workflow.ModalityVideo},
		workflow.ModalityVideo, workflow.ModalityText))
	p := New(fc, testConfig(), nil, nil)
	defer p.Cleanup(context.Background())

	require.NoError(t, p.SetGraph(context.Background(), workflow.Graph{}))
	fc.textOut.Put("hello")

	select {
	case got := <-p.TextOutputs():
		assert.Equal(t, "hello", got)
	case <-time.After(time.Second):
		t.Fatal("text output was not forwarded")
	}
}
