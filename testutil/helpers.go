package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/streamhive/streambridge/types"
)

// TestContext returns a context cancelled automatically at test end,
// with a 30 second ceiling so a wedged test fails instead of hanging.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout is TestContext with a custom ceiling.
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext returns an already-cancelled context.
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// VideoFrame builds a black test frame with a 90kHz time base.
func VideoFrame(pts int64, width, height int) *types.VideoFrame {
	return &types.VideoFrame{
		PTS:      pts,
		TimeBase: types.Rational{Num: 1, Den: 90000},
		Width:    width,
		Height:   height,
		Data:     make([]byte, width*height*3),
		Tensor:   types.ZeroVideoTensor(width, height),
	}
}

// AudioFrame builds a silent test frame at 48kHz.
func AudioFrame(pts int64, samples int) *types.AudioFrame {
	return &types.AudioFrame{
		PTS:        pts,
		TimeBase:   types.Rational{Num: 1, Den: 48000},
		SampleRate: 48000,
		Samples:    make([]float32, samples),
	}
}
