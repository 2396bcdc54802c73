package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/streamhive/streambridge/types"
)

// PutVideoFrame submits a frame's tensor to the backend and records the
// frame for later pairing. Frames arriving while the active graph does
// not accept video are marked passthrough and queued without a
// submission, so GetProcessedVideoFrame returns them unmodified.
func (p *Pipeline) PutVideoFrame(ctx context.Context, frame *types.VideoFrame) error {
	if frame == nil {
		return types.NewError(types.ErrInternalError, "nil video frame")
	}
	if !p.AcceptsVideoInput() {
		frame.Passthrough = true
		p.videoPending.Put(pendingVideo{frame: frame, submittedAt: time.Now()})
		p.metrics.FramePassthrough("video")
		return nil
	}
	if frame.Tensor == nil {
		if frame.Width <= 0 || frame.Height <= 0 {
			return types.NewError(types.ErrInternalError, "video frame has no tensor and no dimensions")
		}
		frame.Tensor = tensorFromRGB(frame.Data, frame.Width, frame.Height)
	}
	if err := p.client.SubmitVideo(ctx, frame.Tensor); err != nil {
		return err
	}
	p.videoPending.Put(pendingVideo{frame: frame, submittedAt: time.Now()})
	p.metrics.FrameSubmitted("video")
	p.metrics.SetQueueDepth("video_pending", p.videoPending.Len())
	return nil
}

// GetProcessedVideoFrame returns the next output frame. The oldest
// pending frame is popped; while newer frames are already waiting, it
// keeps popping and marks the intermediates skipped, so only the newest
// waiting frame is paired with the backend's next result. That keeps
// output latency bounded by the backend's pace rather than the
// transport's. A passthrough frame is returned unmodified.
func (p *Pipeline) GetProcessedVideoFrame(ctx context.Context) (*types.VideoFrame, error) {
	pending, err := p.videoPending.Get(ctx, 0)
	if err != nil {
		return nil, mapPipelineErr(err)
	}

	newest := pending
	for {
		next, ok := p.videoPending.TryGet()
		if !ok {
			break
		}
		newest.frame.Skipped = true
		p.metrics.FrameSkipped("video")
		newest = next
	}

	if newest.frame.Passthrough {
		return newest.frame, nil
	}

	out, err := p.client.AwaitVideoOutput(ctx, p.cfg.OutputTimeout)
	if err != nil || out == nil {
		out = p.recoverVideo(newest.frame, err)
	} else {
		p.setLastVideo(out)
		p.metrics.RoundTrip("video", time.Since(newest.submittedAt))
	}
	p.finishVideo(newest.frame, out)
	return newest.frame, nil
}

// finishVideo stamps the backend result onto the paired frame,
// denormalizing the tensor back into packed RGB. PTS and TimeBase are
// the input frame's own, untouched.
func (p *Pipeline) finishVideo(frame *types.VideoFrame, out *types.Tensor) {
	frame.Tensor = out
	w, h := out.Dims()
	if w == 0 || h == 0 {
		return
	}
	out.Clamp(0, 1)
	data := make([]byte, w*h*3)
	for i := range data {
		data[i] = byte(out.Data[i]*255 + 0.5)
	}
	frame.Data = data
	frame.Width = w
	frame.Height = h
}

// recoverVideo picks the substitute for a failed cycle: the last good
// output when one exists, else the frame's own input tensor, else black.
func (p *Pipeline) recoverVideo(frame *types.VideoFrame, cause error) *types.Tensor {
	reason := "timeout"
	if code := types.GetErrorCode(cause); code != "" {
		reason = string(code)
	}
	p.logger.Warn("video cycle failed, substituting",
		zap.String("reason", reason),
		zap.Error(cause))
	p.metrics.FrameRecovered(reason)

	if last := p.getLastVideo(); last != nil {
		return last
	}
	if frame.Tensor != nil {
		return frame.Tensor
	}
	w, h := frame.Width, frame.Height
	if w <= 0 || h <= 0 {
		w, h = p.cfg.WarmupWidth, p.cfg.WarmupHeight
	}
	return types.ZeroVideoTensor(w, h)
}

func (p *Pipeline) setLastVideo(t *types.Tensor) {
	p.videoMu.Lock()
	p.lastVideo = t
	p.videoMu.Unlock()
}

func (p *Pipeline) getLastVideo() *types.Tensor {
	p.videoMu.Lock()
	defer p.videoMu.Unlock()
	return p.lastVideo
}

// tensorFromRGB converts packed row-major RGB bytes into a normalized
// [1, H, W, 3] tensor.
func tensorFromRGB(data []byte, width, height int) *types.Tensor {
	t := types.NewTensor(1, height, width, 3)
	n := len(t.Data)
	if len(data) < n {
		n = len(data)
	}
	for i := 0; i < n; i++ {
		t.Data[i] = float32(data[i]) / 255.0
	}
	return t
}
