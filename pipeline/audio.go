package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/streamhive/streambridge/internal/tensorq"
	"github.com/streamhive/streambridge/types"
)

// PutAudioFrame submits a frame's samples to the backend and records the
// frame for later re-slicing. Frames arriving while the active graph
// does not accept audio are marked passthrough and queued untouched.
func (p *Pipeline) PutAudioFrame(ctx context.Context, frame *types.AudioFrame) error {
	if frame == nil {
		return types.NewError(types.ErrInternalError, "nil audio frame")
	}
	p.rememberAudioParams(frame)
	if !p.AcceptsAudioInput() {
		frame.Passthrough = true
		p.audioPending.Put(frame)
		p.metrics.FramePassthrough("audio")
		return nil
	}
	if frame.Tensor == nil {
		frame.Tensor = &types.Tensor{
			Data:  frame.Samples,
			Shape: []int{len(frame.Samples)},
		}
	}
	if err := p.client.SubmitAudio(ctx, frame.Tensor); err != nil {
		return err
	}
	p.audioPending.Put(frame)
	p.metrics.FrameSubmitted("audio")
	p.metrics.SetQueueDepth("audio_pending", p.audioPending.Len())
	return nil
}

// GetProcessedAudioFrame returns the next output frame, sliced from a
// running sample buffer so that no sample is duplicated or dropped
// across frame boundaries. When no input frame arrives within the
// configured timeout a silent frame is synthesized from the last seen
// parameters instead of blocking the caller forever.
func (p *Pipeline) GetProcessedAudioFrame(ctx context.Context) (*types.AudioFrame, error) {
	frame, err := p.audioPending.Get(ctx, p.cfg.AudioInputTimeout)
	if err != nil {
		if errors.Is(err, tensorq.ErrTimeout) {
			return p.synthesizeSilentFrame(), nil
		}
		return nil, mapPipelineErr(err)
	}
	if frame.Passthrough {
		return frame, nil
	}

	need := len(frame.Samples)
	samples, err := p.sliceSamples(ctx, need)
	if err != nil {
		return nil, err
	}
	frame.Samples = samples
	frame.Tensor = &types.Tensor{Data: samples, Shape: []int{len(samples)}}
	return frame, nil
}

// sliceSamples yields exactly need samples, topping the running buffer
// up from backend output whenever it holds too few and carrying the
// remainder forward. A shortfall after a timed-out top-up is padded with
// silence so output keeps flowing at the transport's cadence.
func (p *Pipeline) sliceSamples(ctx context.Context, need int) ([]float32, error) {
	p.audioMu.Lock()
	defer p.audioMu.Unlock()

	start := time.Now()
	for len(p.audioBuf) < need {
		out, err := p.client.AwaitAudioOutput(ctx, p.cfg.OutputTimeout)
		if err != nil || out == nil {
			bufErr := types.NewAudioBufferError(need, len(p.audioBuf))
			p.logger.Warn("audio buffer shortfall, padding with silence",
				zap.Int("needed", bufErr.Needed),
				zap.Int("available", bufErr.Available),
				zap.Error(err))
			p.metrics.FrameRecovered(string(types.ErrAudioBufferInsufficient))
			pad := make([]float32, need-len(p.audioBuf))
			p.audioBuf = append(p.audioBuf, pad...)
			break
		}
		p.audioBuf = append(p.audioBuf, out.Data...)
	}
	p.metrics.RoundTrip("audio", time.Since(start))

	samples := make([]float32, need)
	copy(samples, p.audioBuf[:need])
	p.audioBuf = p.audioBuf[need:]
	return samples, nil
}

// rememberAudioParams stores the frame's timing so a silent frame can be
// synthesized if the input stream stalls.
func (p *Pipeline) rememberAudioParams(frame *types.AudioFrame) {
	p.audioMu.Lock()
	p.lastAudioPTS = frame.PTS
	p.lastAudioTB = frame.TimeBase
	p.lastAudioRate = frame.SampleRate
	p.lastAudioN = len(frame.Samples)
	p.audioMu.Unlock()
}

// synthesizeSilentFrame builds a silent frame matching the last seen
// sample count and rate, advancing the pts by one frame duration.
func (p *Pipeline) synthesizeSilentFrame() *types.AudioFrame {
	p.audioMu.Lock()
	defer p.audioMu.Unlock()

	n := p.lastAudioN
	if n == 0 {
		n = p.cfg.WarmupSamples
	}
	rate := p.lastAudioRate
	if rate == 0 {
		rate = 48000
	}
	tb := p.lastAudioTB
	if tb.IsZero() {
		tb = types.Rational{Num: 1, Den: rate}
	}
	// Advance by one frame's worth of ticks so consecutive silent
	// frames stay monotonic.
	if tb.Num > 0 {
		p.lastAudioPTS += int64(n * tb.Den / (rate * tb.Num))
	}
	p.logger.Debug("audio input stalled, synthesizing silence",
		zap.Int("samples", n),
		zap.Int("sample_rate", rate))
	p.metrics.FrameRecovered(string(types.ErrInputTimeout))
	return &types.AudioFrame{
		PTS:        p.lastAudioPTS,
		TimeBase:   tb,
		SampleRate: rate,
		Samples:    make([]float32, n),
		Skipped:    true,
	}
}
