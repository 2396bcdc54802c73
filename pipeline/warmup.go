package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/streamhive/streambridge/types"
	"github.com/streamhive/streambridge/workflow"
)

// Warm runs synthetic submissions through every modality the active
// graph accepts, draining whatever outputs it is known to produce, so
// first-call backend overhead lands here instead of on the first live
// frame.
func (p *Pipeline) Warm(ctx context.Context) error {
	if p.AcceptsVideoInput() {
		if err := p.WarmVideo(ctx); err != nil {
			return err
		}
	}
	if p.AcceptsAudioInput() {
		if err := p.WarmAudio(ctx); err != nil {
			return err
		}
	}
	return nil
}

// WarmVideo runs the configured number of synthetic video submissions.
func (p *Pipeline) WarmVideo(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.warm_video")
	defer span.End()

	for i := 0; i < p.cfg.WarmupRuns; i++ {
		start := time.Now()
		t := types.ZeroVideoTensor(p.cfg.WarmupWidth, p.cfg.WarmupHeight)
		if err := p.client.SubmitVideo(ctx, t); err != nil {
			return err
		}
		p.drainWarmupOutputs(ctx)
		p.metrics.WarmupCycle(time.Since(start))
		p.logger.Debug("warmup video cycle done",
			zap.Int("run", i+1),
			zap.Duration("elapsed", time.Since(start)))
	}
	return nil
}

// WarmAudio runs the configured number of synthetic audio submissions.
func (p *Pipeline) WarmAudio(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.warm_audio")
	defer span.End()

	for i := 0; i < p.cfg.WarmupRuns; i++ {
		start := time.Now()
		t := types.SilenceTensor(p.cfg.WarmupSamples)
		if err := p.client.SubmitAudio(ctx, t); err != nil {
			return err
		}
		p.drainWarmupOutputs(ctx)
		p.metrics.WarmupCycle(time.Since(start))
		p.logger.Debug("warmup audio cycle done",
			zap.Int("run", i+1),
			zap.Duration("elapsed", time.Since(start)))
	}
	return nil
}

// drainWarmupOutputs collects whatever the graph produces for one
// synthetic submission so warmup outputs never leak into live pairing.
func (p *Pipeline) drainWarmupOutputs(ctx context.Context) {
	caps := p.client.Capabilities()
	if caps.ProducesOutput(workflow.ModalityVideo) {
		if _, err := p.client.AwaitVideoOutput(ctx, p.cfg.OutputTimeout); err != nil {
			p.logger.Debug("warmup video output not collected", zap.Error(err))
		}
	}
	if caps.ProducesOutput(workflow.ModalityAudio) {
		if _, err := p.client.AwaitAudioOutput(ctx, p.cfg.OutputTimeout); err != nil {
			p.logger.Debug("warmup audio output not collected", zap.Error(err))
		}
	}
}
