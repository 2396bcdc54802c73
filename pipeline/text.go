package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/streamhive/streambridge/types"
)

// textPollInterval paces the forwarder's polls of the client's text
// output so an idle graph costs next to nothing.
const textPollInterval = 100 * time.Millisecond

// TextOutputs exposes the channel the forwarder publishes on. The
// channel stays valid across graph changes; it only stops carrying
// values while no active graph produces text.
func (p *Pipeline) TextOutputs() <-chan string {
	return p.textCh
}

// startTextForwarder launches the polling goroutine if one is not
// already running.
func (p *Pipeline) startTextForwarder() {
	p.textMu.Lock()
	defer p.textMu.Unlock()
	if p.textCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.textCancel = cancel
	p.textWG.Add(1)
	go p.forwardText(ctx)
	p.logger.Debug("text forwarder started")
}

// stopTextForwarder cancels the polling goroutine and waits for it.
func (p *Pipeline) stopTextForwarder() {
	p.textMu.Lock()
	cancel := p.textCancel
	p.textCancel = nil
	p.textMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.textWG.Wait()
	p.logger.Debug("text forwarder stopped")
}

// forwardText polls the client for text output and publishes each piece
// on the outbound channel, dropping when the consumer lags.
func (p *Pipeline) forwardText(ctx context.Context) {
	defer p.textWG.Done()
	for {
		text, err := p.client.AwaitTextOutput(ctx, textPollInterval)
		if err != nil {
			if types.GetErrorCode(err) == types.ErrClientClosed || ctx.Err() != nil {
				return
			}
			continue
		}
		select {
		case p.textCh <- text:
		case <-ctx.Done():
			return
		default:
			p.logger.Warn("text consumer lagging, dropping output",
				zap.Int("len", len(text)))
		}
	}
}
