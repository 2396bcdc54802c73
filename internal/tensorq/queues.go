package tensorq

import "github.com/streamhive/streambridge/types"

// Queues bundles every per-modality queue for one backend. It is built
// once per backend client and passed by reference; its lifecycle is tied
// to the client rather than to ambient process globals.
type Queues struct {
	// VideoIn holds the freshest raw input tensor awaiting submission.
	VideoIn *Slot[*types.Tensor]
	// AudioIn holds input audio tensors. Audio cannot be silently
	// resampled without corrupting continuity, so nothing is dropped
	// here; backpressure is applied upstream.
	AudioIn *Queue[*types.Tensor]

	VideoOut *Queue[*types.Tensor]
	AudioOut *Queue[*types.Tensor]
	TextOut  *Queue[string]
}

// NewQueues creates the full queue set for one backend.
func NewQueues() *Queues {
	return &Queues{
		VideoIn:  NewSlot[*types.Tensor](),
		AudioIn:  NewQueue[*types.Tensor](),
		VideoOut: NewQueue[*types.Tensor](),
		AudioOut: NewQueue[*types.Tensor](),
		TextOut:  NewQueue[string](),
	}
}

// Close drains every queue and releases all blocked getters. Idempotent.
func (q *Queues) Close() {
	q.VideoIn.Close()
	q.AudioIn.Close()
	q.VideoOut.Close()
	q.AudioOut.Close()
	q.TextOut.Close()
}
