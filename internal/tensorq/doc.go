// Package tensorq provides the per-modality tensor queues that decouple
// transport timing from backend timing.
//
// The video input queue is a capacity-1 slot with drop-oldest eviction:
// enqueue never blocks and the backend always works on the freshest
// frame. The audio input queue and all output queues are unbounded;
// consumers block with a caller-supplied timeout. The queues are the only
// cross-task shared mutable state in the core and their bounded-capacity
// and eviction semantics are the sole concurrency contract — callers
// never lock around them.
package tensorq
