// Package pipeline orchestrates one backend client against a real-time
// media transport: preprocess, submit, await the matching result,
// postprocess.
//
// The pipeline applies modality gating (frames the active graph cannot
// accept bypass the backend untouched), a drop-oldest pairing rule that
// bounds video latency under backend slowness, and audio re-slicing
// that carries remainder samples across frame boundaries so no sample
// is duplicated or dropped. Timing is never recomputed: an emitted
// frame holds exactly the pts, time base, and sample rate of the frame
// that entered the pipeline for that slot.
package pipeline
