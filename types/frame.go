package types

// Rational is an exact time base expressed as a fraction of a second.
// A video stream with a 90kHz clock has TimeBase {1, 90000}.
type Rational struct {
	Num int `json:"num"`
	Den int `json:"den"`
}

// Seconds converts a pts expressed in this time base to seconds.
func (r Rational) Seconds(pts int64) float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(pts) * float64(r.Num) / float64(r.Den)
}

// IsZero reports whether the time base is unset.
func (r Rational) IsZero() bool {
	return r.Num == 0 && r.Den == 0
}

// VideoFrame is a single video frame moving through the pipeline.
//
// PTS and TimeBase are carried, never recomputed: the frame emitted for a
// given slot holds exactly the timing of the frame that entered the
// pipeline for that slot.
type VideoFrame struct {
	// PTS is the presentation timestamp in TimeBase units.
	PTS int64
	// TimeBase is the clock the PTS is expressed in.
	TimeBase Rational
	// Width and Height describe the decoded payload.
	Width  int
	Height int
	// Data is the raw decoded payload (packed RGB, row-major).
	Data []byte
	// Tensor is the normalized representation submitted to a backend.
	Tensor *Tensor
	// Skipped marks a frame dropped by the latency-bounding rule; its
	// timing is still emitted but it was never paired with a result.
	Skipped bool
	// Passthrough marks a frame that bypassed the backend because the
	// active graph does not accept video input.
	Passthrough bool
	// FrameID is assigned by the fan-out orchestrator for result joining.
	// Zero when the frame runs through a single-backend pipeline.
	FrameID uint64
}

// AudioFrame is a sliced run of audio samples moving through the pipeline.
type AudioFrame struct {
	// PTS is the presentation timestamp in TimeBase units.
	PTS int64
	// TimeBase is the clock the PTS is expressed in.
	TimeBase Rational
	// SampleRate is the number of samples per second.
	SampleRate int
	// Samples holds the mono samples for this frame.
	Samples []float32
	// Tensor is the normalized representation submitted to a backend.
	Tensor *Tensor
	// Skipped marks a frame never paired with a backend result.
	Skipped bool
	// Passthrough marks a frame that bypassed the backend because the
	// active graph does not accept audio input.
	Passthrough bool
}

// SampleCount returns the number of samples this frame carries.
func (f *AudioFrame) SampleCount() int {
	return len(f.Samples)
}
