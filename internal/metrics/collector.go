package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector gathers pipeline and backend metrics. A nil *Collector is
// valid and records nothing, so callers never need to guard.
type Collector struct {
	framesSubmitted   *prometheus.CounterVec
	framesPassthrough *prometheus.CounterVec
	framesSkipped     *prometheus.CounterVec
	framesRecovered   *prometheus.CounterVec

	roundTripDuration *prometheus.HistogramVec
	warmupDuration    prometheus.Histogram

	queueDepth *prometheus.GaugeVec
	reconnects *prometheus.CounterVec

	fanoutAssignments prometheus.Gauge

	logger *zap.Logger
}

// NewCollector registers the metric families under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.framesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_submitted_total",
			Help:      "Frames submitted to a backend, by modality",
		},
		[]string{"modality"},
	)
	c.framesPassthrough = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_passthrough_total",
			Help:      "Frames that bypassed the backend because the graph denies their modality",
		},
		[]string{"modality"},
	)
	c.framesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Frames dropped by the latency-bounding rule, by modality",
		},
		[]string{"modality"},
	)
	c.framesRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_recovered_total",
			Help:      "Cycles recovered with a substitute result, by reason",
		},
		[]string{"reason"},
	)

	c.roundTripDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_round_trip_seconds",
			Help:      "Submit-to-result latency per backend cycle",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"modality"},
	)
	c.warmupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "warmup_cycle_seconds",
			Help:      "Duration of synthetic warmup cycles",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	c.queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current depth of the per-modality queues",
		},
		[]string{"queue"},
	)
	c.reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_reconnects_total",
			Help:      "Reconnect attempts per remote backend",
		},
		[]string{"backend"},
	)
	c.fanoutAssignments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fanout_pending_assignments",
			Help:      "Frames submitted to a fan-out backend and not yet collected",
		},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// FrameSubmitted records a backend submission.
func (c *Collector) FrameSubmitted(modality string) {
	if c == nil {
		return
	}
	c.framesSubmitted.WithLabelValues(modality).Inc()
}

// FramePassthrough records a frame that bypassed the backend.
func (c *Collector) FramePassthrough(modality string) {
	if c == nil {
		return
	}
	c.framesPassthrough.WithLabelValues(modality).Inc()
}

// FrameSkipped records a frame dropped by the latency-bounding rule.
func (c *Collector) FrameSkipped(modality string) {
	if c == nil {
		return
	}
	c.framesSkipped.WithLabelValues(modality).Inc()
}

// FrameRecovered records a cycle that completed with a substitute result.
func (c *Collector) FrameRecovered(reason string) {
	if c == nil {
		return
	}
	c.framesRecovered.WithLabelValues(reason).Inc()
}

// RoundTrip records one submit-to-result latency.
func (c *Collector) RoundTrip(modality string, d time.Duration) {
	if c == nil {
		return
	}
	c.roundTripDuration.WithLabelValues(modality).Observe(d.Seconds())
}

// WarmupCycle records one synthetic warmup round trip.
func (c *Collector) WarmupCycle(d time.Duration) {
	if c == nil {
		return
	}
	c.warmupDuration.Observe(d.Seconds())
}

// SetQueueDepth publishes the current depth of a queue.
func (c *Collector) SetQueueDepth(queue string, depth int) {
	if c == nil {
		return
	}
	c.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// Reconnect records a remote reconnect attempt.
func (c *Collector) Reconnect(backend string) {
	if c == nil {
		return
	}
	c.reconnects.WithLabelValues(backend).Inc()
}

// SetPendingAssignments publishes the fan-out assignment map size.
func (c *Collector) SetPendingAssignments(n int) {
	if c == nil {
		return
	}
	c.fanoutAssignments.Set(float64(n))
}
