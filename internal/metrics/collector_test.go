package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.FrameSubmitted("video")
		c.FramePassthrough("audio")
		c.FrameSkipped("video")
		c.FrameRecovered("connection lost")
		c.RoundTrip("video", 10*time.Millisecond)
		c.WarmupCycle(time.Second)
		c.SetQueueDepth("video_in", 1)
		c.Reconnect("127.0.0.1:8188")
		c.SetPendingAssignments(3)
	})
}

func TestCollectorRecords(t *testing.T) {
	// One collector per process: promauto registers into the default
	// registry, so the namespace must be unique across tests.
	c := NewCollector("streambridge_test", nil)
	assert.NotPanics(t, func() {
		c.FrameSubmitted("video")
		c.RoundTrip("video", 5*time.Millisecond)
		c.SetQueueDepth("video_in", 1)
		c.SetPendingAssignments(2)
	})
}
