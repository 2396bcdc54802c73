package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/streamhive/streambridge/client"
	"github.com/streamhive/streambridge/internal/metrics"
	"github.com/streamhive/streambridge/internal/tensorq"
	"github.com/streamhive/streambridge/types"
	"github.com/streamhive/streambridge/workflow"
)

// Config tunes the pipeline's timeouts and warmup behavior.
type Config struct {
	// OutputTimeout bounds the wait for a backend result.
	OutputTimeout time.Duration `yaml:"output_timeout" json:"output_timeout"`
	// AudioInputTimeout bounds the wait for the next incoming audio
	// frame before a silent frame is synthesized.
	AudioInputTimeout time.Duration `yaml:"audio_input_timeout" json:"audio_input_timeout"`
	// WarmupRuns is the number of synthetic submissions per modality.
	WarmupRuns int `yaml:"warmup_runs" json:"warmup_runs"`
	// WarmupWidth and WarmupHeight size the synthetic video frames.
	WarmupWidth  int `yaml:"warmup_width" json:"warmup_width"`
	WarmupHeight int `yaml:"warmup_height" json:"warmup_height"`
	// WarmupSamples sizes the synthetic audio runs.
	WarmupSamples int `yaml:"warmup_samples" json:"warmup_samples"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		OutputTimeout:     5 * time.Second,
		AudioInputTimeout: time.Second,
		WarmupRuns:        5,
		WarmupWidth:       512,
		WarmupHeight:      512,
		WarmupSamples:     1024,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.OutputTimeout == 0 {
		c.OutputTimeout = def.OutputTimeout
	}
	if c.AudioInputTimeout == 0 {
		c.AudioInputTimeout = def.AudioInputTimeout
	}
	if c.WarmupRuns == 0 {
		c.WarmupRuns = def.WarmupRuns
	}
	if c.WarmupWidth == 0 {
		c.WarmupWidth = def.WarmupWidth
	}
	if c.WarmupHeight == 0 {
		c.WarmupHeight = def.WarmupHeight
	}
	if c.WarmupSamples == 0 {
		c.WarmupSamples = def.WarmupSamples
	}
	return c
}

// pendingVideo is one frame waiting to be paired with a backend result.
type pendingVideo struct {
	frame       *types.VideoFrame
	submittedAt time.Time
}

// Pipeline pairs transport frames with backend results for one client.
type Pipeline struct {
	client  client.Client
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	videoPending *tensorq.Queue[pendingVideo]
	audioPending *tensorq.Queue[*types.AudioFrame]

	// audioMu guards the running sample buffer and the bookkeeping used
	// to synthesize silent frames on input starvation.
	audioMu       sync.Mutex
	audioBuf      []float32
	lastAudioPTS  int64
	lastAudioTB   types.Rational
	lastAudioRate int
	lastAudioN    int

	// lastVideo is the last good backend output, reused when a cycle
	// fails.
	videoMu   sync.Mutex
	lastVideo *types.Tensor

	textMu     sync.Mutex
	textCh     chan string
	textCancel context.CancelFunc
	textWG     sync.WaitGroup

	cleanup sync.Once
}

// New creates a pipeline around a backend client. The metrics collector
// may be nil.
func New(c client.Client, cfg Config, m *metrics.Collector, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		client:       c,
		cfg:          cfg.withDefaults(),
		logger:       logger.With(zap.String("component", "pipeline")),
		metrics:      m,
		tracer:       otel.Tracer("streambridge/pipeline"),
		videoPending: tensorq.NewQueue[pendingVideo](),
		audioPending: tensorq.NewQueue[*types.AudioFrame](),
		textCh:       make(chan string, 16),
	}
}

// SetGraph activates a graph on the underlying client and starts or
// stops the text forwarder to match what the graph produces.
func (p *Pipeline) SetGraph(ctx context.Context, g workflow.Graph) error {
	if err := p.client.SetGraph(ctx, g); err != nil {
		return err
	}
	if p.client.Capabilities().ProducesOutput(workflow.ModalityText) {
		p.startTextForwarder()
	} else {
		p.stopTextForwarder()
	}
	return nil
}

// Modality query methods are pure reads of the cached capability set.

// AcceptsVideoInput reports whether the active graph takes video input.
func (p *Pipeline) AcceptsVideoInput() bool {
	return p.client.Capabilities().AcceptsInput(workflow.ModalityVideo)
}

// AcceptsAudioInput reports whether the active graph takes audio input.
func (p *Pipeline) AcceptsAudioInput() bool {
	return p.client.Capabilities().AcceptsInput(workflow.ModalityAudio)
}

// AcceptsTextInput reports whether the active graph takes text input.
func (p *Pipeline) AcceptsTextInput() bool {
	return p.client.Capabilities().AcceptsInput(workflow.ModalityText)
}

// ProducesVideoOutput reports whether the active graph emits video.
func (p *Pipeline) ProducesVideoOutput() bool {
	return p.client.Capabilities().ProducesOutput(workflow.ModalityVideo)
}

// ProducesAudioOutput reports whether the active graph emits audio.
func (p *Pipeline) ProducesAudioOutput() bool {
	return p.client.Capabilities().ProducesOutput(workflow.ModalityAudio)
}

// ProducesTextOutput reports whether the active graph emits text.
func (p *Pipeline) ProducesTextOutput() bool {
	return p.client.Capabilities().ProducesOutput(workflow.ModalityText)
}

// Cleanup cancels the text forwarder, tears down the client, and
// releases every blocked getter. Idempotent.
func (p *Pipeline) Cleanup(ctx context.Context) error {
	var err error
	p.cleanup.Do(func() {
		p.stopTextForwarder()
		err = p.client.Cleanup(ctx)
		p.videoPending.Close()
		p.audioPending.Close()
		p.logger.Info("pipeline cleaned up")
	})
	return err
}
