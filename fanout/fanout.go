package fanout

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/streamhive/streambridge/client"
	"github.com/streamhive/streambridge/internal/history"
	"github.com/streamhive/streambridge/internal/metrics"
	"github.com/streamhive/streambridge/internal/tensorq"
	"github.com/streamhive/streambridge/pipeline"
	"github.com/streamhive/streambridge/types"
	"github.com/streamhive/streambridge/workflow"
)

// Config tunes the orchestrator's throttling and timeouts.
type Config struct {
	// MinSubmitInterval spaces out video submissions regardless of how
	// fast backends complete.
	MinSubmitInterval time.Duration `yaml:"min_submit_interval" json:"min_submit_interval"`
	// OutputTimeout bounds the wait for one frame's joined result.
	OutputTimeout time.Duration `yaml:"output_timeout" json:"output_timeout"`
	// CollectPoll is the per-backend non-blocking poll interval used by
	// the collector.
	CollectPoll time.Duration `yaml:"collect_poll" json:"collect_poll"`
	// Pipeline configures the audio path on backend 0.
	Pipeline pipeline.Config `yaml:"pipeline" json:"pipeline"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinSubmitInterval: 20 * time.Millisecond,
		OutputTimeout:     5 * time.Second,
		CollectPoll:       10 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MinSubmitInterval == 0 {
		c.MinSubmitInterval = def.MinSubmitInterval
	}
	if c.OutputTimeout == 0 {
		c.OutputTimeout = def.OutputTimeout
	}
	if c.CollectPoll == 0 {
		c.CollectPoll = def.CollectPoll
	}
	return c
}

// pendingFrame is a submitted video frame awaiting its joined result.
// backend is -1 for passthrough frames that never reached a client.
type pendingFrame struct {
	frame       *types.VideoFrame
	backend     int
	submittedAt time.Time
}

// Orchestrator round-robins video across N backend clients and rejoins
// results by frame id. Audio flows through a single-backend pipeline
// bound to the first client.
type Orchestrator struct {
	clients []client.Client
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector
	history *history.Store

	audio *pipeline.Pipeline

	limiter *rate.Limiter
	nextID  atomic.Uint64

	// assignMu guards the frame-to-backend assignment map and the
	// per-backend FIFO of in-flight frame ids. Within one backend
	// submissions complete in order, so the FIFO head is always the id
	// the backend's next result belongs to.
	assignMu    sync.Mutex
	assignments map[uint64]int
	inflight    [][]uint64

	videoPending *tensorq.Queue[pendingFrame]
	results      *resultSet

	videoMu   sync.Mutex
	lastVideo *types.Tensor

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	cleanup sync.Once
}

// New creates an orchestrator over the given clients. At least one
// client is required; the metrics collector and history store may be
// nil.
func New(clients []client.Client, cfg Config, m *metrics.Collector, hist *history.Store, logger *zap.Logger) (*Orchestrator, error) {
	if len(clients) == 0 {
		return nil, types.NewError(types.ErrInternalError, "fanout requires at least one backend client")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		clients:      clients,
		cfg:          cfg,
		logger:       logger.With(zap.String("component", "fanout")),
		metrics:      m,
		history:      hist,
		audio:        pipeline.New(clients[0], cfg.Pipeline, m, logger),
		limiter:      rate.NewLimiter(rate.Every(cfg.MinSubmitInterval), 1),
		assignments:  make(map[uint64]int),
		inflight:     make([][]uint64, len(clients)),
		videoPending: tensorq.NewQueue[pendingFrame](),
		results:      newResultSet(),
		ctx:          ctx,
		cancel:       cancel,
	}
	o.wg.Add(1)
	go o.collect()
	return o, nil
}

// SetGraph activates the graph on every backend client. Activation is
// all-or-nothing per client; a failure stops and reports without
// rolling back clients that already accepted it, since a validated
// graph is accepted deterministically.
func (o *Orchestrator) SetGraph(ctx context.Context, g workflow.Graph) error {
	for i, c := range o.clients {
		if i == 0 {
			// Route through the pipeline so its text forwarder tracks
			// the graph's capabilities.
			if err := o.audio.SetGraph(ctx, g); err != nil {
				return err
			}
			continue
		}
		if err := c.SetGraph(ctx, g); err != nil {
			return types.NewError(types.ErrWorkflowValidation, "graph rejected by backend").
				WithCause(err)
		}
	}
	if err := o.history.RecordActivation(&history.GraphActivation{
		PromptID:   uuid.NewString(),
		Modalities: inputModalities(o.Capabilities()),
		NodeCount:  len(g),
	}); err != nil {
		o.logger.Warn("activation record failed", zap.Error(err))
	}
	return nil
}

// inputModalities renders the accepted input modalities as a stable
// comma-separated list.
func inputModalities(caps workflow.CapabilitySet) string {
	var ms []string
	for _, m := range []workflow.Modality{workflow.ModalityVideo, workflow.ModalityAudio, workflow.ModalityText} {
		if caps.AcceptsInput(m) {
			ms = append(ms, string(m))
		}
	}
	return strings.Join(ms, ",")
}

// Capabilities reports the first client's capability set; every client
// runs the same graph.
func (o *Orchestrator) Capabilities() workflow.CapabilitySet {
	return o.clients[0].Capabilities()
}

// PutVideoFrame throttles, assigns a frame id and a backend by
// round-robin, and submits. Passthrough frames skip the backend but
// still occupy an ordering slot.
func (o *Orchestrator) PutVideoFrame(ctx context.Context, frame *types.VideoFrame) error {
	if frame == nil {
		return types.NewError(types.ErrInternalError, "nil video frame")
	}
	if !o.Capabilities().AcceptsInput(workflow.ModalityVideo) {
		frame.Passthrough = true
		o.videoPending.Put(pendingFrame{frame: frame, backend: -1, submittedAt: time.Now()})
		o.metrics.FramePassthrough("video")
		return nil
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}

	id := o.nextID.Add(1)
	frame.FrameID = id
	backend := int(id % uint64(len(o.clients)))

	if frame.Tensor == nil {
		return types.NewError(types.ErrInternalError, "video frame has no tensor")
	}
	if err := o.clients[backend].SubmitVideo(ctx, frame.Tensor); err != nil {
		return err
	}

	o.assignMu.Lock()
	o.assignments[id] = backend
	o.inflight[backend] = append(o.inflight[backend], id)
	o.metrics.SetPendingAssignments(len(o.assignments))
	o.assignMu.Unlock()

	o.videoPending.Put(pendingFrame{frame: frame, backend: backend, submittedAt: time.Now()})
	o.metrics.FrameSubmitted("video")
	return nil
}

// GetProcessedVideoFrame pops the oldest pending frame, drains newer
// waiting frames as skipped, and joins the survivor with its own result
// by frame id. Results belonging to skipped frames are discarded as
// they arrive.
func (o *Orchestrator) GetProcessedVideoFrame(ctx context.Context) (*types.VideoFrame, error) {
	pending, err := o.videoPending.Get(ctx, 0)
	if err != nil {
		return nil, mapOrchErr(err)
	}

	newest := pending
	for {
		next, ok := o.videoPending.TryGet()
		if !ok {
			break
		}
		newest.frame.Skipped = true
		o.results.release(newest.frame.FrameID)
		o.recordExecution(newest, "skipped")
		o.metrics.FrameSkipped("video")
		newest = next
	}

	if newest.frame.Passthrough {
		return newest.frame, nil
	}

	out, err := o.results.wait(ctx, newest.frame.FrameID, o.cfg.OutputTimeout)
	status := "ok"
	if err != nil || out == nil {
		out = o.recoverVideo(newest.frame, err)
		status = failReason(err)
	} else {
		o.setLastVideo(out)
		o.metrics.RoundTrip("video", time.Since(newest.submittedAt))
	}
	// Settle this id even when the wait timed out, so a result that
	// straggles in later is dropped instead of filed forever.
	o.results.release(newest.frame.FrameID)
	o.recordExecution(newest, status)
	stampVideoResult(newest.frame, out)
	return newest.frame, nil
}

// recordExecution files one cycle outcome in the history store. Frames
// that never reached a backend are not recorded.
func (o *Orchestrator) recordExecution(p pendingFrame, status string) {
	if o.history == nil || p.backend < 0 {
		return
	}
	err := o.history.RecordExecution(&history.ExecutionRecord{
		FrameID:  p.frame.FrameID,
		Modality: string(workflow.ModalityVideo),
		Backend:  strconv.Itoa(p.backend),
		Status:   status,
		Duration: time.Since(p.submittedAt),
	})
	if err != nil {
		o.logger.Warn("execution record failed", zap.Error(err))
	}
}

// PutAudioFrame routes audio to backend 0's pipeline.
func (o *Orchestrator) PutAudioFrame(ctx context.Context, frame *types.AudioFrame) error {
	return o.audio.PutAudioFrame(ctx, frame)
}

// GetProcessedAudioFrame returns the next audio frame from backend 0.
func (o *Orchestrator) GetProcessedAudioFrame(ctx context.Context) (*types.AudioFrame, error) {
	return o.audio.GetProcessedAudioFrame(ctx)
}

// TextOutputs exposes backend 0's text output channel.
func (o *Orchestrator) TextOutputs() <-chan string {
	return o.audio.TextOutputs()
}

// Warm warms every backend client.
func (o *Orchestrator) Warm(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range o.clients {
		if i == 0 {
			g.Go(func() error { return o.audio.Warm(ctx) })
			continue
		}
		g.Go(func() error {
			p := pipeline.New(c, o.cfg.Pipeline, o.metrics, o.logger)
			return p.Warm(ctx)
		})
	}
	return g.Wait()
}

// collect polls every backend with a short timeout and files each
// completed result under the frame id at the head of that backend's
// in-flight FIFO. Backends complete independently, so results may be
// filed out of submission order; the per-id join in
// GetProcessedVideoFrame absorbs that.
func (o *Orchestrator) collect() {
	defer o.wg.Done()
	for {
		if o.ctx.Err() != nil {
			return
		}
		collected := false
		for i, c := range o.clients {
			out, err := c.AwaitVideoOutput(o.ctx, o.cfg.CollectPoll)
			if err != nil {
				continue
			}
			collected = true
			id, ok := o.claimOldest(i)
			if !ok {
				o.logger.Warn("result with no in-flight frame, dropping",
					zap.Int("backend", i))
				continue
			}
			o.results.put(id, out)
		}
		if !collected {
			// Every poll came back empty; yield briefly so an idle
			// orchestrator does not spin.
			select {
			case <-o.ctx.Done():
				return
			case <-time.After(o.cfg.CollectPoll):
			}
		}
	}
}

// claimOldest pops the oldest in-flight frame id for a backend and
// clears its assignment entry.
func (o *Orchestrator) claimOldest(backend int) (uint64, bool) {
	o.assignMu.Lock()
	defer o.assignMu.Unlock()
	fifo := o.inflight[backend]
	if len(fifo) == 0 {
		return 0, false
	}
	id := fifo[0]
	o.inflight[backend] = fifo[1:]
	delete(o.assignments, id)
	o.metrics.SetPendingAssignments(len(o.assignments))
	return id, true
}

// PendingAssignments reports how many submitted frames still await a
// result.
func (o *Orchestrator) PendingAssignments() int {
	o.assignMu.Lock()
	defer o.assignMu.Unlock()
	return len(o.assignments)
}

// failReason names the failure for metrics and history records.
func failReason(cause error) string {
	if reason := string(types.GetErrorCode(cause)); reason != "" {
		return reason
	}
	return "timeout"
}

func (o *Orchestrator) recoverVideo(frame *types.VideoFrame, cause error) *types.Tensor {
	reason := failReason(cause)
	o.logger.Warn("fanout cycle failed, substituting",
		zap.Uint64("frame_id", frame.FrameID),
		zap.String("reason", reason),
		zap.Error(cause))
	o.metrics.FrameRecovered(reason)

	o.videoMu.Lock()
	last := o.lastVideo
	o.videoMu.Unlock()
	if last != nil {
		return last
	}
	if frame.Tensor != nil {
		return frame.Tensor
	}
	return types.ZeroVideoTensor(frame.Width, frame.Height)
}

func (o *Orchestrator) setLastVideo(t *types.Tensor) {
	o.videoMu.Lock()
	o.lastVideo = t
	o.videoMu.Unlock()
}

// Cleanup cancels the collector, tears every client down concurrently,
// and clears result and assignment maps. Idempotent.
func (o *Orchestrator) Cleanup(ctx context.Context) error {
	var err error
	o.cleanup.Do(func() {
		o.cancel()
		o.wg.Wait()

		g, ctx := errgroup.WithContext(ctx)
		for i, c := range o.clients {
			if i == 0 {
				g.Go(func() error { return o.audio.Cleanup(ctx) })
				continue
			}
			g.Go(func() error { return c.Cleanup(ctx) })
		}
		err = g.Wait()

		o.videoPending.Close()
		o.results.close()
		o.assignMu.Lock()
		o.assignments = make(map[uint64]int)
		for i := range o.inflight {
			o.inflight[i] = nil
		}
		o.assignMu.Unlock()
		o.logger.Info("fanout cleaned up", zap.Int("backends", len(o.clients)))
	})
	return err
}

// stampVideoResult writes the joined tensor back onto the frame,
// denormalizing into packed RGB. Timing fields are left untouched.
func stampVideoResult(frame *types.VideoFrame, out *types.Tensor) {
	frame.Tensor = out
	w, h := out.Dims()
	if w == 0 || h == 0 {
		return
	}
	out.Clamp(0, 1)
	data := make([]byte, w*h*3)
	for i := range data {
		data[i] = byte(out.Data[i]*255 + 0.5)
	}
	frame.Data = data
	frame.Width = w
	frame.Height = h
}

func mapOrchErr(err error) error {
	switch err {
	case tensorq.ErrTimeout:
		return types.NewError(types.ErrInputTimeout, "timed out waiting for input frame").WithRetryable(true)
	case tensorq.ErrClosed:
		return types.NewError(types.ErrClientClosed, "orchestrator is shut down")
	default:
		return err
	}
}
