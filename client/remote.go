package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamhive/streambridge/internal/tensorq"
	"github.com/streamhive/streambridge/types"
	"github.com/streamhive/streambridge/workflow"
)

// RemoteConfig configures one remote backend connection.
type RemoteConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
	// ReconnectDelay is the fixed delay between reconnect attempts.
	// Retries are unbounded.
	ReconnectDelay time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	// SubmitTimeout bounds the HTTP graph submission.
	SubmitTimeout time.Duration `yaml:"submit_timeout" json:"submit_timeout"`
}

// DefaultRemoteConfig returns a config pointing at a local backend.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Host:           "127.0.0.1",
		Port:           8188,
		ReconnectDelay: 2 * time.Second,
		SubmitTimeout:  10 * time.Second,
	}
}

// Addr returns the host:port pair.
func (c RemoteConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c RemoteConfig) withDefaults() RemoteConfig {
	def := DefaultRemoteConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = def.SubmitTimeout
	}
	return c
}

// submitRequest is the HTTP body of a graph submission.
type submitRequest struct {
	PromptID string         `json:"prompt_id"`
	ClientID string         `json:"client_id"`
	Prompt   workflow.Graph `json:"prompt"`
}

// remoteSubmission is one queued input for the remote backend. Results
// travel back through the output queues, not a per-call future: the
// execution-complete gate is what pairs a submission with its result.
type remoteSubmission struct {
	modality workflow.Modality
	tensor   *types.Tensor
}

// Remote drives a backend reached over HTTP plus a persistent websocket.
// The backend executes one graph at a time, so an execution-complete
// gate serializes submissions; inbound binary result frames open the
// gate immediately without waiting for any terminal status message.
type Remote struct {
	cfg      RemoteConfig
	clientID string
	httpc    *http.Client
	queues   *tensorq.Queues
	gate     *execGate
	logger   *zap.Logger

	mu    sync.RWMutex
	graph workflow.Graph
	caps  workflow.CapabilitySet

	connMu sync.Mutex
	conn   *websocket.Conn

	inflightMu sync.Mutex
	inflight   *remoteSubmission
	lastW      int
	lastH      int

	submissions *tensorq.Queue[remoteSubmission]

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	cleanup sync.Once
}

// NewRemote creates a remote client and starts its listener and
// submission loops. The websocket is dialed in the background; callers
// can submit immediately and the gate absorbs early failures.
func NewRemote(cfg RemoteConfig, logger *zap.Logger) *Remote {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	logger = logger.With(
		zap.String("component", "remote_client"),
		zap.String("backend", cfg.Addr()))

	ctx, cancel := context.WithCancel(context.Background())
	c := &Remote{
		cfg:         cfg,
		clientID:    uuid.NewString(),
		httpc:       &http.Client{Timeout: cfg.SubmitTimeout},
		queues:      tensorq.NewQueues(),
		gate:        newExecGate(logger),
		logger:      logger,
		caps:        workflow.NewCapabilitySet(),
		submissions: tensorq.NewQueue[remoteSubmission](),
		ctx:         ctx,
		cancel:      cancel,
		lastW:       512,
		lastH:       512,
	}

	c.wg.Add(2)
	go c.listen()
	go c.runSubmissions()
	return c
}

// Queues exposes the client's queue set.
func (c *Remote) Queues() *tensorq.Queues {
	return c.queues
}

// SetGraph validates, converts, and activates a graph. The graph travels
// with every submission, so activation is local state only. A rejected
// graph leaves the previous one in effect.
func (c *Remote) SetGraph(ctx context.Context, g workflow.Graph) error {
	converted, err := workflow.ValidateAndConvert(g, c.logger)
	if err != nil {
		c.logger.Warn("graph rejected", zap.Error(err))
		return err
	}
	caps := workflow.DetectModalities(converted)

	c.mu.Lock()
	c.graph = converted
	c.caps = caps
	c.mu.Unlock()

	c.logger.Info("graph activated", zap.Int("nodes", len(converted)))
	return nil
}

// Capabilities returns the cached modality capabilities of the active
// graph. The cache is replaced exactly when the graph is.
func (c *Remote) Capabilities() workflow.CapabilitySet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caps
}

func (c *Remote) activeGraph() workflow.Graph {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph
}

// SubmitVideo queues a video tensor for the next execution cycle.
func (c *Remote) SubmitVideo(ctx context.Context, t *types.Tensor) error {
	if w, h := t.Dims(); w > 0 {
		c.inflightMu.Lock()
		c.lastW, c.lastH = w, h
		c.inflightMu.Unlock()
	}
	return c.submit(workflow.ModalityVideo, t)
}

// SubmitAudio queues an audio tensor for the next execution cycle.
func (c *Remote) SubmitAudio(ctx context.Context, t *types.Tensor) error {
	return c.submit(workflow.ModalityAudio, t)
}

func (c *Remote) submit(m workflow.Modality, t *types.Tensor) error {
	if c.activeGraph() == nil {
		return types.NewError(types.ErrWorkflowValidation, "no active graph")
	}
	c.submissions.Put(remoteSubmission{modality: m, tensor: t})
	return nil
}

// AwaitVideoOutput blocks until the backend delivers a processed frame.
func (c *Remote) AwaitVideoOutput(ctx context.Context, timeout time.Duration) (*types.Tensor, error) {
	t, err := c.queues.VideoOut.Get(ctx, timeout)
	if err != nil {
		return nil, mapQueueErr(err)
	}
	return t, nil
}

// AwaitAudioOutput blocks until the backend delivers processed audio.
func (c *Remote) AwaitAudioOutput(ctx context.Context, timeout time.Duration) (*types.Tensor, error) {
	t, err := c.queues.AudioOut.Get(ctx, timeout)
	if err != nil {
		return nil, mapQueueErr(err)
	}
	return t, nil
}

// AwaitTextOutput blocks until the backend delivers a text payload.
func (c *Remote) AwaitTextOutput(ctx context.Context, timeout time.Duration) (string, error) {
	s, err := c.queues.TextOut.Get(ctx, timeout)
	if err != nil {
		return "", mapQueueErr(err)
	}
	return s, nil
}

// runSubmissions serializes execution cycles: wait for the previous
// cycle to complete, POST the graph, then stream the input frame over
// the persistent connection.
func (c *Remote) runSubmissions() {
	defer c.wg.Done()
	for {
		sub, err := c.submissions.Get(c.ctx, 0)
		if err != nil {
			return
		}

		if !c.gate.waitComplete(c.ctx, executionGateTimeout) {
			if c.ctx.Err() != nil {
				return
			}
			// The backend went silent mid-cycle. Recover the stuck cycle
			// locally and force progress rather than hang.
			c.recoverInflight("execution gate timeout")
		}

		c.gate.transition(ExecSubmitted)
		c.setInflight(&sub)

		if err := c.postGraph(); err != nil {
			c.logger.Warn("graph submission failed", zap.Error(err))
			c.recoverInflight("graph submission failed")
			continue
		}
		if err := c.sendInput(sub); err != nil {
			c.logger.Warn("input send failed", zap.Error(err))
			c.recoverInflight("input send failed")
			continue
		}
		c.markAwaiting()
	}
}

// markAwaiting moves the gate to awaiting-result unless the cycle is
// already over. A fast backend can deliver the binary result between
// sendInput and this point; transitioning then would re-close the gate
// with no result left to open it, wedging the next cycle until the
// gate timeout. Holding inflightMu orders this against clearInflight.
func (c *Remote) markAwaiting() {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	if c.inflight != nil {
		c.gate.transition(ExecAwaiting)
	}
}

// postGraph submits the active graph for one execution.
func (c *Remote) postGraph() error {
	body, err := json.Marshal(submitRequest{
		PromptID: uuid.NewString(),
		ClientID: c.clientID,
		Prompt:   c.activeGraph(),
	})
	if err != nil {
		return types.NewError(types.ErrInternalError, "marshal graph").WithCause(err)
	}

	url := fmt.Sprintf("http://%s/prompt", c.cfg.Addr())
	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return types.NewError(types.ErrInternalError, "build submit request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return types.NewError(types.ErrConnectionLost, "submit graph").
			WithBackend(c.cfg.Addr()).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return types.NewError(types.ErrBackendProtocol,
			fmt.Sprintf("submit graph: status %d", resp.StatusCode)).WithBackend(c.cfg.Addr())
	}
	return nil
}

// sendInput streams the input tensor over the websocket using the same
// 8-byte header framing the backend uses for results.
func (c *Remote) sendInput(sub remoteSubmission) error {
	conn := c.currentConn()
	if conn == nil {
		return types.NewError(types.ErrConnectionLost, "no active connection").WithRetryable(true)
	}

	var payload []byte
	if sub.modality == workflow.ModalityAudio {
		payload = encodeAudioInput(sub.tensor)
	} else {
		encoded, err := encodeInputFrame(sub.tensor)
		if err != nil {
			return err
		}
		payload = encoded
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.SubmitTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageBinary, payload); err != nil {
		return types.NewError(types.ErrConnectionLost, "write input frame").
			WithRetryable(true).WithCause(err)
	}
	return nil
}

// listen owns the persistent connection: dial, drain inbound messages,
// and on loss reconnect with unbounded retry at a fixed delay.
func (c *Remote) listen() {
	defer c.wg.Done()
	for {
		if c.ctx.Err() != nil {
			return
		}
		conn, err := c.dial()
		if err != nil {
			c.logger.Warn("backend dial failed, retrying",
				zap.Duration("delay", c.cfg.ReconnectDelay),
				zap.Error(err))
			c.recoverInflight("backend unreachable")
			if !c.sleep(c.cfg.ReconnectDelay) {
				return
			}
			continue
		}

		c.setConn(conn)
		c.logger.Info("backend connected")
		c.readLoop(conn)
		c.setConn(nil)
		_ = conn.Close(websocket.StatusNormalClosure, "reconnecting")

		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn("backend connection lost, reconnecting",
			zap.Duration("delay", c.cfg.ReconnectDelay))
		c.recoverInflight("connection lost")
		if !c.sleep(c.cfg.ReconnectDelay) {
			return
		}
	}
}

func (c *Remote) dial() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.SubmitTimeout)
	defer cancel()
	url := fmt.Sprintf("ws://%s/ws?clientId=%s", c.cfg.Addr(), c.clientID)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(64 << 20) // result frames are full images
	return conn, nil
}

// readLoop classifies inbound messages until the connection fails.
func (c *Remote) readLoop(conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(c.ctx)
		if err != nil {
			return
		}
		switch typ {
		case websocket.MessageText:
			c.handleText(data)
		case websocket.MessageBinary:
			c.handleBinary(data)
		}
	}
}

// handleText processes a JSON status message. Unknown tags are a
// protocol error recovered locally, never a hang.
func (c *Remote) handleText(data []byte) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("undecodable status message",
			zap.String("code", string(types.ErrBackendProtocol)),
			zap.Error(err))
		c.recoverInflight("undecodable message")
		return
	}
	switch msg.Type {
	case msgStatus, msgProgress:
		c.logger.Debug("backend progress", zap.String("type", msg.Type))
	case msgExecuting:
		c.logger.Debug("backend executing")
	case msgExecuted:
		// Completion is driven by the binary result frame; a terminal
		// status may still carry a text payload.
		c.forwardText(msg.Data)
	case msgError:
		c.logger.Warn("backend reported error", zap.ByteString("data", msg.Data))
		c.recoverInflight("backend error message")
	default:
		c.logger.Warn("unexpected message tag",
			zap.String("type", msg.Type),
			zap.String("code", string(types.ErrBackendProtocol)))
		c.recoverInflight("unexpected message")
	}
}

// forwardText pushes a text payload from a terminal status message into
// the text output queue.
func (c *Remote) forwardText(data []byte) {
	if len(data) == 0 {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Text == "" {
		return
	}
	c.queues.TextOut.Put(body.Text)
}

// handleBinary decodes a framed result payload, pushes the tensor to the
// matching output queue, and opens the execution gate immediately.
func (c *Remote) handleBinary(data []byte) {
	frame, err := decodeBinaryFrame(data)
	if err != nil {
		c.logger.Warn("malformed binary frame", zap.Error(err))
		c.recoverInflight("malformed binary frame")
		return
	}

	switch frame.Event {
	case EventOutputFrame:
		tensor, err := decodeImagePayload(frame)
		if err != nil {
			c.logger.Warn("image decode failed, substituting zero tensor", zap.Error(err))
			tensor = c.zeroVideo()
		}
		c.queues.VideoOut.Put(tensor)
	case EventAudioOutput:
		tensor, err := decodeAudioPayload(frame)
		if err != nil {
			c.logger.Warn("audio decode failed, substituting silence", zap.Error(err))
			tensor = types.SilenceTensor(c.inflightSamples())
		}
		c.queues.AudioOut.Put(tensor)
	default:
		c.logger.Warn("unexpected binary event", zap.Uint32("event", frame.Event))
		c.recoverInflight("unexpected binary event")
		return
	}

	c.clearInflight()
	c.gate.forceComplete()
}

func (c *Remote) setInflight(sub *remoteSubmission) {
	c.inflightMu.Lock()
	c.inflight = sub
	c.inflightMu.Unlock()
}

func (c *Remote) clearInflight() {
	c.inflightMu.Lock()
	c.inflight = nil
	c.inflightMu.Unlock()
}

func (c *Remote) inflightSamples() int {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	if c.inflight != nil && c.inflight.tensor != nil {
		return c.inflight.tensor.Len()
	}
	return 0
}

func (c *Remote) zeroVideo() *types.Tensor {
	c.inflightMu.Lock()
	w, h := c.lastW, c.lastH
	c.inflightMu.Unlock()
	return types.ZeroVideoTensor(w, h)
}

// recoverInflight substitutes a zero-valued result for the in-flight
// cycle and force-sets execution-complete. Protocol and connection
// failures are absorbed here so callers see a usable (if blank) tensor
// in the output queue rather than an error or a hang.
func (c *Remote) recoverInflight(reason string) {
	c.inflightMu.Lock()
	sub := c.inflight
	c.inflight = nil
	c.inflightMu.Unlock()

	if sub != nil {
		c.logger.Warn("recovering in-flight cycle",
			zap.String("reason", reason),
			zap.String("modality", string(sub.modality)))
		if sub.modality == workflow.ModalityAudio {
			c.queues.AudioOut.Put(types.SilenceTensor(sub.tensor.Len()))
		} else {
			c.queues.VideoOut.Put(c.zeroVideo())
		}
	}
	c.gate.forceComplete()
}

func (c *Remote) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Remote) currentConn() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

// sleep waits for d or until the client shuts down.
func (c *Remote) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// Cleanup stops both loops, closes the connection, and drains the
// queues to release blocked getters. Idempotent.
func (c *Remote) Cleanup(ctx context.Context) error {
	c.cleanup.Do(func() {
		c.cancel()
		if conn := c.currentConn(); conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "closing")
		}
		c.submissions.Close()
		c.queues.Close()

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		}
		c.logger.Info("remote client cleaned up")
	})
	return nil
}
