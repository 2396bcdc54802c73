package client

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamhive/streambridge/types"
	"github.com/streamhive/streambridge/workflow"
)

// fakeBackend imitates the remote inference endpoint: it accepts graph
// submissions over HTTP and answers each binary input frame on the
// websocket according to respond.
type fakeBackend struct {
	t       *testing.T
	server  *httptest.Server
	prompts chan submitRequest
	// respond builds the reply messages for one received input frame.
	respond func(in *binaryFrame) [][]byte
}

func newFakeBackend(t *testing.T, respond func(in *binaryFrame) [][]byte) *fakeBackend {
	b := &fakeBackend{
		t:       t,
		prompts: make(chan submitRequest, 16),
		respond: respond,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/prompt", b.handlePrompt)
	mux.HandleFunc("/ws", b.handleWS)
	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) handlePrompt(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.prompts <- req
	w.WriteHeader(http.StatusOK)
}

func (b *fakeBackend) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		frame, err := decodeBinaryFrame(data)
		if err != nil {
			continue
		}
		for _, reply := range b.respond(frame) {
			if reply[0] == '{' {
				err = conn.Write(ctx, websocket.MessageText, reply)
			} else {
				err = conn.Write(ctx, websocket.MessageBinary, reply)
			}
			if err != nil {
				return
			}
		}
	}
}

func (b *fakeBackend) config() RemoteConfig {
	host, portStr, err := net.SplitHostPort(b.server.Listener.Addr().String())
	require.NoError(b.t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(b.t, err)
	return RemoteConfig{
		Host:           host,
		Port:           port,
		ReconnectDelay: 100 * time.Millisecond,
		SubmitTimeout:  2 * time.Second,
	}
}

// waitConnected blocks until the client's websocket is established, so
// submissions exercise the live path rather than the recovery path.
func waitConnected(t *testing.T, c *Remote) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.currentConn() != nil
	}, 2*time.Second, 10*time.Millisecond)
}

// echoReply re-encodes the received frame as an output frame.
func echoReply(in *binaryFrame) [][]byte {
	return [][]byte{
		[]byte(`{"type":"executing"}`),
		encodeBinaryFrame(EventOutputFrame, in.Format, in.Payload),
	}
}

func TestRemote_SubmitRoundTrip(t *testing.T) {
	backend := newFakeBackend(t, echoReply)
	c := NewRemote(backend.config(), nil)
	defer c.Cleanup(context.Background())
	waitConnected(t, c)

	require.NoError(t, c.SetGraph(context.Background(), videoGraph()))
	require.NoError(t, c.SubmitVideo(context.Background(), types.ZeroVideoTensor(16, 16)))

	out, err := c.AwaitVideoOutput(context.Background(), 5*time.Second)
	require.NoError(t, err)
	w, h := out.Dims()
	assert.Equal(t, 16, w)
	assert.Equal(t, 16, h)

	// The graph travelled with the submission, already converted.
	select {
	case req := <-backend.prompts:
		assert.NotEmpty(t, req.PromptID)
		assert.NotEmpty(t, req.ClientID)
		assert.Equal(t, workflow.NodeTensorInput, req.Prompt["12"].ClassType)
	case <-time.After(2 * time.Second):
		t.Fatal("backend never received a prompt")
	}
}

func TestRemote_GateSerializesSubmissions(t *testing.T) {
	backend := newFakeBackend(t, echoReply)
	c := NewRemote(backend.config(), nil)
	defer c.Cleanup(context.Background())
	waitConnected(t, c)

	require.NoError(t, c.SetGraph(context.Background(), videoGraph()))
	for i := 0; i < 3; i++ {
		require.NoError(t, c.SubmitVideo(context.Background(), types.ZeroVideoTensor(8, 8)))
	}
	for i := 0; i < 3; i++ {
		_, err := c.AwaitVideoOutput(context.Background(), 5*time.Second)
		require.NoError(t, err, "result %d", i)
	}
	assert.Equal(t, ExecIdle, c.gate.current())
}

func TestRemote_UndecodableResultSubstitutesZeroTensor(t *testing.T) {
	backend := newFakeBackend(t, func(in *binaryFrame) [][]byte {
		return [][]byte{encodeBinaryFrame(EventOutputFrame, FormatJPEG, []byte("garbage"))}
	})
	c := NewRemote(backend.config(), nil)
	defer c.Cleanup(context.Background())
	waitConnected(t, c)

	require.NoError(t, c.SetGraph(context.Background(), videoGraph()))
	require.NoError(t, c.SubmitVideo(context.Background(), types.ZeroVideoTensor(8, 8)))

	// The caller still gets a frame-shaped tensor, never an error.
	out, err := c.AwaitVideoOutput(context.Background(), 5*time.Second)
	require.NoError(t, err)
	w, h := out.Dims()
	assert.Equal(t, 8, w)
	assert.Equal(t, 8, h)
	for _, v := range out.Data {
		assert.Zero(t, v)
	}
}

func TestRemote_TextPayloadForwarded(t *testing.T) {
	backend := newFakeBackend(t, func(in *binaryFrame) [][]byte {
		return [][]byte{
			[]byte(`{"type":"executed","data":{"text":"caption: a cat"}}`),
			encodeBinaryFrame(EventOutputFrame, in.Format, in.Payload),
		}
	})
	c := NewRemote(backend.config(), nil)
	defer c.Cleanup(context.Background())
	waitConnected(t, c)

	require.NoError(t, c.SetGraph(context.Background(), videoGraph()))
	require.NoError(t, c.SubmitVideo(context.Background(), types.ZeroVideoTensor(8, 8)))

	text, err := c.AwaitTextOutput(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "caption: a cat", text)
}

func TestRemote_BackendUnreachableDoesNotHang(t *testing.T) {
	cfg := RemoteConfig{
		Host:           "127.0.0.1",
		Port:           1, // nothing listens here
		ReconnectDelay: 50 * time.Millisecond,
		SubmitTimeout:  200 * time.Millisecond,
	}
	c := NewRemote(cfg, nil)
	defer c.Cleanup(context.Background())

	require.NoError(t, c.SetGraph(context.Background(), videoGraph()))
	require.NoError(t, c.SubmitVideo(context.Background(), types.ZeroVideoTensor(8, 8)))

	// The failed cycle is recovered locally with a substitute tensor.
	out, err := c.AwaitVideoOutput(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestRemote_CleanupIdempotent(t *testing.T) {
	backend := newFakeBackend(t, echoReply)
	c := NewRemote(backend.config(), nil)
	require.NoError(t, c.Cleanup(context.Background()))
	require.NoError(t, c.Cleanup(context.Background()))
}

func TestRemote_ResultBeforeAwaitingLeavesGateOpen(t *testing.T) {
	c := &Remote{gate: newExecGate(zap.NewNop())}
	sub := remoteSubmission{modality: workflow.ModalityVideo, tensor: types.ZeroVideoTensor(2, 2)}

	c.gate.transition(ExecSubmitted)
	c.setInflight(&sub)

	// A fast backend delivers the binary result before the submission
	// loop reaches its awaiting transition.
	c.clearInflight()
	c.gate.forceComplete()

	// The completed cycle must not be re-marked awaiting; the gate stays
	// open for the next submission.
	c.markAwaiting()

	require.True(t, c.gate.waitComplete(context.Background(), 100*time.Millisecond))
	assert.Equal(t, ExecIdle, c.gate.current())
}
