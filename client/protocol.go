package client

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/disintegration/imaging"

	"github.com/streamhive/streambridge/types"
)

// Binary frames are framed as an 8-byte little-endian header — 4 bytes
// event type, 4 bytes payload format — followed by the encoded payload.
const binaryHeaderSize = 8

// Event types carried in the binary header.
const (
	// EventOutputFrame is a processed frame delivered by the backend.
	EventOutputFrame uint32 = 1
	// EventInputFrame is a live frame submitted to the backend.
	EventInputFrame uint32 = 2
	// EventAudioOutput is a processed audio run delivered by the backend.
	EventAudioOutput uint32 = 3
	// EventAudioInput is live audio submitted to the backend.
	EventAudioInput uint32 = 4
)

// Payload formats carried in the binary header.
const (
	FormatJPEG uint32 = 1
	FormatPNG  uint32 = 2
	// FormatPCMF32 is raw little-endian float32 mono samples.
	FormatPCMF32 uint32 = 3
)

// wireMessage is a JSON status message from the remote backend,
// classified by its type tag.
type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JSON message tags the listener recognizes.
const (
	msgStatus    = "status"
	msgProgress  = "progress"
	msgExecuting = "executing"
	msgExecuted  = "executed"
	msgError     = "error"
)

// binaryFrame is a decoded binary message.
type binaryFrame struct {
	Event   uint32
	Format  uint32
	Payload []byte
}

// decodeBinaryFrame splits a raw binary message into header and payload.
func decodeBinaryFrame(data []byte) (*binaryFrame, error) {
	if len(data) < binaryHeaderSize {
		return nil, types.NewError(types.ErrBackendProtocol,
			fmt.Sprintf("binary frame too short: %d bytes", len(data)))
	}
	return &binaryFrame{
		Event:   binary.LittleEndian.Uint32(data[0:4]),
		Format:  binary.LittleEndian.Uint32(data[4:8]),
		Payload: data[binaryHeaderSize:],
	}, nil
}

// encodeBinaryFrame prepends the 8-byte header to a payload.
func encodeBinaryFrame(event, format uint32, payload []byte) []byte {
	out := make([]byte, binaryHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], event)
	binary.LittleEndian.PutUint32(out[4:8], format)
	copy(out[binaryHeaderSize:], payload)
	return out
}

// decodeImagePayload converts a recognized image payload into a
// normalized video tensor.
func decodeImagePayload(frame *binaryFrame) (*types.Tensor, error) {
	switch frame.Format {
	case FormatJPEG, FormatPNG:
	default:
		return nil, types.NewError(types.ErrBackendProtocol,
			fmt.Sprintf("unrecognized payload format %d", frame.Format))
	}
	img, err := imaging.Decode(bytes.NewReader(frame.Payload))
	if err != nil {
		return nil, types.NewError(types.ErrBackendProtocol, "decode image payload").WithCause(err)
	}
	return types.TensorFromImage(img), nil
}

// encodeInputFrame encodes a video tensor as a JPEG binary frame for
// submission over the persistent connection.
func encodeInputFrame(t *types.Tensor) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, t.ToImage(), imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, types.NewError(types.ErrInternalError, "encode input frame").WithCause(err)
	}
	return encodeBinaryFrame(EventInputFrame, FormatJPEG, buf.Bytes()), nil
}

// decodeAudioPayload converts raw PCM float32 payload into an audio tensor.
func decodeAudioPayload(frame *binaryFrame) (*types.Tensor, error) {
	if frame.Format != FormatPCMF32 {
		return nil, types.NewError(types.ErrBackendProtocol,
			fmt.Sprintf("unrecognized audio format %d", frame.Format))
	}
	if len(frame.Payload)%4 != 0 {
		return nil, types.NewError(types.ErrBackendProtocol, "audio payload not float32 aligned")
	}
	n := len(frame.Payload) / 4
	t := types.NewTensor(n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(frame.Payload[i*4:])
		t.Data[i] = math.Float32frombits(bits)
	}
	return t, nil
}

// encodeAudioInput encodes an audio tensor as a raw PCM binary frame.
func encodeAudioInput(t *types.Tensor) []byte {
	payload := make([]byte, len(t.Data)*4)
	for i, v := range t.Data {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(v))
	}
	return encodeBinaryFrame(EventAudioInput, FormatPCMF32, payload)
}
