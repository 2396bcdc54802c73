package client

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamhive/streambridge/types"
)

func TestBinaryFrame_RoundTrip(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	raw := encodeBinaryFrame(EventOutputFrame, FormatJPEG, payload)

	require.Len(t, raw, binaryHeaderSize+len(payload))
	assert.Equal(t, EventOutputFrame, binary.LittleEndian.Uint32(raw[0:4]))
	assert.Equal(t, FormatJPEG, binary.LittleEndian.Uint32(raw[4:8]))

	frame, err := decodeBinaryFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, EventOutputFrame, frame.Event)
	assert.Equal(t, FormatJPEG, frame.Format)
	assert.Equal(t, payload, frame.Payload)
}

func TestDecodeBinaryFrame_TooShort(t *testing.T) {
	_, err := decodeBinaryFrame([]byte{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, types.ErrBackendProtocol, types.GetErrorCode(err))
}

func TestDecodeImagePayload_UnrecognizedFormat(t *testing.T) {
	raw := encodeBinaryFrame(EventOutputFrame, 99, []byte("junk"))
	frame, err := decodeBinaryFrame(raw)
	require.NoError(t, err)

	_, err = decodeImagePayload(frame)
	require.Error(t, err)
	assert.Equal(t, types.ErrBackendProtocol, types.GetErrorCode(err))
}

func TestDecodeImagePayload_GarbageJPEG(t *testing.T) {
	raw := encodeBinaryFrame(EventOutputFrame, FormatJPEG, []byte("not a jpeg"))
	frame, err := decodeBinaryFrame(raw)
	require.NoError(t, err)

	_, err = decodeImagePayload(frame)
	require.Error(t, err)
	assert.Equal(t, types.ErrBackendProtocol, types.GetErrorCode(err))
}

func TestInputFrame_EncodeDecodeKeepsDims(t *testing.T) {
	in := types.ZeroVideoTensor(32, 24)
	raw, err := encodeInputFrame(in)
	require.NoError(t, err)

	frame, err := decodeBinaryFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, EventInputFrame, frame.Event)
	assert.Equal(t, FormatJPEG, frame.Format)

	out, err := decodeImagePayload(frame)
	require.NoError(t, err)
	w, h := out.Dims()
	assert.Equal(t, 32, w)
	assert.Equal(t, 24, h)
}

func TestAudioPayload_RoundTrip(t *testing.T) {
	in := types.NewTensor(4)
	copy(in.Data, []float32{0.5, -0.5, 1.0, -1.0})

	raw := encodeAudioInput(in)
	frame, err := decodeBinaryFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, EventAudioInput, frame.Event)

	out, err := decodeAudioPayload(frame)
	require.NoError(t, err)
	assert.Equal(t, in.Data, out.Data)
}

func TestDecodeAudioPayload_Misaligned(t *testing.T) {
	raw := encodeBinaryFrame(EventAudioOutput, FormatPCMF32, []byte{1, 2, 3})
	frame, err := decodeBinaryFrame(raw)
	require.NoError(t, err)

	_, err = decodeAudioPayload(frame)
	require.Error(t, err)
	assert.Equal(t, types.ErrBackendProtocol, types.GetErrorCode(err))
}
