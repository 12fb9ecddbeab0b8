package ipc

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeM2WRoundTrips(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := NewEncoder(buf)
	require.NoError(t, enc.EncodeM2W(M2WMessage{PingSlash16: &PingSlash16Message{Addr: 0x01020000}}))

	dec := NewDecoder(buf)
	got, err := dec.DecodeM2W()
	require.NoError(t, err)
	require.NotNil(t, got.PingSlash16)
	assert.Equal(t, uint32(0x01020000), got.PingSlash16.Addr)
}

func TestDecodeM2WStreamsMultipleConcatenatedMessages(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := NewEncoder(buf)
	require.NoError(t, enc.EncodeM2W(M2WMessage{PingSlash16: &PingSlash16Message{Addr: 1}}))
	require.NoError(t, enc.EncodeM2W(M2WMessage{Shutdown: &ShutdownMessage{}}))

	dec := NewDecoder(buf)

	first, err := dec.DecodeM2W()
	require.NoError(t, err)
	assert.NotNil(t, first.PingSlash16)

	second, err := dec.DecodeM2W()
	require.NoError(t, err)
	assert.NotNil(t, second.Shutdown)
}

func TestDecodeM2WReturnsEOFOnEmptyStream(t *testing.T) {
	dec := NewDecoder(bytes.NewReader(nil))
	_, err := dec.DecodeM2W()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEncodeDecodeW2MRoundTrips(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := NewEncoder(buf)
	msg := W2MMessage{StateChanged: &StateChangedMessage{Addr: 42, State: Slash32Succeeded}}
	require.NoError(t, enc.EncodeW2M(msg))

	dec := NewDecoder(buf)
	got, err := dec.DecodeW2M()
	require.NoError(t, err)
	require.NotNil(t, got.StateChanged)
	assert.Equal(t, uint32(42), got.StateChanged.Addr)
	assert.Equal(t, Slash32Succeeded, got.StateChanged.State)
}
