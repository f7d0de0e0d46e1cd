package lockstep

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecInputMessageRoundTrip(t *testing.T) {
	c := newCodec(300, 300)
	datagram, err := c.encodeInput(InputMessage{SenderID: 2, Frame: input(42)})
	require.NoError(t, err)

	decoded, err := c.decode(datagram)
	require.NoError(t, err)
	assert.Equal(t, kindInput, decoded.Kind)
	assert.EqualValues(t, 2, decoded.Input.SenderID)
	assert.True(t, decoded.Input.Frame.Equal(input(42)))
}

func TestCodecAckMessageRoundTrip(t *testing.T) {
	c := newCodec(300, 300)
	ack := newFrameACK(9, 5, []int64{7, 8})
	datagram, err := c.encodeAck(ack)
	require.NoError(t, err)

	decoded, err := c.decode(datagram)
	require.NoError(t, err)
	assert.Equal(t, kindAck, decoded.Kind)
	assert.EqualValues(t, 9, decoded.Ack.SenderID)
	assert.EqualValues(t, 5, decoded.Ack.CumulativeAck)
	assert.Equal(t, []int64{7, 8}, decoded.Ack.SelectiveAcks)
}

func TestCodecKeepAliveRoundTrip(t *testing.T) {
	c := newCodec(300, 300)
	datagram, err := c.encodeKeepAlive()
	require.NoError(t, err)

	decoded, err := c.decode(datagram)
	require.NoError(t, err)
	assert.Equal(t, kindKeepAlive, decoded.Kind)
}

func TestCodecUnknownKindIsMalformed(t *testing.T) {
	c := newCodec(300, 300)
	_, err := c.decode([]byte{0xFF, 0x00, 0x01})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCodecShortDatagramIsMalformed(t *testing.T) {
	c := newCodec(300, 300)
	_, err := c.decode([]byte{0x01})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCodecBatchSplitsAcrossDatagrams(t *testing.T) {
	c := newCodec(0, 64) // compression off, tiny datagram budget to force a split
	frames := make([]FrameInput, 20)
	for i := range frames {
		frames[i] = NewFrameInput(int64(i), []byte(strings.Repeat("x", 10)))
	}

	datagrams, err := c.encodeInputBatch(1, frames)
	require.NoError(t, err)
	assert.Greater(t, len(datagrams), 1)

	var all []FrameInput
	for _, d := range datagrams {
		decoded, err := c.decode(d)
		require.NoError(t, err)
		require.Equal(t, kindInputBatch, decoded.Kind)
		all = append(all, decoded.Batch.Frames...)
	}
	require.Len(t, all, len(frames))
	for i, f := range all {
		assert.EqualValues(t, i, f.FrameNumber)
	}
}

func TestCodecCompressesLargePayloads(t *testing.T) {
	c := newCodec(16, 4096)
	frame := NewFrameInput(1, make([]byte, 1000)) // all zero bytes: highly compressible
	datagram, err := c.encodeInput(InputMessage{SenderID: 1, Frame: frame})
	require.NoError(t, err)
	assert.True(t, datagram[1]&flagCompressed != 0)

	decoded, err := c.decode(datagram)
	require.NoError(t, err)
	assert.True(t, decoded.Input.Frame.Equal(frame))
}
