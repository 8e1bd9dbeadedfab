package syncmgr

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/greyd/internal/fingerprint"
)

func TestWriteReadOperationalFrame(t *testing.T) {
	d := fingerprint.Compute(fingerprint.Triple{ClientAddress: "10.0.0.1", Sender: "a@x", Recipient: "b@y"})

	var buf bytes.Buffer
	require.NoError(t, WriteOperational(&buf, d))

	frame, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.True(t, frame.Operational)
	assert.Equal(t, d, frame.Digest)
}

func TestWriteReadAggregateFrame(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02}

	var buf bytes.Buffer
	require.NoError(t, WriteAggregate(&buf, 3, payload))

	frame, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.False(t, frame.Operational)
	assert.Equal(t, byte(3), frame.FilterIndex)
	assert.Equal(t, payload, frame.Payload)
}

func TestWriteAggregateRejectsOutOfRangeIndex(t *testing.T) {
	var buf bytes.Buffer
	err := WriteAggregate(&buf, 256, []byte{1})
	assert.Error(t, err)
}

func TestReadFrameSequence(t *testing.T) {
	d1 := fingerprint.Compute(fingerprint.Triple{ClientAddress: "10.0.0.1", Sender: "a@x", Recipient: "b@y"})
	d2 := fingerprint.Compute(fingerprint.Triple{ClientAddress: "10.0.0.2", Sender: "a@x", Recipient: "b@y"})

	var buf bytes.Buffer
	require.NoError(t, WriteOperational(&buf, d1))
	require.NoError(t, WriteAggregate(&buf, 0, []byte("snapshot")))
	require.NoError(t, WriteOperational(&buf, d2))

	f1, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, d1, f1.Digest)

	f2, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("snapshot"), f2.Payload)

	f3, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, d2, f3.Digest)

	_, err = ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameRejectsUnknownTag(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0xff}))
	assert.Error(t, err)
}
