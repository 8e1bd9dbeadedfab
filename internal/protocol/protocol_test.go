package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/greyd/internal/engine"
	"github.com/ocx/greyd/internal/fingerprint"
)

func TestParseRequestValid(t *testing.T) {
	tr, err := ParseRequest("10.0.0.1 a@x b@y")
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Triple{ClientAddress: "10.0.0.1", Sender: "a@x", Recipient: "b@y"}, tr)
}

func TestParseRequestRejectsWrongFieldCount(t *testing.T) {
	_, err := ParseRequest("10.0.0.1 a@x")
	assert.Error(t, err)

	_, err = ParseRequest("10.0.0.1 a@x b@y c@z")
	assert.Error(t, err)
}

func TestParseRequestToleratesExtraWhitespace(t *testing.T) {
	tr, err := ParseRequest("  10.0.0.1   a@x  b@y  ")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", tr.ClientAddress)
}

func TestFormatVerdict(t *testing.T) {
	assert.Equal(t, "MATCH", FormatVerdict(engine.Match))
	assert.Equal(t, "GRAY", FormatVerdict(engine.Gray))
	assert.Equal(t, "TRUST", FormatVerdict(engine.Trust))
}

func TestReadStreamRequest(t *testing.T) {
	r := strings.NewReader("10.0.0.1 a@x b@y\n")
	tr, err := ReadStreamRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", tr.ClientAddress)
}

func TestWriteStreamVerdict(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStreamVerdict(&buf, engine.Gray))
	assert.Equal(t, "GRAY\n", buf.String())
}

func TestParseDatagramRequestRejectsOversize(t *testing.T) {
	payload := make([]byte, MaxDatagramSize+1)
	_, err := ParseDatagramRequest(payload)
	assert.Error(t, err)
}

func TestParseDatagramRequestValid(t *testing.T) {
	tr, err := ParseDatagramRequest([]byte("10.0.0.1 a@x b@y"))
	require.NoError(t, err)
	assert.Equal(t, "b@y", tr.Recipient)
}

func TestEncodeDatagramVerdict(t *testing.T) {
	assert.Equal(t, []byte("TRUST"), EncodeDatagramVerdict(engine.Trust))
}
