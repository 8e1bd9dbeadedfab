package syncmgr

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameMACDeterministic(t *testing.T) {
	key := bytes32(1)
	m1, err := frameMAC(key, []byte("hello"))
	require.NoError(t, err)
	m2, err := frameMAC(key, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, m1, m2)
}

func TestFrameMACDiffersOnTamperedPayload(t *testing.T) {
	key := bytes32(1)
	m1, err := frameMAC(key, []byte("hello"))
	require.NoError(t, err)
	m2, err := frameMAC(key, []byte("hellp"))
	require.NoError(t, err)
	assert.NotEqual(t, m1, m2)
}

func TestMACConnRoundTrip(t *testing.T) {
	key := bytes32(7)
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	macA := newMACConn(a, key)
	macB := newMACConn(b, key)

	done := make(chan error, 1)
	go func() {
		_, err := macA.Write([]byte("operational-update-payload"))
		done <- err
	}()

	buf := make([]byte, 64)
	n, err := macB.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "operational-update-payload", string(buf[:n]))
	require.NoError(t, <-done)
}

func TestMACConnRejectsTamperedRecord(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	macA := newMACConn(a, bytes32(1))
	macB := newMACConn(b, bytes32(2)) // different key: MAC verification must fail

	go macA.Write([]byte("payload"))

	buf := make([]byte, 64)
	done := make(chan error, 1)
	go func() {
		_, err := macB.Read(buf)
		done <- err
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected mac verification to fail")
	}
}

func bytes32(seed byte) []byte {
	b := make([]byte, 32)
	for i := range b {
		b[i] = seed
	}
	return b
}
