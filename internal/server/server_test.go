package server

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/greyd/internal/engine"
	"github.com/ocx/greyd/internal/fingerprint"
)

type stubClassifier struct {
	v   engine.Verdict
	err error
}

func (s stubClassifier) Classify(ctx context.Context, t fingerprint.Triple) (engine.Verdict, error) {
	return s.v, s.err
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestStreamServerRoundTrip(t *testing.T) {
	port := freePort(t)
	s := New(Config{Transport: "stream", ListenHost: "127.0.0.1", ListenPort: port, MaxWorkers: 4},
		stubClassifier{v: engine.Gray}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	var conn net.Conn
	var err error
	require.Eventually(t, func() bool {
		conn, err = net.DialTimeout("tcp", addr, 50*time.Millisecond)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()

	_, err = conn.Write([]byte("10.0.0.1 a@x b@y\n"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "GRAY\n", string(buf[:n]))

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestDatagramServerRoundTrip(t *testing.T) {
	port := freePort(t)
	s := New(Config{Transport: "datagram", ListenHost: "127.0.0.1", ListenPort: port, MaxWorkers: 4},
		stubClassifier{v: engine.Trust}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("10.0.0.1 a@x b@y"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "TRUST", string(buf[:n]))

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestIPString(t *testing.T) {
	addr := &net.TCPAddr{IP: net.ParseIP("192.0.2.5"), Port: 4321}
	assert.Equal(t, "192.0.2.5", ipString(addr))
}
