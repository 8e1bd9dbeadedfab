package syncmgr

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/greyd/internal/fingerprint"
	"github.com/ocx/greyd/internal/queue"
	"github.com/ocx/greyd/internal/ring"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", Disconnected.String())
	assert.Equal(t, "CONNECTED", Connected.String())
	assert.Equal(t, "IN_SYNC", InSync.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}

func TestNextBackoffCapsAt60s(t *testing.T) {
	b := minBackoff
	for i := 0; i < 10; i++ {
		b = nextBackoff(b)
	}
	assert.Equal(t, maxBackoff, b)
}

func TestSendUpdateNoopWhenDisconnected(t *testing.T) {
	r, err := ring.New(4, 12, 8, 32)
	require.NoError(t, err)
	q := queue.New(8, nil)
	m, err := New(Config{PeerHost: "127.0.0.1", PeerPort: 1}, r, q, nil)
	require.NoError(t, err)

	err = m.SendUpdate(context.Background(), fingerprint.Digest{})
	assert.NoError(t, err)
	assert.Equal(t, Disconnected, m.State())
}

// fakePeer accepts one connection and drains frames, recording aggregate
// frame count and any operational digest it sees.
type fakePeer struct {
	ln         net.Listener
	aggCount   chan int
	opReceived chan fingerprint.Digest
}

func newFakePeer(t *testing.T) *fakePeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fp := &fakePeer{ln: ln, aggCount: make(chan int, 1), opReceived: make(chan fingerprint.Digest, 1)}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		seenAgg := 0
		for {
			frame, err := ReadFrame(conn)
			if err != nil {
				return
			}
			if frame.Operational {
				select {
				case fp.opReceived <- frame.Digest:
				default:
				}
				continue
			}
			seenAgg++
			select {
			case fp.aggCount <- seenAgg:
			default:
				select {
				case <-fp.aggCount:
				default:
				}
				fp.aggCount <- seenAgg
			}
		}
	}()

	return fp
}

func (fp *fakePeer) port(t *testing.T) int {
	t.Helper()
	return fp.ln.Addr().(*net.TCPAddr).Port
}

func TestManagerReachesInSyncAndSendsAggregate(t *testing.T) {
	r, err := ring.New(2, 12, 8, 32)
	require.NoError(t, err)
	q := queue.New(8, nil)

	peer := newFakePeer(t)
	defer peer.ln.Close()

	m, err := New(Config{PeerHost: "127.0.0.1", PeerPort: peer.port(t), AggregateInterval: time.Hour}, r, q, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, func() bool { return m.State() == InSync }, 2*time.Second, 10*time.Millisecond)

	select {
	case n := <-peer.aggCount:
		assert.Equal(t, r.Size(), n)
	case <-time.After(2 * time.Second):
		t.Fatal("expected aggregate frames")
	}
}

func TestManagerSendUpdateReachesPeer(t *testing.T) {
	r, err := ring.New(2, 12, 8, 32)
	require.NoError(t, err)
	q := queue.New(8, nil)

	peer := newFakePeer(t)
	defer peer.ln.Close()

	m, err := New(Config{PeerHost: "127.0.0.1", PeerPort: peer.port(t), AggregateInterval: time.Hour}, r, q, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, func() bool { return m.State() == InSync }, 2*time.Second, 10*time.Millisecond)

	d := fingerprint.Compute(fingerprint.Triple{ClientAddress: "10.0.0.1", Sender: "a@x", Recipient: "b@y"})
	require.NoError(t, m.SendUpdate(ctx, d))

	select {
	case got := <-peer.opReceived:
		assert.Equal(t, d, got)
	case <-time.After(2 * time.Second):
		t.Fatal("expected operational frame at peer")
	}
}

func TestManagerReconnectsAfterPeerCloses(t *testing.T) {
	r, err := ring.New(2, 12, 8, 32)
	require.NoError(t, err)
	q := queue.New(8, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	connCh := make(chan net.Conn, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			connCh <- conn
		}
	}()

	m, err := New(Config{PeerHost: "127.0.0.1", PeerPort: ln.Addr().(*net.TCPAddr).Port, AggregateInterval: time.Hour}, r, q, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	var first net.Conn
	select {
	case first = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("expected first connection")
	}
	// Drain frames so the manager's write isn't blocked on a full pipe.
	go drainConn(first)
	first.Close()

	select {
	case <-connCh:
	case <-time.After(3 * time.Second):
		t.Fatal("expected reconnect attempt after peer closed")
	}
}

func drainConn(conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}
