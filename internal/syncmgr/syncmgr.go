package syncmgr

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocx/greyd/internal/fingerprint"
	"github.com/ocx/greyd/internal/metrics"
	"github.com/ocx/greyd/internal/queue"
	"github.com/ocx/greyd/internal/ring"
)

// State is the peer link state machine named in spec.md §4.5.
type State int32

const (
	Disconnected State = iota
	Connected
	InSync
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connected:
		return "CONNECTED"
	case InSync:
		return "IN_SYNC"
	default:
		return "UNKNOWN"
	}
}

const (
	minBackoff    = 1 * time.Second
	maxBackoff    = 60 * time.Second
	dialTimeout   = 5 * time.Second
	macKeyLen     = 32
	updateQueueSz = 256
)

// Config holds a peer link's connection parameters, per spec.md §6's
// peer_host/peer_port configuration surface.
type Config struct {
	PeerHost          string
	PeerPort          int
	AggregateInterval time.Duration

	// SpiffeSocketPath and PeerSpiffeID, if both set, enable mTLS via
	// internal/syncmgr/tls.go. Otherwise the link runs over plain TCP,
	// optionally MAC'd with MACKey.
	SpiffeSocketPath string
	PeerSpiffeID     string
	MACKey           []byte
}

// Manager runs one peer link's connect/reconnect loop, operational send
// queue, and aggregate sync timer.
type Manager struct {
	cfg     Config
	ring    *ring.Ring
	queue   *queue.Queue
	metrics *metrics.Metrics
	logger  *log.Logger

	tlsConf *TLSConfig

	state   atomic.Int32
	mu      sync.Mutex
	conn    net.Conn
	updates chan fingerprint.Digest
}

// New builds a peer Manager. It does not connect until Run is called.
func New(cfg Config, r *ring.Ring, q *queue.Queue, m *metrics.Metrics) (*Manager, error) {
	mgr := &Manager{
		cfg:     cfg,
		ring:    r,
		queue:   q,
		metrics: m,
		logger:  log.New(os.Stderr, "[SYNCMGR] ", log.LstdFlags),
		updates: make(chan fingerprint.Digest, updateQueueSz),
	}

	if cfg.SpiffeSocketPath != "" && cfg.PeerSpiffeID != "" {
		tc, err := NewTLSConfig(cfg.SpiffeSocketPath, cfg.PeerSpiffeID)
		if err != nil {
			return nil, fmt.Errorf("syncmgr: %w", err)
		}
		mgr.tlsConf = tc
	}

	mgr.setState(Disconnected)
	return mgr, nil
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	if m.metrics != nil {
		m.metrics.PeerLinkState.WithLabelValues(m.peerLabel()).Set(float64(s))
	}
}

// State returns the current peer link state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) peerLabel() string {
	return fmt.Sprintf("%s:%d", m.cfg.PeerHost, m.cfg.PeerPort)
}

// SendUpdate implements engine.PeerNotifier: a non-blocking enqueue onto
// the operational send queue, a no-op when the link isn't
// CONNECTED/IN_SYNC (spec.md §4.6 step 5).
func (m *Manager) SendUpdate(ctx context.Context, d fingerprint.Digest) error {
	if m.State() == Disconnected {
		return nil
	}
	select {
	case m.updates <- d:
		return nil
	default:
		return errors.New("syncmgr: operational send queue full, dropping update")
	}
}

// Run drives the connect/reconnect loop until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			m.closeConn()
			return
		default:
		}

		conn, err := m.dial(ctx)
		if err != nil {
			m.logger.Printf("connect failed: %v (retry in %s)", err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = minBackoff
		m.setState(Connected)
		m.runConnected(ctx, conn)
		m.setState(Disconnected)
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (m *Manager) dial(ctx context.Context) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", m.cfg.PeerHost, m.cfg.PeerPort)
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if m.tlsConf != nil {
		dialer := tls.Dialer{Config: m.tlsConf.ClientConfig()}
		return dialer.DialContext(dialCtx, "tcp", addr)
	}

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if len(m.cfg.MACKey) == macKeyLen {
		return newMACConn(conn, m.cfg.MACKey), nil
	}
	return conn, nil
}

// runConnected transitions CONNECTED -> IN_SYNC (send the initial
// aggregate), then serves the operational send loop, the periodic
// aggregate timer, and the inbound frame reader concurrently until the
// link drops.
func (m *Manager) runConnected(ctx context.Context, conn net.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	defer m.closeConn()

	if err := m.sendAggregate(conn); err != nil {
		m.logger.Printf("initial aggregate send failed: %v", err)
		return
	}
	m.setState(InSync)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	go m.readLoop(conn, errCh)
	go m.writeLoop(connCtx, conn, errCh)
	go m.aggregateLoop(connCtx, conn, errCh)

	select {
	case err := <-errCh:
		if err != nil {
			m.logger.Printf("peer link dropped: %v", err)
		}
	case <-ctx.Done():
	}
}

func (m *Manager) readLoop(conn net.Conn, errCh chan<- error) {
	for {
		frame, err := ReadFrame(conn)
		if err != nil {
			errCh <- err
			return
		}

		if frame.Operational {
			// Received operational digests are applied to the queue, never
			// re-forwarded out writeLoop, so loop suppression is structural
			// here; no dedup bookkeeping is needed.
			if m.queue.PutUpdateOper(frame.Digest) && m.metrics != nil {
				m.metrics.PeerSyncsRecv.WithLabelValues("operational").Inc()
			}
			continue
		}

		if m.queue.PutSyncAggregate(int(frame.FilterIndex), frame.Payload) && m.metrics != nil {
			m.metrics.PeerSyncsRecv.WithLabelValues("aggregate").Inc()
		}
	}
}

func (m *Manager) writeLoop(ctx context.Context, conn net.Conn, errCh chan<- error) {
	for {
		select {
		case d := <-m.updates:
			if err := WriteOperational(conn, d); err != nil {
				errCh <- err
				return
			}
			if m.metrics != nil {
				m.metrics.PeerSyncsSent.WithLabelValues("operational").Inc()
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) aggregateLoop(ctx context.Context, conn net.Conn, errCh chan<- error) {
	interval := m.cfg.AggregateInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.sendAggregate(conn); err != nil {
				errCh <- err
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// sendAggregate snapshots every ring filter and sends one 0x02 frame per
// filter. Serialize can race a concurrent Rotate/Clear on the consumer
// goroutine and capture a half-cleared filter; this is tolerated rather
// than mutex-guarded because the structure is a union, so a stale or
// partially-cleared snapshot only widens the window, never corrupts it.
func (m *Manager) sendAggregate(conn net.Conn) error {
	snapshots := m.ring.SnapshotAll()
	var buf bytes.Buffer
	for i, snap := range snapshots {
		buf.Reset()
		if err := WriteAggregate(&buf, i, snap); err != nil {
			return err
		}
		if _, err := conn.Write(buf.Bytes()); err != nil {
			return err
		}
		if m.metrics != nil {
			m.metrics.PeerSyncsSent.WithLabelValues("aggregate").Inc()
		}
	}
	return nil
}

func (m *Manager) closeConn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}
