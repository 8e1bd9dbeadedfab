// Package server implements the server front-end named in spec.md §4.7:
// a transport-specific accept loop that hands each accepted unit of work
// to a worker goroutine bound by a fixed-size permit pool, the Go
// equivalent of the original's MAXFD-bounded thread pool (see
// _examples/original_source/src/worker.c).
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ocx/greyd/internal/engine"
	"github.com/ocx/greyd/internal/fingerprint"
	"github.com/ocx/greyd/internal/metrics"
	"github.com/ocx/greyd/internal/protocol"
)

// Classifier is the decision-engine surface the server depends on.
type Classifier interface {
	Classify(ctx context.Context, t fingerprint.Triple) (engine.Verdict, error)
}

// Config holds the server's transport and capacity settings, per
// spec.md §6's configuration surface (transport, listen_host,
// listen_port, max_workers).
type Config struct {
	Transport     string // "stream" or "datagram"
	ListenHost    string
	ListenPort    int
	MaxWorkers    int
	ListenBacklog int // not applied: the listeners use the OS default backlog, which Go's net package doesn't expose
}

// Server is the transport-agnostic front-end: it owns the worker permit
// pool and dispatches accepted connections/datagrams to it.
type Server struct {
	cfg     Config
	engine  Classifier
	metrics *metrics.Metrics
	permits chan struct{}

	mu       sync.Mutex
	wg       sync.WaitGroup
	listener net.Listener
	pconn    net.PacketConn
}

// New builds a Server bound to the given classifier.
func New(cfg Config, e Classifier, m *metrics.Metrics) *Server {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 64
	}
	return &Server{
		cfg:     cfg,
		engine:  e,
		metrics: m,
		permits: make(chan struct{}, cfg.MaxWorkers),
	}
}

// Run starts the configured transport's accept loop and blocks until ctx
// is canceled, then drains in-flight workers before returning (spec.md
// §5's shutdown sequence: drain accept loops, wait for worker permits to
// return to max, flush the update queue — the queue flush happens in
// cmd/greyd after Run returns).
func (s *Server) Run(ctx context.Context) error {
	switch s.cfg.Transport {
	case "datagram":
		return s.runDatagram(ctx)
	default:
		return s.runStream(ctx)
	}
}

func (s *Server) addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.ListenHost, s.cfg.ListenPort)
}

func (s *Server) runStream(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.addr())
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
			}
			// Transient accept errors (ephemeral fd exhaustion, the
			// EINTR-equivalent on this platform) are logged and retried
			// rather than fatal, mirroring worker.c's accept-loop retry.
			slog.Warn("server: accept failed, retrying", "error", err)
			continue
		}

		select {
		case s.permits <- struct{}{}:
			s.wg.Add(1)
			go s.serveStream(conn)
		default:
			slog.Warn("thread count limit reached", "transport", "stream", "max_workers", s.cfg.MaxWorkers, "client", ipString(conn.RemoteAddr()))
			if s.metrics != nil {
				s.metrics.WorkersDropped.Inc()
			}
			conn.Close()
		}
	}
}

func (s *Server) serveStream(conn net.Conn) {
	defer s.wg.Done()
	defer s.releasePermit()
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.WorkersBusy.Set(float64(len(s.permits)))
	}

	traceID := uuid.New().String()
	clientAddr := ipString(conn.RemoteAddr())

	conn.SetDeadline(time.Now().Add(30 * time.Second))

	triple, err := protocol.ReadStreamRequest(conn)
	if err != nil {
		slog.Debug("server: malformed request", "trace_id", traceID, "client", clientAddr, "error", err)
		return
	}
	// The client address named in the request line is the greylisting
	// subject; clientAddr (the TCP peer) is only for logging, in case
	// the two differ behind a relay.
	_ = clientAddr

	verdict, err := s.engine.Classify(context.Background(), triple)
	if err != nil {
		slog.Debug("server: classify error, verdict still authoritative", "trace_id", traceID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.Verdicts.WithLabelValues(verdict.String()).Inc()
	}

	if err := protocol.WriteStreamVerdict(conn, verdict); err != nil {
		slog.Debug("server: write response failed", "trace_id", traceID, "error", err)
	}
}

func (s *Server) runDatagram(ctx context.Context) error {
	lc := net.ListenConfig{}
	pconn, err := lc.ListenPacket(ctx, "udp", s.addr())
	if err != nil {
		return fmt.Errorf("server: listen packet: %w", err)
	}
	s.mu.Lock()
	s.pconn = pconn
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		pconn.Close()
	}()

	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		n, addr, err := pconn.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
			}
			slog.Warn("server: read datagram failed, retrying", "error", err)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case s.permits <- struct{}{}:
			s.wg.Add(1)
			go s.serveDatagram(pconn, addr, payload)
		default:
			slog.Warn("thread count limit reached", "transport", "datagram", "max_workers", s.cfg.MaxWorkers, "client", ipString(addr))
			if s.metrics != nil {
				s.metrics.WorkersDropped.Inc()
			}
		}
	}
}

func (s *Server) serveDatagram(pconn net.PacketConn, addr net.Addr, payload []byte) {
	defer s.wg.Done()
	defer s.releasePermit()

	if s.metrics != nil {
		s.metrics.WorkersBusy.Set(float64(len(s.permits)))
	}

	traceID := uuid.New().String()

	triple, err := protocol.ParseDatagramRequest(payload)
	if err != nil {
		slog.Debug("server: malformed datagram", "trace_id", traceID, "peer", addr.String(), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	verdict, err := s.engine.Classify(ctx, triple)
	if err != nil {
		slog.Debug("server: classify error, verdict still authoritative", "trace_id", traceID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.Verdicts.WithLabelValues(verdict.String()).Inc()
	}

	if _, err := pconn.WriteTo(protocol.EncodeDatagramVerdict(verdict), addr); err != nil {
		slog.Debug("server: write datagram failed", "trace_id", traceID, "error", err)
	}
}

func (s *Server) releasePermit() {
	<-s.permits
	if s.metrics != nil {
		s.metrics.WorkersBusy.Set(float64(len(s.permits)))
	}
}

// ipString normalizes a net.Addr into a displayable client IP, the Go
// equivalent of worker.c's ipstr() (inet_ntop over sockaddr_in).
func ipString(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "UNKNOWN"
	}
	return host
}
