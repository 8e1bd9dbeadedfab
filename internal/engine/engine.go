// Package engine implements the decision engine named in spec.md §4.6:
// the fingerprint-and-classify pipeline that maps a triple to a verdict
// and schedules the side effects (ring update, peer sync, accounting)
// that follow from it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ocx/greyd/internal/acct"
	"github.com/ocx/greyd/internal/circuitbreaker"
	"github.com/ocx/greyd/internal/fingerprint"
	"github.com/ocx/greyd/internal/oracle"
	"github.com/ocx/greyd/internal/queue"
	"github.com/ocx/greyd/internal/ring"
)

// Verdict is the engine's classification of a triple, per spec.md §1.
type Verdict int

const (
	Match Verdict = iota
	Gray
	Trust
)

func (v Verdict) String() string {
	switch v {
	case Match:
		return "MATCH"
	case Gray:
		return "GRAY"
	case Trust:
		return "TRUST"
	default:
		return "UNKNOWN"
	}
}

// PeerNotifier is the operational-sync side of peer replication (the
// syncmgr collaborator, §4.5). SendUpdate is a no-op that returns nil
// when the peer link isn't CONNECTED/IN_SYNC; the engine does not need
// to know the link's state to decide whether to call it.
type PeerNotifier interface {
	SendUpdate(ctx context.Context, d fingerprint.Digest) error
}

// noopPeer is used when no peer is configured.
type noopPeer struct{}

func (noopPeer) SendUpdate(ctx context.Context, d fingerprint.Digest) error { return nil }

// Config holds the engine's tunables, set once at construction.
type Config struct {
	// UpdateAlways enqueues an UPDATE and peer sync for every verdict,
	// including TRUST, rather than only MATCH/GRAY (spec.md §4.6 step 5).
	UpdateAlways bool

	// OracleTimeout bounds each reputation-oracle call.
	OracleTimeout time.Duration
}

// Engine is the classify(triple) -> verdict collaborator.
type Engine struct {
	ring    *ring.Ring
	queue   *queue.Queue
	oracle  oracle.Checker
	breaker *circuitbreaker.CircuitBreaker
	peer    PeerNotifier
	sink    acct.Sink
	cfg     Config
}

// New builds an Engine. oracle, breaker and peer may be nil: a nil oracle
// behaves as oracle.NullChecker{} (engine step 4, verdict falls through
// to GRAY); a nil breaker calls the oracle directly; a nil peer disables
// operational sync.
func New(r *ring.Ring, q *queue.Queue, oc oracle.Checker, breaker *circuitbreaker.CircuitBreaker, peer PeerNotifier, sink acct.Sink, cfg Config) *Engine {
	if oc == nil {
		oc = oracle.NullChecker{}
	}
	if peer == nil {
		peer = noopPeer{}
	}
	if sink == nil {
		sink = acct.Multi{}
	}
	return &Engine{ring: r, queue: q, oracle: oc, breaker: breaker, peer: peer, sink: sink, cfg: cfg}
}

// Classify implements spec.md §4.6 steps 1-5.
func (e *Engine) Classify(ctx context.Context, t fingerprint.Triple) (Verdict, error) {
	d := fingerprint.Compute(t)

	if e.ring.Query(d) {
		e.sink.Acct(acct.EventMatch, t.Canonical())
		e.schedule(ctx, d, Match)
		return Match, nil
	}

	verdict, oracleErr := e.consultOracle(ctx, t)
	e.schedule(ctx, d, verdict)
	return verdict, oracleErr
}

// consultOracle runs spec.md §4.6 steps 3-4: a reputation-oracle call
// bounded by OracleTimeout, resolved fail-closed to GRAY on any timeout,
// error, or open circuit breaker.
func (e *Engine) consultOracle(ctx context.Context, t fingerprint.Triple) (Verdict, error) {
	if _, disabled := e.oracle.(oracle.NullChecker); disabled {
		// Short-circuit before the breaker: a disabled oracle isn't a
		// failure and must never count toward tripping it, nor get
		// mislabeled DNS_TIMEOUT once it does.
		e.sink.Acct(acct.EventDNSSkip, t.ClientAddress)
		return Gray, nil
	}

	checker := e.oracle
	if e.cfg.OracleTimeout > 0 {
		checker = oracle.WithTimeout(checker, e.cfg.OracleTimeout)
	}

	call := func() (interface{}, error) {
		v, err := checker.Check(ctx, t.ClientAddress)
		if err != nil {
			return v, err
		}
		return v, nil
	}

	var result interface{}
	var err error
	if e.breaker != nil {
		result, err = e.breaker.Execute(call)
	} else {
		result, err = call()
	}

	oracleVerdict, _ := result.(oracle.Verdict)

	switch {
	case err == nil && oracleVerdict == oracle.Suspicious:
		e.sink.Acct(acct.EventDNSMatch, t.ClientAddress)
		return Gray, nil
	case err == nil && oracleVerdict == oracle.Clean:
		return Trust, nil
	case errors.Is(err, oracle.ErrNotConfigured):
		e.sink.Acct(acct.EventDNSSkip, t.ClientAddress)
		return Gray, nil
	case oracleVerdict == oracle.Timeout:
		e.sink.Acct(acct.EventDNSTimeout, t.ClientAddress)
		return Gray, fmt.Errorf("engine: oracle timeout: %w", err)
	default:
		// Any other oracle error, or an open circuit breaker, is folded
		// into the same fail-closed path (spec.md §7).
		e.sink.Acct(acct.EventDNSTimeout, t.ClientAddress)
		return Gray, err
	}
}

// schedule implements spec.md §4.6 step 5: on MATCH/GRAY, or
// unconditionally under UpdateAlways, enqueue the update and attempt a
// peer operational sync. Both are best-effort; failures are logged and
// swallowed, never surfaced as a classify() error.
func (e *Engine) schedule(ctx context.Context, d fingerprint.Digest, v Verdict) {
	if v == Trust {
		e.sink.Acct(acct.EventTrust, d.String())
	} else if v == Gray {
		e.sink.Acct(acct.EventGray, d.String())
	}

	if v == Trust && !e.cfg.UpdateAlways {
		return
	}

	if !e.queue.PutUpdate(d) {
		e.sink.Log(acct.Warning, "update queue full, dropping UPDATE for "+d.String())
	}

	if err := e.peer.SendUpdate(ctx, d); err != nil {
		e.sink.Log(acct.Debug, "peer sync failed: "+err.Error())
	}
}
