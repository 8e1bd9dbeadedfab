// Package oracle implements the reputation-oracle collaborator named in
// spec.md §6: a single Check operation the decision engine consults when
// a triple is not already present in the Bloom ring.
package oracle

import (
	"context"
	"errors"
	"time"
)

// Verdict is the oracle's classification of a client address.
type Verdict int

const (
	Clean Verdict = iota
	Suspicious
	Timeout
	Error
)

func (v Verdict) String() string {
	switch v {
	case Clean:
		return "CLEAN"
	case Suspicious:
		return "SUSPICIOUS"
	case Timeout:
		return "TIMEOUT"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ErrNotConfigured is returned by Checker implementations that represent
// "no oracle configured" (engine step 4: verdict falls through to GRAY
// without consulting anything).
var ErrNotConfigured = errors.New("oracle: not configured")

// Checker is the reputation-oracle collaborator. Implementations must
// honor ctx's deadline and return Timeout (not block past it).
type Checker interface {
	Check(ctx context.Context, clientAddress string) (Verdict, error)
}

// NullChecker always reports ErrNotConfigured, selected when
// oracle_enabled=false.
type NullChecker struct{}

func (NullChecker) Check(ctx context.Context, clientAddress string) (Verdict, error) {
	return Error, ErrNotConfigured
}

// WithTimeout wraps a Checker so every call is bounded by d regardless of
// whether the underlying implementation honors ctx itself; on expiry it
// reports Timeout rather than blocking the caller past d.
func WithTimeout(c Checker, d time.Duration) Checker {
	return timeoutChecker{inner: c, timeout: d}
}

type timeoutChecker struct {
	inner   Checker
	timeout time.Duration
}

func (t timeoutChecker) Check(ctx context.Context, clientAddress string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		v   Verdict
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := t.inner.Check(ctx, clientAddress)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return Timeout, ctx.Err()
	}
}
