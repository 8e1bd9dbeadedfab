// Package ring implements the rotating set of Bloom filters that gives
// the daemon its sliding time window of approximate membership. The ring
// is the sole piece of state shared between the decision engine's many
// readers and the update queue's single writer; see the package comment
// on Ring for the concurrency discipline.
package ring

import (
	"fmt"
	"sync/atomic"

	"github.com/ocx/greyd/internal/bloom"
	"github.com/ocx/greyd/internal/fingerprint"
)

// Ring is a fixed set of N Bloom filters with one active filter at a
// time. Inserts always target the active filter; queries are the union
// of all N filters.
//
// Readers (Query) never take a lock — current is published through an
// atomic index, and Clear-then-publish ordering in Rotate guarantees a
// reader never observes current pointing at a half-cleared filter. The
// single writer (the update queue's consumer, see internal/queue) is
// the only caller of Rotate and Install; Insert's effect is a monotonic
// bit-set that tolerates torn reads with a concurrent Insert, so it
// takes no lock either (see internal/bloom's atomic bit operations).
type Ring struct {
	filters []*bloom.Filter
	current atomic.Uint32
}

// New builds a ring of n filters, each 2^bits bits wide with k slices of
// sliceBits each. n must be at least 2.
func New(n int, bits uint, k int, sliceBits int) (*Ring, error) {
	if n < 2 {
		return nil, fmt.Errorf("ring: size must be >= 2, got %d", n)
	}
	r := &Ring{filters: make([]*bloom.Filter, n)}
	for i := range r.filters {
		r.filters[i] = bloom.New(bits, k, sliceBits)
	}
	return r, nil
}

// Size returns the number of filters in the ring (N).
func (r *Ring) Size() int { return len(r.filters) }

// Current returns the index of the active filter.
func (r *Ring) Current() int { return int(r.current.Load()) }

// Insert adds d to the active filter.
func (r *Ring) Insert(d fingerprint.Digest) {
	r.filters[r.current.Load()].Insert(d)
}

// Query reports whether d is present in any filter of the ring — the
// ring behaves as the union of its N filters. Any query overlapping a
// concurrent Rotate sees either the pre- or post-rotation union; it
// never sees a partially-cleared filter, because Rotate fully clears the
// next filter before publishing it as current.
func (r *Ring) Query(d fingerprint.Digest) bool {
	for _, f := range r.filters {
		if f.Query(d) {
			return true
		}
	}
	return false
}

// Rotate advances current by one modulo N. The next filter is zeroed in
// full before current is published, so no reader ever sees a half-reset
// active filter.
func (r *Ring) Rotate() {
	cur := int(r.current.Load())
	next := (cur + 1) % len(r.filters)
	r.filters[next].Clear()
	r.current.Store(uint32(next))
}

// Snapshot serializes filter i for an aggregate sync to a peer.
func (r *Ring) Snapshot(i int) ([]byte, error) {
	if i < 0 || i >= len(r.filters) {
		return nil, fmt.Errorf("ring: snapshot index %d out of range [0,%d)", i, len(r.filters))
	}
	return r.filters[i].Serialize(), nil
}

// SnapshotAll serializes every filter in index order, for the initial
// aggregate sync a syncmgr peer connection sends on CONNECTED.
func (r *Ring) SnapshotAll() [][]byte {
	out := make([][]byte, len(r.filters))
	for i, f := range r.filters {
		out[i] = f.Serialize()
	}
	return out
}

// Install replaces filter i wholesale with a previously Snapshot'd
// image, used when applying a peer's SYNC_AGGREGATE frame.
func (r *Ring) Install(i int, data []byte) error {
	if i < 0 || i >= len(r.filters) {
		return fmt.Errorf("ring: install index %d out of range [0,%d)", i, len(r.filters))
	}
	return r.filters[i].Load(data)
}

// FillRatio returns, per filter index, the fraction of bits set — used
// only for observability (admin HTTP/gRPC), never for a verdict.
func (r *Ring) FillRatio() []float64 {
	out := make([]float64, len(r.filters))
	for i, f := range r.filters {
		out[i] = float64(f.PopCount()) / float64(f.Bits())
	}
	return out
}
