package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ocx/greyd/internal/fingerprint"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func digest(s string) fingerprint.Digest {
	return fingerprint.Compute(fingerprint.Triple{ClientAddress: s, Sender: "a@x", Recipient: "b@y"})
}

func TestNewRejectsTooSmall(t *testing.T) {
	_, err := New(1, 8, 8, 32)
	assert.Error(t, err)
}

// Invariant 1/2: classify-then-insert makes the digest immediately and
// repeatedly visible until a rotation occurs.
func TestInsertThenQueryIsMatch(t *testing.T) {
	r, err := New(4, 12, 8, 32)
	require.NoError(t, err)

	d := digest("10.0.0.1")
	assert.False(t, r.Query(d))
	r.Insert(d)
	assert.True(t, r.Query(d))
	assert.True(t, r.Query(d), "a second query before any rotation must still be true")
}

// Invariant 3: after N rotations with no intervening insert, the digest
// is gone from the ring (assuming no collision).
func TestQueryFalseAfterFullRotation(t *testing.T) {
	r, err := New(4, 12, 8, 32)
	require.NoError(t, err)

	d := digest("10.0.0.1")
	r.Insert(d)
	require.True(t, r.Query(d))

	for i := 0; i < r.Size(); i++ {
		r.Rotate()
	}
	assert.False(t, r.Query(d))
}

func TestRotateAdvancesIndexModuloN(t *testing.T) {
	r, err := New(3, 10, 8, 32)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		want := (i + 1) % r.Size()
		r.Rotate()
		assert.Equal(t, want, r.Current())
	}
}

func TestRotateClearsOnlyTheNewActiveFilter(t *testing.T) {
	r, err := New(3, 10, 8, 32)
	require.NoError(t, err)

	d0 := digest("addr-0")
	r.Insert(d0) // lands in filter 0 (current)
	r.Rotate()   // current -> 1, filter 1 cleared

	// filter 0 still holds d0, so the union still matches.
	assert.True(t, r.Query(d0))
}

func TestSnapshotInstallRoundTrip(t *testing.T) {
	r, err := New(3, 12, 8, 32)
	require.NoError(t, err)

	d := digest("198.51.100.7")
	r.Insert(d)

	snap, err := r.Snapshot(r.Current())
	require.NoError(t, err)

	r2, err := New(3, 12, 8, 32)
	require.NoError(t, err)
	require.NoError(t, r2.Install(r.Current(), snap))

	assert.True(t, r2.Query(d))
}

func TestInstallRejectsBadIndex(t *testing.T) {
	r, err := New(2, 10, 8, 32)
	require.NoError(t, err)
	assert.Error(t, r.Install(5, make([]byte, 1024/8)))
}

// Invariant 6: concurrent inserts and queries never produce a false
// negative for a digest inserted and acknowledged before the query, as
// long as no rotation lands in between.
func TestConcurrentInsertQueryMonotonic(t *testing.T) {
	r, err := New(4, 16, 8, 32)
	require.NoError(t, err)

	const n = 500
	digests := make([]fingerprint.Digest, n)
	for i := 0; i < n; i++ {
		digests[i] = digest(string(rune('a' + (i % 26))))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(d fingerprint.Digest) {
			defer wg.Done()
			r.Insert(d)
			assert.True(t, r.Query(d), "query must observe an insert it happened-after")
		}(digests[i])
	}
	wg.Wait()
}

func TestFillRatioLength(t *testing.T) {
	r, err := New(5, 10, 8, 32)
	require.NoError(t, err)
	assert.Len(t, r.FillRatio(), 5)
}
