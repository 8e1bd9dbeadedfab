// Package bloom implements the fixed-size Bloom filter used as the
// building block of the greylisting ring. A filter never clears
// individual bits; it is only ever reset wholesale by its owning ring.
package bloom

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/ocx/greyd/internal/fingerprint"
)

// word is a single 64-bit slot of the filter's bit array, accessed
// exclusively through atomic bitwise operations.
type word = atomic.Uint64

const (
	// DefaultSlices is the default number of bit positions (k) derived
	// from a digest.
	DefaultSlices = 8
	// DefaultSliceBits is the width, in bits, of each slice of the
	// 256-bit digest (256/8 = 32).
	DefaultSliceBits = 32
)

// Filter is a bit array of size M, addressed a word (64 bits) at a time.
// All exported methods are safe under concurrent query; Insert and Clear
// must not race with each other (see internal/ring for the discipline
// that guarantees this).
type Filter struct {
	bits   []word // M/64 words
	m      uint32 // number of bits, must be a power of two
	k      int    // number of hash positions derived per digest
	sliceW int    // bits per slice of the digest, defaults to 32
}

// New builds an empty filter of 2^bits bits using k slices of the digest,
// each sliceBits wide. Passing k=0 or sliceBits=0 selects the package
// defaults.
func New(bits uint, k int, sliceBits int) *Filter {
	if k <= 0 {
		k = DefaultSlices
	}
	if sliceBits <= 0 {
		sliceBits = DefaultSliceBits
	}
	m := uint32(1) << bits
	return &Filter{
		bits:   make([]word, m/64),
		m:      m,
		k:      k,
		sliceW: sliceBits,
	}
}

// Bits reports the filter's size in bits (M).
func (f *Filter) Bits() uint32 { return f.m }

// positions derives the k bit indices for d: slice i is the 32-bit digest
// word at index (i * max(f.sliceW/32, 1)) mod 8, taken modulo M. With
// the defaults (k=8, 32-bit slices) this partitions the digest into its
// eight words. A slice wider than 32 bits contributes only its first
// word, a narrower one still uses a whole word, and when k*sliceW exceeds
// 256 the words repeat, so k=16 with 32-bit slices yields 8 distinct
// positions, each used twice.
func (f *Filter) positions(d fingerprint.Digest) []uint32 {
	idx := make([]uint32, f.k)
	wordsPerSlice := f.sliceW / 32
	if wordsPerSlice < 1 {
		wordsPerSlice = 1
	}
	for i := 0; i < f.k; i++ {
		word := d[(i*wordsPerSlice)%len(d)]
		idx[i] = word % f.m
	}
	return idx
}

func (f *Filter) setBit(i uint32) {
	idx := i / 64
	bit := uint64(1) << (i % 64)
	f.bits[idx].Or(bit)
}

func (f *Filter) testBit(i uint32) bool {
	idx := i / 64
	bit := uint64(1) << (i % 64)
	return f.bits[idx].Load()&bit != 0
}

// Insert sets the k bits indexed by d. Idempotent; each bit is set with
// an atomic OR so a concurrent Query can never observe a torn word —
// at worst it misses a just-set bit, producing a transient false
// negative the next identical request resolves (see internal/ring).
func (f *Filter) Insert(d fingerprint.Digest) {
	for _, i := range f.positions(d) {
		f.setBit(i)
	}
}

// Query reports whether all k bits indexed by d are set.
func (f *Filter) Query(d fingerprint.Digest) bool {
	for _, i := range f.positions(d) {
		if !f.testBit(i) {
			return false
		}
	}
	return true
}

// Clear zeroes every bit. Callers (the ring) must ensure no concurrent
// Insert targets this filter while Clear runs.
func (f *Filter) Clear() {
	for i := range f.bits {
		f.bits[i].Store(0)
	}
}

// Serialize renders the filter as a fixed M/8-byte image, one bit per
// storage bit, little-endian within each 64-bit word.
func (f *Filter) Serialize() []byte {
	out := make([]byte, len(f.bits)*8)
	for i := range f.bits {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], f.bits[i].Load())
	}
	return out
}

// Load overwrites the filter's contents with a previously Serialize'd
// image of the same size.
func (f *Filter) Load(data []byte) error {
	want := len(f.bits) * 8
	if len(data) != want {
		return fmt.Errorf("bloom: load expects %d bytes, got %d", want, len(data))
	}
	for i := range f.bits {
		f.bits[i].Store(binary.LittleEndian.Uint64(data[i*8 : i*8+8]))
	}
	return nil
}

// PopCount estimates the filter's fill level, used for /debug/ring and
// the RingStats admin RPC. It is not part of the membership contract.
func (f *Filter) PopCount() int {
	count := 0
	for i := range f.bits {
		v := f.bits[i].Load()
		for v != 0 {
			count++
			v &= v - 1
		}
	}
	return count
}
