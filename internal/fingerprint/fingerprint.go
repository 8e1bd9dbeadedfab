// Package fingerprint computes the content-addressed key a triple is
// classified and stored under.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Triple is the (client_address, sender, recipient) tuple identifying a
// single delivery attempt.
type Triple struct {
	ClientAddress string
	Sender        string
	Recipient     string
}

// Canonical returns the three fields joined by a single space, in field
// order, with no trailing newline. Two Triples with the same fields
// always produce the same Canonical string, regardless of process or host.
func (t Triple) Canonical() string {
	return t.ClientAddress + " " + t.Sender + " " + t.Recipient
}

// Digest is a 256-bit fingerprint, held as eight 32-bit words in
// big-endian word order; Bytes and FromBytes convert to and from the
// 32-byte wire form. It is immutable once computed.
type Digest [8]uint32

// Compute returns the SHA-256 digest of the triple's canonical
// serialization. The output must be byte-identical to the FIPS 180-4
// reference implementation on every host that classifies the same
// triple — this is the one place in the daemon where a hand-rolled or
// third-party hash implementation is deliberately avoided in favor of
// the standard library, see DESIGN.md.
func Compute(t Triple) Digest {
	sum := sha256.Sum256([]byte(t.Canonical()))
	var d Digest
	for i := range d {
		d[i] = binary.BigEndian.Uint32(sum[i*4 : i*4+4])
	}
	return d
}

// Bytes renders the digest as the 32-byte big-endian sequence used both
// as a Bloom key and as the payload of an operational peer sync.
func (d Digest) Bytes() []byte {
	out := make([]byte, 32)
	for i, w := range d {
		binary.BigEndian.PutUint32(out[i*4:i*4+4], w)
	}
	return out
}

// FromBytes parses a 32-byte big-endian sequence produced by Bytes.
func FromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != 32 {
		return d, fmt.Errorf("fingerprint: digest must be 32 bytes, got %d", len(b))
	}
	for i := range d {
		d[i] = binary.BigEndian.Uint32(b[i*4 : i*4+4])
	}
	return d, nil
}

// String renders the digest as hex, for logging.
func (d Digest) String() string {
	return fmt.Sprintf("%08x%08x%08x%08x%08x%08x%08x%08x",
		d[0], d[1], d[2], d[3], d[4], d[5], d[6], d[7])
}
