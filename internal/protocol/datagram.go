package protocol

import (
	"fmt"

	"github.com/ocx/greyd/internal/engine"
	"github.com/ocx/greyd/internal/fingerprint"
)

// MaxDatagramSize bounds a single request/response datagram; large
// enough for any legal triple (addresses and email-local-parts are
// short) with headroom.
const MaxDatagramSize = 2048

// ParseDatagramRequest parses a single UDP payload into a triple. The
// datagram carries exactly one request, with no framing beyond the
// space-separated tokens themselves (spec.md §6).
func ParseDatagramRequest(payload []byte) (fingerprint.Triple, error) {
	if len(payload) > MaxDatagramSize {
		return fingerprint.Triple{}, fmt.Errorf("protocol: datagram too large: %d bytes", len(payload))
	}
	return ParseRequest(string(payload))
}

// EncodeDatagramVerdict renders v as the reply payload for a datagram
// request; the reply is addressed back to the sender by the caller.
func EncodeDatagramVerdict(v engine.Verdict) []byte {
	return []byte(FormatVerdict(v))
}
