// Package protocol implements the protocol collaborator named in
// spec.md §6: parsing a worker's incoming request into a triple and
// serializing a verdict back onto the wire, for both supported
// transports (stream and datagram).
package protocol

import (
	"fmt"
	"strings"

	"github.com/ocx/greyd/internal/engine"
	"github.com/ocx/greyd/internal/fingerprint"
)

// ParseRequest parses a request line of three space-separated tokens —
// client_address sender recipient — per spec.md §6.
func ParseRequest(line string) (fingerprint.Triple, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return fingerprint.Triple{}, fmt.Errorf("protocol: expected 3 fields, got %d", len(fields))
	}
	return fingerprint.Triple{
		ClientAddress: fields[0],
		Sender:        fields[1],
		Recipient:     fields[2],
	}, nil
}

// FormatVerdict renders v as the wire token the protocol contract
// promises: MATCH, GRAY, or TRUST.
func FormatVerdict(v engine.Verdict) string {
	return v.String()
}
