// Package syncmgr implements the peer replication collaborator named in
// spec.md §4.5: operational updates and periodic aggregate syncs over a
// binary, length-delimited wire format (spec.md §6).
package syncmgr

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ocx/greyd/internal/fingerprint"
)

// Frame tags, per spec.md §6's peer wire format.
const (
	frameOperational byte = 0x01
	frameAggregate   byte = 0x02
)

// Frame is the decoded form of one peer-wire frame.
type Frame struct {
	Operational bool
	Digest      fingerprint.Digest // Operational
	FilterIndex byte               // Aggregate
	Payload     []byte             // Aggregate
}

// WriteOperational writes an 0x01 operational-update frame: tag followed
// by the 32-byte digest.
func WriteOperational(w io.Writer, d fingerprint.Digest) error {
	buf := make([]byte, 1+len(d.Bytes()))
	buf[0] = frameOperational
	copy(buf[1:], d.Bytes())
	_, err := w.Write(buf)
	return err
}

// WriteAggregate writes an 0x02 aggregate frame: tag, 1-byte filter
// index, 4-byte big-endian length, then payload.
func WriteAggregate(w io.Writer, filterIndex int, payload []byte) error {
	if filterIndex < 0 || filterIndex > 0xff {
		return fmt.Errorf("syncmgr: filter index %d out of range", filterIndex)
	}
	header := make([]byte, 6)
	header[0] = frameAggregate
	header[1] = byte(filterIndex)
	binary.BigEndian.PutUint32(header[2:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame blocks until one complete frame is available on r, or
// returns an error (including io.EOF when the peer closes the
// connection, which the caller treats as a DISCONNECTED transition).
func ReadFrame(r io.Reader) (Frame, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return Frame{}, err
	}

	switch tag[0] {
	case frameOperational:
		var raw [32]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return Frame{}, fmt.Errorf("syncmgr: read operational digest: %w", err)
		}
		d, err := fingerprint.FromBytes(raw[:])
		if err != nil {
			return Frame{}, err
		}
		return Frame{Operational: true, Digest: d}, nil

	case frameAggregate:
		var header [5]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return Frame{}, fmt.Errorf("syncmgr: read aggregate header: %w", err)
		}
		length := binary.BigEndian.Uint32(header[1:])
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("syncmgr: read aggregate payload: %w", err)
		}
		return Frame{Operational: false, FilterIndex: header[0], Payload: payload}, nil

	default:
		return Frame{}, fmt.Errorf("syncmgr: unknown frame tag 0x%02x", tag[0])
	}
}
