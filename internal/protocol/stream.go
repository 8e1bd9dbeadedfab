package protocol

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ocx/greyd/internal/engine"
	"github.com/ocx/greyd/internal/fingerprint"
)

// ReadStreamRequest reads one newline-framed request line from r and
// parses it into a triple. One request per connection, per spec.md §6.
func ReadStreamRequest(r io.Reader) (fingerprint.Triple, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return fingerprint.Triple{}, fmt.Errorf("protocol: read request: %w", err)
	}
	return ParseRequest(line)
}

// WriteStreamVerdict writes v followed by a newline to w.
func WriteStreamVerdict(w io.Writer, v engine.Verdict) error {
	_, err := fmt.Fprintf(w, "%s\n", FormatVerdict(v))
	return err
}
