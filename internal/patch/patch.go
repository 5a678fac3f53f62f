// Package patch defines the producer side of dynamic patching: anything that
// yields an ordered list of FUDI messages for the client to send.
package patch

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/purity/internal/fudi"
)

// Producer yields messages in the order they must be sent.
type Producer interface {
	Messages() []fudi.Message
}

// Sequence is a literal, ordered list of messages.
type Sequence []fudi.Message

func (s Sequence) Messages() []fudi.Message {
	out := make([]fudi.Message, len(s))
	copy(out, s)
	return out
}

// Append validates and appends one message.
func (s *Sequence) Append(selector string, args ...any) error {
	m, err := fudi.NewMessage(selector, args...)
	if err != nil {
		return err
	}
	*s = append(*s, m)
	return nil
}

// Read decodes every message in r. Blank messages are skipped and the size
// bound applies to each message, not to the whole input.
func Read(r io.Reader) (Sequence, error) {
	dec := fudi.NewDecoder(r)
	dec.AllowUnterminated()
	var seq Sequence
	for {
		m, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return seq, nil
		}
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", len(seq)+1, err)
		}
		seq = append(seq, m)
	}
}

// ReadFile loads a FUDI text file, one ';' terminated message at a time.
func ReadFile(path string) (Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("patch load failed (%s): %w", path, err)
	}
	defer f.Close()
	seq, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("patch parse failed (%s): %w", path, err)
	}
	return seq, nil
}
