package fudi

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// DefaultMaxMessageSize bounds one decoded message in bytes.
const DefaultMaxMessageSize = 64 * 1024

// Decoder reads terminated messages from a byte stream.
type Decoder struct {
	r       *bufio.Reader
	maxSize int

	unterminated bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r), maxSize: DefaultMaxMessageSize}
}

// SetMaxMessageSize overrides the per-message size bound; n <= 0 restores the default.
func (d *Decoder) SetMaxMessageSize(n int) {
	if n <= 0 {
		n = DefaultMaxMessageSize
	}
	d.maxSize = n
}

// AllowUnterminated makes a final message without ';' at EOF decode
// normally instead of failing with ErrTruncated. Files use this; sockets
// should not.
func (d *Decoder) AllowUnterminated() {
	d.unterminated = true
}

// Decode returns the next non-empty message. It returns io.EOF when the
// stream ends cleanly between messages and ErrTruncated when it ends mid-message.
func (d *Decoder) Decode() (Message, error) {
	var t tokenizer
	size := 0
	for {
		c, err := d.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if !t.pending() {
					return Message{}, io.EOF
				}
				if !d.unterminated {
					return Message{}, ErrTruncated
				}
				if t.escaped {
					return Message{}, ErrDanglingEscape
				}
				t.flush()
				if m, ok := t.message(); ok {
					return m, nil
				}
				return Message{}, io.EOF
			}
			return Message{}, err
		}
		size++
		if size > d.maxSize {
			return Message{}, ErrMessageTooLarge
		}
		done, err := t.feed(c)
		if err != nil {
			return Message{}, err
		}
		if !done {
			continue
		}
		if m, ok := t.message(); ok {
			return m, nil
		}
		size = 0
	}
}

// DecodeDatagram parses every message in one packet. A trailing message
// without terminator is accepted.
func DecodeDatagram(packet []byte) ([]Message, error) {
	if len(packet) > DefaultMaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	var (
		t   tokenizer
		out []Message
	)
	for _, c := range packet {
		done, err := t.feed(c)
		if err != nil {
			return nil, err
		}
		if !done {
			continue
		}
		if m, ok := t.message(); ok {
			out = append(out, m)
		}
	}
	if t.escaped {
		return nil, ErrDanglingEscape
	}
	t.flush()
	if m, ok := t.message(); ok {
		out = append(out, m)
	}
	return out, nil
}

// Parse decodes a single message from text; the terminator is optional.
func Parse(text string) (Message, error) {
	msgs, err := DecodeDatagram([]byte(text))
	if err != nil {
		return Message{}, err
	}
	if len(msgs) == 0 {
		return Message{}, ErrEmptySelector
	}
	return msgs[0], nil
}

type tokenizer struct {
	cur     strings.Builder
	inToken bool
	escaped bool
	tokens  []string
}

func (t *tokenizer) pending() bool {
	return t.inToken || t.escaped || len(t.tokens) > 0
}

// feed consumes one byte and reports whether a terminator was reached.
func (t *tokenizer) feed(c byte) (bool, error) {
	if t.escaped {
		t.escaped = false
		t.cur.WriteByte(c)
		t.inToken = true
		return false, nil
	}
	switch c {
	case '\\':
		t.escaped = true
		t.inToken = true
	case ' ', '\t', '\n', '\r':
		t.flush()
	case Terminator:
		t.flush()
		return true, nil
	default:
		t.cur.WriteByte(c)
		t.inToken = true
	}
	return false, nil
}

func (t *tokenizer) flush() {
	if !t.inToken {
		return
	}
	t.tokens = append(t.tokens, t.cur.String())
	t.cur.Reset()
	t.inToken = false
}

// message drains collected tokens into a Message.
func (t *tokenizer) message() (Message, bool) {
	tokens := t.tokens
	t.tokens = nil
	if len(tokens) == 0 {
		return Message{}, false
	}
	args := make([]Atom, 0, len(tokens)-1)
	for _, tok := range tokens[1:] {
		args = append(args, ParseAtom(tok))
	}
	return Message{selector: tokens[0], args: args}, true
}
