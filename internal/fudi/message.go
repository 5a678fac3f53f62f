package fudi

import (
	"fmt"
	"strings"
)

// Message is a selector followed by an ordered argument list.
type Message struct {
	selector string
	args     []Atom
}

// NewMessage validates the selector and converts args into atoms. A
// selector is one bare token: no whitespace, ';' or ','.
func NewMessage(selector string, args ...any) (Message, error) {
	if strings.TrimSpace(selector) == "" {
		return Message{}, ErrEmptySelector
	}
	if strings.ContainsAny(selector, " \t\r\n;,") {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidSelector, selector)
	}
	atoms := make([]Atom, 0, len(args))
	for i, arg := range args {
		a, err := AtomOf(arg)
		if err != nil {
			return Message{}, fmt.Errorf("arg[%d]: %w", i, err)
		}
		atoms = append(atoms, a)
	}
	return Message{selector: selector, args: atoms}, nil
}

// MustMessage is NewMessage for constant messages; it panics on invalid input.
func MustMessage(selector string, args ...any) Message {
	m, err := NewMessage(selector, args...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Message) Selector() string {
	return m.selector
}

// Args returns a copy of the argument list.
func (m Message) Args() []Atom {
	out := make([]Atom, len(m.args))
	copy(out, m.args)
	return out
}

func (m Message) Len() int {
	return len(m.args)
}

func (m Message) Arg(i int) (Atom, bool) {
	if i < 0 || i >= len(m.args) {
		return Atom{}, false
	}
	return m.args[i], true
}

func (m Message) IsZero() bool {
	return m.selector == ""
}

// String renders the message as space separated tokens without terminator.
func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.selector)
	for _, a := range m.args {
		b.WriteByte(' ')
		b.WriteString(a.String())
	}
	return b.String()
}
