package fudi

import (
	"io"
	"strings"
)

// Terminator ends every FUDI message on the wire.
const Terminator = ';'

var tokenEscaper = strings.NewReplacer(
	`\`, `\\`,
	" ", `\ `,
	";", `\;`,
	",", `\,`,
	"$", `\$`,
)

// AppendMessage appends the wire form "selector a b c;\n" to dst.
func AppendMessage(dst []byte, m Message) []byte {
	dst = append(dst, escapeToken(m.selector)...)
	for _, a := range m.args {
		dst = append(dst, ' ')
		if a.kind == KindSymbol {
			dst = append(dst, escapeToken(a.s)...)
			continue
		}
		dst = append(dst, a.String()...)
	}
	return append(dst, Terminator, '\n')
}

// Marshal returns the wire form of one message.
func Marshal(m Message) ([]byte, error) {
	if m.IsZero() {
		return nil, ErrEmptySelector
	}
	return AppendMessage(make([]byte, 0, 16+8*len(m.args)), m), nil
}

// Encode writes one message to w.
func Encode(w io.Writer, m Message) error {
	payload, err := Marshal(m)
	if err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func escapeToken(s string) string {
	if !strings.ContainsAny(s, "\\ ;,$\t\n") {
		return s
	}
	s = tokenEscaper.Replace(s)
	s = strings.ReplaceAll(s, "\t", `\`+"\t")
	return strings.ReplaceAll(s, "\n", `\`+"\n")
}
