package fudi

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags the scalar carried by an Atom.
type Kind uint8

const (
	KindSymbol Kind = iota
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "symbol"
	}
}

// Atom is one scalar in a message argument list.
type Atom struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

func Int(v int64) Atom {
	return Atom{kind: KindInt, i: v}
}

func Float(v float64) Atom {
	return Atom{kind: KindFloat, f: v}
}

func Symbol(v string) Atom {
	return Atom{kind: KindSymbol, s: v}
}

func (a Atom) Kind() Kind {
	return a.kind
}

// Int returns the integer value. Floats with no fractional part convert.
func (a Atom) Int() (int64, bool) {
	switch a.kind {
	case KindInt:
		return a.i, true
	case KindFloat:
		if a.f == math.Trunc(a.f) {
			return int64(a.f), true
		}
	}
	return 0, false
}

// Float returns the numeric value of int and float atoms.
func (a Atom) Float() (float64, bool) {
	switch a.kind {
	case KindInt:
		return float64(a.i), true
	case KindFloat:
		return a.f, true
	}
	return 0, false
}

func (a Atom) Symbol() (string, bool) {
	if a.kind != KindSymbol {
		return "", false
	}
	return a.s, true
}

// Value returns the underlying Go value (int64, float64 or string).
func (a Atom) Value() any {
	switch a.kind {
	case KindInt:
		return a.i
	case KindFloat:
		return a.f
	default:
		return a.s
	}
}

// String renders the atom as an unescaped token.
func (a Atom) String() string {
	switch a.kind {
	case KindInt:
		return strconv.FormatInt(a.i, 10)
	case KindFloat:
		return strconv.FormatFloat(a.f, 'g', -1, 64)
	default:
		return a.s
	}
}

func (a Atom) validate() error {
	switch a.kind {
	case KindFloat:
		if math.IsNaN(a.f) || math.IsInf(a.f, 0) {
			return fmt.Errorf("%w: non-finite float", ErrInvalidAtom)
		}
	case KindSymbol:
		if a.s == "" {
			return fmt.Errorf("%w: empty symbol", ErrInvalidAtom)
		}
	}
	return nil
}

// AtomOf converts a Go value into an Atom.
func AtomOf(v any) (Atom, error) {
	var a Atom
	switch x := v.(type) {
	case Atom:
		a = x
	case int:
		a = Int(int64(x))
	case int8:
		a = Int(int64(x))
	case int16:
		a = Int(int64(x))
	case int32:
		a = Int(int64(x))
	case int64:
		a = Int(x)
	case uint8:
		a = Int(int64(x))
	case uint16:
		a = Int(int64(x))
	case uint32:
		a = Int(int64(x))
	case float32:
		a = Float(float64(x))
	case float64:
		a = Float(x)
	case string:
		a = Symbol(x)
	case fmt.Stringer:
		a = Symbol(x.String())
	default:
		return Atom{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidAtom, v)
	}
	if err := a.validate(); err != nil {
		return Atom{}, err
	}
	return a, nil
}

// ParseAtom classifies a decoded token: integer first, then float, else symbol.
func ParseAtom(token string) Atom {
	if i, err := strconv.ParseInt(token, 10, 64); err == nil {
		return Int(i)
	}
	if looksNumeric(token) {
		if f, err := strconv.ParseFloat(token, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return Float(f)
		}
	}
	return Symbol(token)
}

// looksNumeric rejects tokens like "inf" or "nan" that ParseFloat accepts
// but Pd treats as symbols.
func looksNumeric(token string) bool {
	t := strings.TrimLeft(token, "+-")
	if t == "" {
		return false
	}
	c := t[0]
	return (c >= '0' && c <= '9') || c == '.'
}
