package fudi

import "errors"

var (
	ErrEmptySelector   = errors.New("fudi: empty selector")
	ErrInvalidSelector = errors.New("fudi: invalid selector")
	ErrInvalidAtom     = errors.New("fudi: invalid atom")
	ErrMessageTooLarge = errors.New("fudi: message too large")
	ErrTruncated       = errors.New("fudi: truncated message")
	ErrDanglingEscape  = errors.New("fudi: dangling escape")
)
