// Package fudi owns the FUDI wire contract spoken with Pure Data.
//
// Ownership boundary:
// - atoms (int, float, symbol) and selector-prefixed messages
// - stream encoding/decoding (one message per ';' terminator)
// - datagram decoding (one or more messages per packet)
//
// The session layer only deals with Message values; nothing above this
// package touches raw bytes.
package fudi
