// Package receiver owns the inbound FUDI channel from the engine.
//
// Ownership boundary:
// - selector -> handler registry (last registration wins)
// - TCP accept loop and UDP read loop
// - sequential per-connection dispatch
package receiver
