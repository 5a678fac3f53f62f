// Package client owns the purity session controller.
//
// Ownership boundary:
// - handshake state machine (receiver -> engine + readiness join -> sender)
// - built-in control selectors spoken by the purity abstraction in Pd
// - outbound send path and the quit/termination sequence
//
// A session is created with Create, which returns only once both directions
// are live or the handshake failed for good. Handshake failures are never
// retried.
package client
