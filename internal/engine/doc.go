// Package engine manages the Pure Data process the client talks to.
//
// A Manager launches (or attaches to) the engine and reports when its own
// startup is complete; it also owns forced termination, which treats an
// already-exited process as a successful shutdown.
package engine
