package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
)

var (
	ErrLaunch          = errors.New("engine: launch failed")
	ErrNoProcess       = errors.New("engine: no process")
	ErrBinaryRequired  = errors.New("engine: binary required")
	ErrInvalidPID      = errors.New("engine: invalid pid")
	ErrStartupTimedOut = errors.New("engine: startup readiness not observed")
)

// TerminateStatus is the human readable outcome of a forced termination.
type TerminateStatus string

const (
	StatusTerminated TerminateStatus = "terminated forcibly"
	StatusExited     TerminateStatus = "exited on its own"
)

// Manager launches the engine and terminates it on shutdown.
type Manager interface {
	Launch(ctx context.Context) (*Handle, error)
	Terminate(ctx context.Context, h *Handle) (TerminateStatus, error)
}

// Handle refers to a launched or attached engine process.
type Handle struct {
	PID      int
	Binary   string
	Attached bool

	proc *os.Process

	// exited is closed by the reaper of a launched process; nil when attached.
	exited  chan struct{}
	exitMu  sync.Mutex
	exitErr error
}

// Attach builds a handle for an engine started elsewhere.
func Attach(pid int) (*Handle, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, err
	}
	return &Handle{PID: pid, Attached: true, proc: proc}, nil
}

// Exited reports whether a launched process has been reaped. Attached
// handles always report false; only a signal can tell.
func (h *Handle) Exited() bool {
	if h == nil || h.exited == nil {
		return false
	}
	select {
	case <-h.exited:
		return true
	default:
		return false
	}
}

// ExitErr returns the wait error of a reaped process.
func (h *Handle) ExitErr() error {
	h.exitMu.Lock()
	defer h.exitMu.Unlock()
	return h.exitErr
}

func (h *Handle) setExit(err error) {
	h.exitMu.Lock()
	h.exitErr = err
	h.exitMu.Unlock()
	close(h.exited)
}

// Terminate sends SIGKILL to the engine. A process that is already gone is
// reported as StatusExited with a nil error.
func Terminate(ctx context.Context, h *Handle) (TerminateStatus, error) {
	if h == nil || h.proc == nil {
		return "", ErrNoProcess
	}
	if h.Exited() {
		return StatusExited, nil
	}
	if err := h.proc.Signal(os.Kill); err != nil {
		if processGone(err) {
			return StatusExited, nil
		}
		return "", err
	}
	if h.exited != nil {
		select {
		case <-h.exited:
		case <-ctx.Done():
		}
	}
	return StatusTerminated, nil
}

func processGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH)
}

// LaunchFunc adapts a function into a Manager using the default Terminate.
type LaunchFunc func(ctx context.Context) (*Handle, error)

func (f LaunchFunc) Launch(ctx context.Context) (*Handle, error) {
	return f(ctx)
}

func (f LaunchFunc) Terminate(ctx context.Context, h *Handle) (TerminateStatus, error) {
	return Terminate(ctx, h)
}
