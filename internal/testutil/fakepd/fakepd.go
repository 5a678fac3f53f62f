// Package fakepd is a stand-in engine for tests. It accepts the client's
// outbound connection, records what it receives, and can announce itself on
// the client's inbound port.
package fakepd

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/purity/internal/engine"
	"github.com/danmuck/purity/internal/fudi"
)

type Engine struct {
	t  testing.TB
	ln net.Listener

	mu       sync.Mutex
	received []fudi.Message
	notify   chan struct{}
	conns    []net.Conn
	accepted int
	wg       sync.WaitGroup
}

// Start listens on an ephemeral loopback port for the client's sender.
func Start(t testing.TB) *Engine {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fakepd listen: %v", err)
	}
	e := &Engine{t: t, ln: ln, notify: make(chan struct{}, 1024)}
	e.wg.Add(1)
	go e.accept()
	t.Cleanup(e.Close)
	return e
}

func (e *Engine) Port() int {
	return e.ln.Addr().(*net.TCPAddr).Port
}

func (e *Engine) accept() {
	defer e.wg.Done()
	for {
		conn, err := e.ln.Accept()
		if err != nil {
			return
		}
		e.mu.Lock()
		e.conns = append(e.conns, conn)
		e.accepted++
		e.mu.Unlock()
		e.wg.Add(1)
		go e.read(conn)
	}
}

func (e *Engine) read(conn net.Conn) {
	defer e.wg.Done()
	dec := fudi.NewDecoder(conn)
	for {
		msg, err := dec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				e.t.Logf("fakepd decode: %v", err)
			}
			return
		}
		e.mu.Lock()
		e.received = append(e.received, msg)
		e.mu.Unlock()
		e.notify <- struct{}{}
	}
}

// Announce dials the client's receiver on port and writes msgs, defaulting
// to a single __first_connected__.
func (e *Engine) Announce(ctx context.Context, port int, msgs ...fudi.Message) error {
	if len(msgs) == 0 {
		msgs = []fudi.Message{fudi.MustMessage("__first_connected__")}
	}
	conn, err := dialUntilUp(ctx, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.conns = append(e.conns, conn)
	e.mu.Unlock()
	for _, m := range msgs {
		if err := fudi.Encode(conn, m); err != nil {
			return err
		}
	}
	return nil
}

// dialUntilUp retries refused dials so an announce can race the listener.
func dialUntilUp(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Wait blocks until n messages have arrived and returns them as text.
func (e *Engine) Wait(n int, timeout time.Duration) []string {
	e.t.Helper()
	deadline := time.After(timeout)
	for {
		e.mu.Lock()
		got := len(e.received)
		e.mu.Unlock()
		if got >= n {
			return e.Messages()
		}
		select {
		case <-e.notify:
		case <-deadline:
			e.t.Fatalf("fakepd: got %d messages, want %d: %v", got, n, e.Messages())
			return nil
		}
	}
}

// Accepted counts sender connections the client has opened.
func (e *Engine) Accepted() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accepted
}

func (e *Engine) Messages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.received))
	for i, m := range e.received {
		out[i] = m.String()
	}
	return out
}

func (e *Engine) Close() {
	_ = e.ln.Close()
	e.mu.Lock()
	conns := e.conns
	e.conns = nil
	e.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	e.wg.Wait()
}

// FreePort reserves and releases a loopback port for a receiver that must
// be known before it binds.
func FreePort(t testing.TB) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

// Manager is an engine.Manager that runs Launch through a callback and
// counts terminations instead of killing anything.
type Manager struct {
	LaunchFn func(ctx context.Context) (*engine.Handle, error)
	Status   engine.TerminateStatus

	mu         sync.Mutex
	launches   int
	terminated []int
}

func (m *Manager) Launch(ctx context.Context) (*engine.Handle, error) {
	m.mu.Lock()
	m.launches++
	m.mu.Unlock()
	if m.LaunchFn == nil {
		return &engine.Handle{PID: 4242, Binary: "fakepd"}, nil
	}
	return m.LaunchFn(ctx)
}

func (m *Manager) Terminate(_ context.Context, h *engine.Handle) (engine.TerminateStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = append(m.terminated, h.PID)
	if m.Status == "" {
		return engine.StatusTerminated, nil
	}
	return m.Status, nil
}

func (m *Manager) Launches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launches
}

// Terminated returns the pids passed to Terminate, in call order.
func (m *Manager) Terminated() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.terminated...)
}
