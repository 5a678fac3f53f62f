package receiver

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/purity/internal/fudi"
	"github.com/danmuck/purity/internal/testutil/testlog"
	"github.com/rs/zerolog/log"
)

type recorder struct {
	mu   sync.Mutex
	seen []string
	ch   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan struct{}, 64)}
}

func (r *recorder) handler(sel string) Handler {
	return func(_ Peer, args []fudi.Atom) {
		m, _ := fudi.NewMessage(sel, atomsToAny(args)...)
		r.mu.Lock()
		r.seen = append(r.seen, m.String())
		r.mu.Unlock()
		r.ch <- struct{}{}
	}
}

func (r *recorder) wait(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d/%d", i+1, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.seen))
	copy(out, r.seen)
	return out
}

func atomsToAny(args []fudi.Atom) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

func newTestServer(t *testing.T, transport fudi.Transport) (*Server, *recorder) {
	t.Helper()
	rec := newRecorder()
	reg := NewRegistry()
	for _, sel := range []string{"a", "b", "c"} {
		if _, err := reg.Register(sel, rec.handler(sel)); err != nil {
			t.Fatalf("register %s: %v", sel, err)
		}
	}
	srv := NewServer(Config{Transport: transport, Addr: "127.0.0.1:0", Logger: log.Logger}, reg)
	if err := srv.Listen(context.Background()); err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Close()
		srv.Wait()
	})
	return srv, rec
}

func TestServerStreamDispatchInArrivalOrder(t *testing.T) {
	testlog.Start(t)

	srv, rec := newTestServer(t, fudi.TransportStream)
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("a 1;\nunknown 9;\nb 2 two;\nc 3.5;\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := rec.wait(t, 3)
	want := []string{"a 1", "b 2 two", "c 3.5"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected dispatch order: %v", got)
		}
	}
}

func TestServerDatagramDispatch(t *testing.T) {
	testlog.Start(t)

	srv, rec := newTestServer(t, fudi.TransportDatagram)
	conn, err := net.Dial("udp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("a 1;\nb 2;")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := rec.wait(t, 2)
	if got[0] != "a 1" || got[1] != "b 2" {
		t.Fatalf("unexpected datagram dispatch: %v", got)
	}
}

func TestServerRecoversHandlerPanic(t *testing.T) {
	testlog.Start(t)

	srv, rec := newTestServer(t, fudi.TransportStream)
	if _, err := srv.Registry().Register("boom", func(Peer, []fudi.Atom) { panic("handler bug") }); err != nil {
		t.Fatalf("register: %v", err)
	}
	srv.Dispatch(Peer{Network: "test"}, fudi.MustMessage("boom"))
	srv.Dispatch(Peer{Network: "test"}, fudi.MustMessage("a", 1))
	if got := rec.wait(t, 1); got[0] != "a 1" {
		t.Fatalf("dispatch after panic failed: %v", got)
	}
}

func TestServerListenTwiceAndAfterClose(t *testing.T) {
	testlog.Start(t)

	srv := NewServer(Config{Addr: "127.0.0.1:0", Logger: log.Logger}, nil)
	if err := srv.Listen(context.Background()); err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := srv.Listen(context.Background()); !errors.Is(err, ErrAlreadyListening) {
		t.Fatalf("expected ErrAlreadyListening, got %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	srv.Wait()
	if err := srv.Listen(context.Background()); !errors.Is(err, ErrServerClosed) {
		t.Fatalf("expected ErrServerClosed, got %v", err)
	}
}
