package sender

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/purity/internal/fudi"
	"github.com/danmuck/purity/internal/testutil/testlog"
	"github.com/rs/zerolog/log"
)

func TestSendPreservesCallOrder(t *testing.T) {
	testlog.Start(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		dec := fudi.NewDecoder(conn)
		var out []string
		for len(out) < 3 {
			m, err := dec.Decode()
			if err != nil {
				break
			}
			out = append(out, m.String())
		}
		received <- out
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	conn, err := Dial(context.Background(), Config{Host: "127.0.0.1", Port: port, ConnectTimeout: time.Second, Logger: log.Logger})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for i := 1; i <= 3; i++ {
		if err := conn.Send(fudi.MustMessage("step", i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	select {
	case got := <-received:
		if len(got) != 3 || got[0] != "step 1" || got[1] != "step 2" || got[2] != "step 3" {
			t.Fatalf("unexpected order: %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for messages")
	}
	if conn.Sent() != 3 {
		t.Fatalf("unexpected sent count: %d", conn.Sent())
	}
}

func TestDialRefusedAndClosedSend(t *testing.T) {
	testlog.Start(t)

	if _, err := Dial(context.Background(), Config{}); !errors.Is(err, ErrPortRequired) {
		t.Fatalf("expected ErrPortRequired, got %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	if _, err := Dial(context.Background(), Config{Host: "127.0.0.1", Port: port, ConnectTimeout: time.Second, Logger: log.Logger}); err == nil {
		t.Fatalf("expected dial to closed port to fail")
	}

	udp, err := Dial(context.Background(), Config{Transport: fudi.TransportDatagram, Host: "127.0.0.1", Port: 9, Logger: log.Logger})
	if err != nil {
		t.Fatalf("udp dial: %v", err)
	}
	if err := udp.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := udp.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := udp.Send(fudi.MustMessage("pd", "quit")); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
}
