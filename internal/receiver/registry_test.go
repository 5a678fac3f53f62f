package receiver

import (
	"errors"
	"testing"

	"github.com/danmuck/purity/internal/fudi"
	"github.com/danmuck/purity/internal/testutil/testlog"
)

func TestRegistryLastRegistrationWins(t *testing.T) {
	testlog.Start(t)

	reg := NewRegistry()
	var first, second int
	replaced, err := reg.Register("foo", func(Peer, []fudi.Atom) { first++ })
	if err != nil || replaced {
		t.Fatalf("first register replaced=%v err=%v", replaced, err)
	}
	replaced, err = reg.Register("foo", func(Peer, []fudi.Atom) { second++ })
	if err != nil || !replaced {
		t.Fatalf("second register replaced=%v err=%v", replaced, err)
	}

	h, ok := reg.Lookup("foo")
	if !ok {
		t.Fatalf("expected handler for foo")
	}
	h(Peer{}, nil)
	if first != 0 || second != 1 {
		t.Fatalf("expected only the replacement to run first=%d second=%d", first, second)
	}
	if got := reg.Selectors(); len(got) != 1 || got[0] != "foo" {
		t.Fatalf("unexpected selectors: %v", got)
	}
}

func TestRegistryRejectsInvalidRegistration(t *testing.T) {
	testlog.Start(t)

	reg := NewRegistry()
	if _, err := reg.Register(" ", func(Peer, []fudi.Atom) {}); !errors.Is(err, fudi.ErrEmptySelector) {
		t.Fatalf("expected ErrEmptySelector, got %v", err)
	}
	if _, err := reg.Register("foo", nil); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
	reg.Unregister("foo")
	if _, ok := reg.Lookup("foo"); ok {
		t.Fatalf("expected no handler after unregister")
	}
}
