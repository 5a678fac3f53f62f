package receiver

import (
	"errors"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/purity/internal/fudi"
)

var ErrNilHandler = errors.New("receiver: nil handler")

// Peer identifies the connection a message arrived on.
type Peer struct {
	ID      uint64
	Network string
	Addr    net.Addr
}

func (p Peer) String() string {
	if p.Addr == nil {
		return p.Network
	}
	return p.Network + "://" + p.Addr.String()
}

// Handler receives the arguments of one inbound message.
type Handler func(peer Peer, args []fudi.Atom)

// Registry maps selectors to handlers. Registering a selector again
// replaces the previous handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register installs h for selector and reports whether it replaced one.
func (r *Registry) Register(selector string, h Handler) (bool, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return false, fudi.ErrEmptySelector
	}
	if h == nil {
		return false, ErrNilHandler
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.handlers[selector]
	r.handlers[selector] = h
	return replaced, nil
}

func (r *Registry) Unregister(selector string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, strings.TrimSpace(selector))
}

func (r *Registry) Lookup(selector string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[selector]
	return h, ok
}

// Selectors returns registered selectors in sorted order.
func (r *Registry) Selectors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for sel := range r.handlers {
		out = append(out, sel)
	}
	sort.Strings(out)
	return out
}
