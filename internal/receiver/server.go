package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/danmuck/purity/internal/fudi"
	"github.com/danmuck/purity/internal/observability"
	"github.com/rs/zerolog"
)

var (
	ErrAlreadyListening = errors.New("receiver: already listening")
	ErrServerClosed     = errors.New("receiver: server closed")
)

const maxDatagramSize = 64 * 1024

// Config describes where and how the receiver listens.
type Config struct {
	Transport      fudi.Transport
	Addr           string
	MaxMessageSize int
	Verbose        bool
	Logger         zerolog.Logger
}

// Server accepts engine connections and dispatches decoded messages.
type Server struct {
	cfg      Config
	registry *Registry
	log      zerolog.Logger

	mu     sync.Mutex
	ln     net.Listener
	pc     net.PacketConn
	conns  map[uint64]net.Conn
	closed bool

	nextPeer atomic.Uint64
	active   atomic.Int64
	wg       sync.WaitGroup
}

func NewServer(cfg Config, registry *Registry) *Server {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		log:      cfg.Logger.With().Str("component", "receiver").Logger(),
		conns:    make(map[uint64]net.Conn),
	}
}

func (s *Server) Registry() *Registry {
	return s.registry
}

// Listen binds the endpoint and starts serving in the background. ctx only
// bounds the bind; the server runs until Close. Readiness of the engine is
// signalled separately by the messages it sends.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.ln != nil || s.pc != nil {
		return ErrAlreadyListening
	}

	addr := strings.TrimSpace(s.cfg.Addr)
	var lc net.ListenConfig
	if s.cfg.Transport.IsDatagram() {
		pc, err := lc.ListenPacket(ctx, "udp", addr)
		if err != nil {
			return err
		}
		s.pc = pc
		s.log.Info().Str("addr", pc.LocalAddr().String()).Msg("receiver listening udp")
		s.wg.Add(1)
		go s.servePackets(pc)
	} else {
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		s.ln = ln
		s.log.Info().Str("addr", ln.Addr().String()).Msg("receiver listening tcp")
		s.wg.Add(1)
		go s.serveStream(ln)
	}
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.ln != nil:
		return s.ln.Addr()
	case s.pc != nil:
		return s.pc.LocalAddr()
	}
	return nil
}

// ActivePeers reports open stream connections.
func (s *Server) ActivePeers() int {
	return int(s.active.Load())
}

// Close stops accepting and closes open connections. It does not wait for
// handlers, so it is safe to call from one; use Wait to join.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	if s.pc != nil {
		err = s.pc.Close()
	}
	for id, conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, id)
	}
	s.mu.Unlock()
	return err
}

// Wait blocks until the serve loops and connection handlers have exited.
// Do not call it from inside a Handler.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) serveStream(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("receiver accept failed")
			return
		}
		peer := Peer{ID: s.nextPeer.Add(1), Network: "tcp", Addr: conn.RemoteAddr()}
		if !s.track(peer.ID, conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go s.handleConn(peer, conn)
	}
}

// handleConn decodes and dispatches one message at a time, in arrival order.
func (s *Server) handleConn(peer Peer, conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(peer.ID)
	defer conn.Close()

	active := s.active.Add(1)
	s.log.Debug().Str("peer", peer.String()).Int64("active_peers", active).Msg("engine connected")
	defer func() {
		remaining := s.active.Add(-1)
		s.log.Debug().Str("peer", peer.String()).Int64("active_peers", remaining).Msg("engine disconnected")
	}()

	dec := fudi.NewDecoder(conn)
	dec.SetMaxMessageSize(s.cfg.MaxMessageSize)
	for {
		msg, err := dec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosed() && !errors.Is(err, net.ErrClosed) {
				s.log.Warn().Str("peer", peer.String()).Err(err).Msg("receiver read failed")
			}
			return
		}
		s.Dispatch(peer, msg)
	}
}

func (s *Server) servePackets(pc net.PacketConn) {
	defer s.wg.Done()
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("receiver read failed")
			return
		}
		msgs, err := fudi.DecodeDatagram(buf[:n])
		if err != nil {
			s.log.Warn().Str("peer", addr.String()).Err(err).Msg("receiver dropped malformed datagram")
			observability.RecordDropped("malformed")
			continue
		}
		peer := Peer{Network: "udp", Addr: addr}
		for _, msg := range msgs {
			s.Dispatch(peer, msg)
		}
	}
}

// Dispatch routes msg to its handler. Unknown selectors are dropped.
func (s *Server) Dispatch(peer Peer, msg fudi.Message) {
	h, ok := s.registry.Lookup(msg.Selector())
	if !ok {
		s.log.Debug().
			Str("peer", peer.String()).
			Str("selector", msg.Selector()).
			Str("message", msg.String()).
			Msg("receiver dropped message with no handler")
		observability.RecordDropped("unknown_selector")
		return
	}
	observability.RecordReceived(msg.Selector())
	if s.cfg.Verbose {
		s.log.Info().Str("peer", peer.String()).Str("message", msg.String()).Msg("received")
	}
	s.invoke(h, peer, msg)
}

func (s *Server) invoke(h Handler, peer Peer, msg fudi.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("selector", msg.Selector()).
				Str("panic", fmt.Sprint(r)).
				Msg("receiver handler panicked")
		}
	}()
	h(peer, msg.Args())
}

func (s *Server) track(id uint64, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[id] = conn
	return true
}

func (s *Server) untrack(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
