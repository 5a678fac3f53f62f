package client

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/purity/internal/async"
	"github.com/danmuck/purity/internal/engine"
	"github.com/danmuck/purity/internal/fudi"
	"github.com/danmuck/purity/internal/observability"
	"github.com/danmuck/purity/internal/receiver"
	"github.com/danmuck/purity/internal/sender"
	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrLifecycleOrder     = errors.New("client: invalid lifecycle transition")
	ErrReceiverNotStarted = errors.New("client: receiver not started")
	ErrReservedSelector   = errors.New("client: reserved selector")
	ErrNoConnection       = errors.New("client: no outbound connection")
	ErrConnect            = errors.New("client: could not connect to engine")
	ErrClosed             = errors.New("client: session closed")
	ErrInvalidPort        = errors.New("client: invalid port")
)

// State is one phase of the session handshake.
type State string

const (
	StateInit              State = "init"
	StateReceiverStarting  State = "receiver_starting"
	StateAwaitingBothReady State = "awaiting_both_ready"
	StateSenderStarting    State = "sender_starting"
	StateReady             State = "ready"
	StateShuttingDown      State = "shutting_down"
	StateClosed            State = "closed"
	StateError             State = "error"
)

// Control selectors sent by the engine side of the handshake.
const (
	SelectorPong           = "__pong__"
	SelectorPing           = "__ping__"
	SelectorConfirm        = "__confirm__"
	SelectorFirstConnected = "__first_connected__"
	SelectorConnected      = "__connected__"
)

const (
	DefaultReceivePort = 14444
	DefaultSendPort    = 15555
	DefaultQuitGrace   = 500 * time.Millisecond
)

// Handler receives the arguments of an inbound message.
type Handler = receiver.Handler

// Config is fixed at construction time.
type Config struct {
	ReceivePort      int
	SendPort         int
	Host             string
	Transport        fudi.Transport
	QuitAfterSend    bool
	EnginePID        int
	QuitGrace        time.Duration
	ConnectTimeout   time.Duration
	WriteTimeout     time.Duration
	// HandshakeTimeout bounds the wait for both readiness signals; zero waits
	// as long as the caller's context allows.
	HandshakeTimeout time.Duration
	Verbose          bool
	Logger           zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		ReceivePort:      DefaultReceivePort,
		SendPort:         DefaultSendPort,
		Host:             sender.DefaultHost,
		Transport:        fudi.TransportStream,
		QuitGrace:        DefaultQuitGrace,
		ConnectTimeout:   5 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 30 * time.Second,
		Logger:           log.Logger,
	}
}

// Validate checks ports. A zero receive port binds an ephemeral port.
func (c Config) Validate() error {
	if c.ReceivePort < 0 || c.ReceivePort > 65535 {
		return fmt.Errorf("%w: receive_port=%d", ErrInvalidPort, c.ReceivePort)
	}
	if c.SendPort <= 0 || c.SendPort > 65535 {
		return fmt.Errorf("%w: send_port=%d", ErrInvalidPort, c.SendPort)
	}
	if c.Transport != "" && c.Transport != fudi.TransportStream && c.Transport != fudi.TransportDatagram {
		return fmt.Errorf("client: unknown transport %q", c.Transport)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = sender.DefaultHost
	}
	if c.Transport == "" {
		c.Transport = fudi.TransportStream
	}
	if c.QuitGrace <= 0 {
		c.QuitGrace = DefaultQuitGrace
	}
	return c
}

// Client is one session with the engine.
type Client struct {
	cfg Config
	id  string
	log zerolog.Logger

	mu      sync.Mutex
	state   State
	err     error
	recv    *receiver.Server
	handle  *engine.Handle
	manager engine.Manager

	// sendMu guards conn; it serialises sends with connection replacement.
	sendMu sync.Mutex
	conn   *sender.Conn

	receiverReady *async.Future[*receiver.Server]

	done     chan struct{}
	doneOnce sync.Once
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	id := shortuuid.New()
	c := &Client{
		cfg:           cfg,
		id:            id,
		log:           cfg.Logger.With().Str("session", id).Logger(),
		state:         StateInit,
		receiverReady: async.NewFuture[*receiver.Server](),
		done:          make(chan struct{}),
	}
	return c, nil
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the terminal handshake error once the session is in StateError.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the session closes, or after the first successful
// send when QuitAfterSend is set.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ReceiverReady resolves on the first __first_connected__ from the engine.
func (c *Client) ReceiverReady() *async.Future[*receiver.Server] {
	return c.receiverReady
}

// ReceiverAddr returns the bound inbound address, or nil before StartReceiver.
func (c *Client) ReceiverAddr() net.Addr {
	c.mu.Lock()
	recv := c.recv
	c.mu.Unlock()
	if recv == nil {
		return nil
	}
	return recv.Addr()
}

// Status is a point-in-time snapshot for diagnostics.
type Status struct {
	ID          string `json:"id"`
	State       State  `json:"state"`
	Error       string `json:"error,omitempty"`
	ReceiveAddr string `json:"receive_addr,omitempty"`
	SendAddr    string `json:"send_addr,omitempty"`
	EnginePID   int    `json:"engine_pid,omitempty"`
	Sent        uint64 `json:"sent"`
}

func (c *Client) Status() Status {
	c.mu.Lock()
	st := Status{ID: c.id, State: c.state}
	if c.err != nil {
		st.Error = c.err.Error()
	}
	if c.handle != nil {
		st.EnginePID = c.handle.PID
	} else {
		st.EnginePID = c.cfg.EnginePID
	}
	recv := c.recv
	c.mu.Unlock()

	if recv != nil && recv.Addr() != nil {
		st.ReceiveAddr = recv.Addr().String()
	}
	c.sendMu.Lock()
	if c.conn != nil {
		st.SendAddr = c.conn.RemoteAddr().String()
		st.Sent = c.conn.Sent()
	}
	c.sendMu.Unlock()
	return st
}

// transition moves to `to` when the current state is one of from.
func (c *Client) transition(to State, from ...State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(to, from...)
}

func (c *Client) transitionLocked(to State, from ...State) error {
	if c.state == StateClosed {
		return ErrClosed
	}
	for _, s := range from {
		if c.state == s {
			c.log.Debug().Str("from", string(c.state)).Str("to", string(to)).Msg("session transition")
			c.state = to
			observability.RecordTransition(string(to))
			return nil
		}
	}
	return transitionError(c.state, to)
}

// fail records a terminal handshake error.
func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateError
	if c.err == nil {
		c.err = err
	}
	observability.RecordTransition(string(StateError))
	c.log.Error().Err(err).Msg("session failed")
}

func (c *Client) signalDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// diag logs protocol chatter at info when verbose, debug otherwise.
func (c *Client) diag() *zerolog.Event {
	if c.cfg.Verbose {
		return c.log.Info()
	}
	return c.log.Debug()
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrLifecycleOrder, from, to)
}
