// Package sender owns the outbound FUDI connection to the engine's
// listening port.
package sender

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/purity/internal/fudi"
	"github.com/rs/zerolog"
)

var (
	ErrPortRequired = errors.New("sender: port required")
	ErrConnClosed   = errors.New("sender: connection closed")
)

const DefaultHost = "localhost"

type Config struct {
	Transport      fudi.Transport
	Host           string
	Port           int
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	Logger         zerolog.Logger
}

func (c Config) Address() string {
	host := strings.TrimSpace(c.Host)
	if host == "" {
		host = DefaultHost
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// Conn is one live outbound connection. Writes are serialised so messages
// leave in call order.
type Conn struct {
	cfg  Config
	conn net.Conn
	log  zerolog.Logger

	mu     sync.Mutex
	closed bool
	sent   atomic.Uint64
}

// Dial connects to the engine. It makes exactly one attempt.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	if cfg.Port <= 0 {
		return nil, ErrPortRequired
	}
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, cfg.Transport.Network(), cfg.Address())
	if err != nil {
		return nil, err
	}
	c := &Conn{
		cfg:  cfg,
		conn: conn,
		log:  cfg.Logger.With().Str("component", "sender").Logger(),
	}
	c.log.Info().
		Str("network", cfg.Transport.Network()).
		Str("addr", conn.RemoteAddr().String()).
		Msg("sender connected")
	return c, nil
}

// Send encodes and writes one message.
func (c *Conn) Send(msg fudi.Message) error {
	payload, err := fudi.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.cfg.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	if _, err := c.conn.Write(payload); err != nil {
		return err
	}
	c.sent.Add(1)
	return nil
}

// Sent returns how many messages were written.
func (c *Conn) Sent() uint64 {
	return c.sent.Load()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
