package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/danmuck/purity/internal/async"
	"github.com/danmuck/purity/internal/engine"
	"github.com/danmuck/purity/internal/fudi"
	"github.com/danmuck/purity/internal/observability"
	"github.com/danmuck/purity/internal/receiver"
	"github.com/danmuck/purity/internal/sender"
)

// Create runs the whole handshake: it starts the receiver, launches the
// engine through manager, waits for both readiness signals, then connects
// the sender. manager may be nil when the engine is started elsewhere.
//
// Any failure is terminal and returned here; the listener is closed and an
// engine launched by this call is terminated.
func Create(ctx context.Context, cfg Config, manager engine.Manager) (*Client, error) {
	start := time.Now()
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	c.log.Info().
		Int("receive_port", c.cfg.ReceivePort).
		Int("send_port", c.cfg.SendPort).
		Str("transport", string(c.cfg.Transport)).
		Msg("creating session")

	ready, err := c.StartReceiver(ctx)
	if err != nil {
		observability.RecordHandshake("receiver_failed", time.Since(start))
		return nil, err
	}

	ops := []async.Op[*engine.Handle]{
		func(ctx context.Context) (*engine.Handle, error) {
			if _, err := ready.Wait(ctx); err != nil {
				return nil, fmt.Errorf("client: waiting for %s: %w", SelectorFirstConnected, err)
			}
			return nil, nil
		},
	}
	// launched holds a handle until Create or the launch op claims it, so a
	// failed join terminates the engine exactly once.
	var launched atomic.Pointer[engine.Handle]
	if manager != nil {
		ops = append(ops, func(ctx context.Context) (*engine.Handle, error) {
			h, err := manager.Launch(ctx)
			if err != nil {
				return nil, err
			}
			launched.Store(h)
			if ctx.Err() != nil && launched.CompareAndSwap(h, nil) {
				c.log.Warn().Int("pid", h.PID).Msg("engine became ready after handshake failed")
				_, _ = manager.Terminate(context.Background(), h)
				return nil, ctx.Err()
			}
			return h, nil
		})
	}

	joinCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		joinCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}
	if _, err := async.All(joinCtx, ops...); err != nil {
		c.fail(err)
		c.teardown()
		if h := launched.Swap(nil); h != nil {
			c.log.Warn().Int("pid", h.PID).Msg("terminating engine after failed handshake")
			c.terminate(manager, h)
		}
		observability.RecordHandshake("join_failed", time.Since(start))
		return nil, err
	}
	if manager != nil {
		c.mu.Lock()
		c.handle = launched.Load()
		c.manager = manager
		c.mu.Unlock()
	}
	c.log.Info().Msg("engine and receiver are both ready")

	if _, err := c.StartSender(ctx); err != nil {
		c.teardown()
		c.terminateLaunched()
		observability.RecordHandshake("sender_failed", time.Since(start))
		return nil, err
	}
	observability.RecordHandshake("ready", time.Since(start))
	c.log.Info().Dur("elapsed", time.Since(start)).Msg("session ready")
	return c, nil
}

// StartReceiver registers the built-in control selectors, then starts
// listening. The returned future resolves on the first __first_connected__
// message, not when the socket opens.
func (c *Client) StartReceiver(ctx context.Context) (*async.Future[*receiver.Server], error) {
	if err := c.transition(StateReceiverStarting, StateInit); err != nil {
		return nil, err
	}

	reg := receiver.NewRegistry()
	builtins := map[string]receiver.Handler{
		SelectorPong:           c.onPong,
		SelectorPing:           c.onPing,
		SelectorConfirm:        c.onConfirm,
		SelectorFirstConnected: c.onFirstConnected,
		SelectorConnected:      c.onConnected,
	}
	for sel, h := range builtins {
		if _, err := reg.Register(sel, h); err != nil {
			c.fail(err)
			return nil, err
		}
	}

	recv := receiver.NewServer(receiver.Config{
		Transport: c.cfg.Transport,
		Addr:      net.JoinHostPort("", strconv.Itoa(c.cfg.ReceivePort)),
		Verbose:   c.cfg.Verbose,
		Logger:    c.log,
	}, reg)
	c.mu.Lock()
	c.recv = recv
	c.mu.Unlock()

	if err := recv.Listen(ctx); err != nil {
		err = fmt.Errorf("client: listen on %d: %w", c.cfg.ReceivePort, err)
		c.fail(err)
		return nil, err
	}
	if err := c.transition(StateAwaitingBothReady, StateReceiverStarting); err != nil {
		_ = recv.Close()
		return nil, err
	}
	return c.receiverReady, nil
}

// StartSender connects to the engine's listening port. It requires the
// receiver to be ready; a failed connection is terminal.
func (c *Client) StartSender(ctx context.Context) (*sender.Conn, error) {
	if !c.receiverReady.Settled() {
		return nil, fmt.Errorf("%w: %s not received", ErrLifecycleOrder, SelectorFirstConnected)
	}
	if err := c.transition(StateSenderStarting, StateAwaitingBothReady); err != nil {
		return nil, err
	}

	dialCfg := c.dialConfig()
	c.diag().Str("addr", dialCfg.Address()).Msg("starting sender")
	conn, err := sender.Dial(ctx, dialCfg)
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrConnect, dialCfg.Address(), err)
		c.fail(err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transitionLocked(StateReady, StateSenderStarting); err != nil {
		// Quit won the race while dialing.
		_ = conn.Close()
		return nil, err
	}
	c.sendMu.Lock()
	c.conn = conn
	c.sendMu.Unlock()
	return conn, nil
}

func (c *Client) dialConfig() sender.Config {
	return sender.Config{
		Transport:      c.cfg.Transport,
		Host:           c.cfg.Host,
		Port:           c.cfg.SendPort,
		ConnectTimeout: c.cfg.ConnectTimeout,
		WriteTimeout:   c.cfg.WriteTimeout,
		Logger:         c.log,
	}
}

// RegisterHandler installs h for selector, replacing any previous handler.
// The receiver must be started first.
func (c *Client) RegisterHandler(selector string, h Handler) error {
	if selector == SelectorFirstConnected {
		return fmt.Errorf("%w: %s", ErrReservedSelector, selector)
	}
	c.mu.Lock()
	state, recv := c.state, c.recv
	c.mu.Unlock()
	if state == StateClosed {
		return ErrClosed
	}
	if recv == nil {
		return ErrReceiverNotStarted
	}
	replaced, err := recv.Registry().Register(selector, h)
	if err != nil {
		return err
	}
	if replaced {
		c.log.Debug().Str("selector", selector).Msg("handler replaced")
	}
	return nil
}

func (c *Client) onPong(peer receiver.Peer, args []fudi.Atom) {
	c.log.Info().Str("peer", peer.String()).Str("args", atomsString(args)).Msg("received " + SelectorPong)
}

func (c *Client) onPing(peer receiver.Peer, args []fudi.Atom) {
	c.diag().Str("peer", peer.String()).Str("args", atomsString(args)).Msg("received " + SelectorPing)
}

func (c *Client) onConfirm(peer receiver.Peer, args []fudi.Atom) {
	c.diag().Str("peer", peer.String()).Str("args", atomsString(args)).Msg("received " + SelectorConfirm)
}

func (c *Client) onConnected(peer receiver.Peer, args []fudi.Atom) {
	c.diag().Str("peer", peer.String()).Str("args", atomsString(args)).Msg("received " + SelectorConnected)
}

// onFirstConnected resolves receiver readiness once; repeats are logged.
func (c *Client) onFirstConnected(peer receiver.Peer, args []fudi.Atom) {
	c.mu.Lock()
	recv := c.recv
	c.mu.Unlock()
	if !c.receiverReady.Resolve(recv) {
		c.log.Warn().Str("peer", peer.String()).Msg("duplicate " + SelectorFirstConnected + " ignored")
		return
	}
	c.diag().Str("peer", peer.String()).Str("args", atomsString(args)).Msg("received " + SelectorFirstConnected)
}

// teardown closes the receiver and any outbound connection.
func (c *Client) teardown() {
	c.mu.Lock()
	recv := c.recv
	c.mu.Unlock()
	if recv != nil {
		if err := recv.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.log.Warn().Err(err).Msg("receiver close failed")
		}
	}
	c.sendMu.Lock()
	conn := c.conn
	c.conn = nil
	c.sendMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) terminateLaunched() {
	c.mu.Lock()
	h, m := c.handle, c.manager
	c.mu.Unlock()
	if h == nil || m == nil {
		return
	}
	c.terminate(m, h)
}

func (c *Client) terminate(m engine.Manager, h *engine.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout+time.Second)
	defer cancel()
	if _, err := m.Terminate(ctx, h); err != nil {
		c.log.Warn().Int("pid", h.PID).Err(err).Msg("engine terminate failed")
	}
}

func atomsString(args []fudi.Atom) string {
	if len(args) == 0 {
		return ""
	}
	out := make([]byte, 0, 8*len(args))
	for i, a := range args {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, a.String()...)
	}
	return string(out)
}
