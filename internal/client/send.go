package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/purity/internal/fudi"
	"github.com/danmuck/purity/internal/observability"
	"github.com/danmuck/purity/internal/patch"
	"github.com/danmuck/purity/internal/sender"
)

// Send builds a message from selector and args and sends it.
func (c *Client) Send(selector string, args ...any) error {
	msg, err := fudi.NewMessage(selector, args...)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

// SendMessage writes msg on the outbound connection. Without a connection
// the message is dropped, logged, and ErrNoConnection is returned.
func (c *Client) SendMessage(msg fudi.Message) error {
	if c.State() == StateClosed {
		return ErrClosed
	}

	c.sendMu.Lock()
	conn := c.conn
	var err error
	if conn == nil {
		err = ErrNoConnection
	} else {
		err = conn.Send(msg)
	}
	c.sendMu.Unlock()

	if err != nil {
		observability.RecordSend(false)
		c.log.Warn().Str("message", msg.String()).Err(err).Msg("could not send")
		if errors.Is(err, sender.ErrConnClosed) {
			return fmt.Errorf("%w: %v", ErrNoConnection, err)
		}
		return err
	}
	observability.RecordSend(true)
	c.diag().Str("message", msg.String()).Msg("sent")

	if c.cfg.QuitAfterSend {
		c.log.Info().Msg("quit after send: stopping")
		c.signalDone()
	}
	return nil
}

// CreatePatch sends every message from p in order. Individual send failures
// are collected; a closed session stops the run.
func (c *Client) CreatePatch(p patch.Producer) error {
	var errs []error
	for i, msg := range p.Messages() {
		c.diag().Int("index", i).Str("message", msg.String()).Msg("patch message")
		if err := c.SendMessage(msg); err != nil {
			if errors.Is(err, ErrClosed) {
				return err
			}
			errs = append(errs, fmt.Errorf("message[%d] %q: %w", i, msg.String(), err))
		}
	}
	return errors.Join(errs...)
}

// Reconnect replaces the outbound connection. Sends in flight finish on the
// old connection; later sends use the new one. A failed dial keeps the old
// connection and is not terminal.
func (c *Client) Reconnect(ctx context.Context) error {
	if state := c.State(); state != StateReady {
		if state == StateClosed {
			return ErrClosed
		}
		return fmt.Errorf("%w: reconnect in %s", ErrLifecycleOrder, state)
	}
	dialCfg := c.dialConfig()
	next, err := sender.Dial(ctx, dialCfg)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnect, dialCfg.Address(), err)
	}

	c.sendMu.Lock()
	prev := c.conn
	c.conn = next
	c.sendMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	c.log.Info().Str("addr", dialCfg.Address()).Msg("sender reconnected")
	return nil
}
