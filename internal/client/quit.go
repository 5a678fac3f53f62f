package client

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/purity/internal/engine"
	"github.com/danmuck/purity/internal/fudi"
)

var quitMessage = fudi.MustMessage("pd", "quit")

// Quit asks the engine to quit, then, if a process is known, kills it after
// QuitGrace. It returns "terminated forcibly" when the kill landed and
// "exited on its own" when there was nothing left to kill.
func (c *Client) Quit(ctx context.Context) (string, error) {
	if err := c.transition(StateShuttingDown,
		StateInit,
		StateReceiverStarting,
		StateAwaitingBothReady,
		StateSenderStarting,
		StateReady,
		StateError,
	); err != nil {
		return "", err
	}

	if err := c.SendMessage(quitMessage); err != nil && !errors.Is(err, ErrNoConnection) {
		c.log.Warn().Err(err).Msg("quit message failed")
	}

	status, err := c.terminateEngine(ctx)
	c.teardown()

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	c.signalDone()

	if err != nil {
		c.log.Error().Err(err).Msg("engine terminate failed")
		return "", err
	}
	c.log.Info().Str("status", string(status)).Msg("session closed")
	return string(status), nil
}

func (c *Client) terminateEngine(ctx context.Context) (engine.TerminateStatus, error) {
	c.mu.Lock()
	h, m := c.handle, c.manager
	c.mu.Unlock()

	if h == nil && c.cfg.EnginePID > 0 {
		attached, err := engine.Attach(c.cfg.EnginePID)
		if err != nil {
			return "", err
		}
		h = attached
	}
	if h == nil {
		return engine.StatusExited, nil
	}

	timer := time.NewTimer(c.cfg.QuitGrace)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		c.log.Warn().Err(ctx.Err()).Msg("quit grace period cut short")
	}

	if m != nil {
		return m.Terminate(ctx, h)
	}
	return engine.Terminate(ctx, h)
}
