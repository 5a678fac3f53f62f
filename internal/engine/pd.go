package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBinary       = "pd"
	DefaultStartupDelay = time.Second
)

// PdConfig describes how to start Pure Data.
type PdConfig struct {
	Binary string
	Patch  string
	Args   []string
	NoGUI  bool
	Stderr bool
	Dir    string
	Env    []string

	// ReadyMatch, when set, marks startup complete on the first output line
	// containing it. Otherwise the process must survive StartupDelay.
	ReadyMatch     string
	StartupDelay   time.Duration
	StartupTimeout time.Duration

	Logger zerolog.Logger
}

func (c PdConfig) withDefaults() PdConfig {
	if strings.TrimSpace(c.Binary) == "" {
		c.Binary = DefaultBinary
	}
	if c.StartupDelay <= 0 {
		c.StartupDelay = DefaultStartupDelay
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 10 * time.Second
	}
	return c
}

// PdManager runs Pure Data as a child process.
type PdManager struct {
	cfg PdConfig
	log zerolog.Logger
}

func NewPdManager(cfg PdConfig) *PdManager {
	cfg = cfg.withDefaults()
	return &PdManager{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "engine").Logger(),
	}
}

// CommandLine returns the argv used to start the engine.
func (m *PdManager) CommandLine() []string {
	argv := []string{m.cfg.Binary}
	if m.cfg.NoGUI {
		argv = append(argv, "-nogui")
	}
	if m.cfg.Stderr {
		argv = append(argv, "-stderr")
	}
	argv = append(argv, m.cfg.Args...)
	if p := strings.TrimSpace(m.cfg.Patch); p != "" {
		argv = append(argv, "-open", p)
	}
	return argv
}

// Launch starts the process and returns once its startup is complete. The
// process outlives ctx; ctx only bounds the wait for readiness.
func (m *PdManager) Launch(ctx context.Context) (*Handle, error) {
	argv := m.CommandLine()
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = m.cfg.Dir
	if len(m.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), m.cfg.Env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLaunch, argv[0], err)
	}

	h := &Handle{
		PID:    cmd.Process.Pid,
		Binary: cmd.Path,
		proc:   cmd.Process,
		exited: make(chan struct{}),
	}
	m.log.Info().Int("pid", h.PID).Strs("argv", argv).Msg("engine started")

	ready := make(chan struct{}, 1)
	pumps := make(chan struct{}, 2)
	go m.pump(stdout, "stdout", ready, pumps)
	go m.pump(stderr, "stderr", ready, pumps)
	go func() {
		// Pipes must be drained before Wait.
		<-pumps
		<-pumps
		err := cmd.Wait()
		m.log.Info().Int("pid", h.PID).AnErr("wait", err).Msg("engine exited")
		h.setExit(err)
	}()

	var readyC <-chan struct{} = ready
	var delay <-chan time.Time
	if m.cfg.ReadyMatch == "" {
		readyC = nil
		timer := time.NewTimer(m.cfg.StartupDelay)
		defer timer.Stop()
		delay = timer.C
	}
	timeout := time.NewTimer(m.cfg.StartupTimeout)
	defer timeout.Stop()

	select {
	case <-readyC:
		return h, nil
	case <-delay:
		return h, nil
	case <-h.exited:
		return nil, fmt.Errorf("%w: exited during startup: %v", ErrLaunch, h.ExitErr())
	case <-timeout.C:
		_, _ = Terminate(context.Background(), h)
		return nil, fmt.Errorf("%w: %w", ErrLaunch, ErrStartupTimedOut)
	case <-ctx.Done():
		_, _ = Terminate(context.Background(), h)
		return nil, fmt.Errorf("%w: %w", ErrLaunch, ctx.Err())
	}
}

func (m *PdManager) Terminate(ctx context.Context, h *Handle) (TerminateStatus, error) {
	return Terminate(ctx, h)
}

func (m *PdManager) pump(r io.Reader, stream string, ready chan<- struct{}, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		m.log.Debug().Str("stream", stream).Msg(line)
		if m.cfg.ReadyMatch != "" && strings.Contains(line, m.cfg.ReadyMatch) {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	}
}
