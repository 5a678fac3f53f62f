package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/purity/internal/admin"
	"github.com/danmuck/purity/internal/client"
	"github.com/danmuck/purity/internal/engine"
	"github.com/danmuck/purity/internal/fudi"
	"github.com/danmuck/purity/internal/logging"
	"github.com/danmuck/purity/internal/patch"
	"github.com/rs/zerolog/log"
)

type options struct {
	configPath string
	messages   string
	quitAfter  bool
	launch     bool
	binary     string
	pdPatch    string
	pid        int
	receive    int
	send       int
	transport  string
	verbose    bool
	adminAddr  string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "purityctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("purityctl", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "path to a purity config.toml")
	fs.StringVar(&opts.messages, "messages", "", "FUDI file whose messages are sent once ready")
	fs.BoolVar(&opts.quitAfter, "quit-after-send", false, "quit after the first successful send")
	fs.BoolVar(&opts.launch, "launch", false, "launch pd instead of waiting for a running engine")
	fs.StringVar(&opts.binary, "pd", engine.DefaultBinary, "pd binary used with -launch")
	fs.StringVar(&opts.pdPatch, "open", "", "pd patch opened with -launch")
	fs.IntVar(&opts.pid, "pid", 0, "pid of an engine started elsewhere, killed on quit")
	fs.IntVar(&opts.receive, "receive-port", client.DefaultReceivePort, "inbound FUDI port")
	fs.IntVar(&opts.send, "send-port", client.DefaultSendPort, "engine's FUDI port")
	fs.StringVar(&opts.transport, "transport", string(fudi.TransportStream), "stream or datagram")
	fs.BoolVar(&opts.verbose, "verbose", false, "log every protocol message at info")
	fs.StringVar(&opts.adminAddr, "admin", "", "serve the admin HTTP surface on this address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := defaultRunConfig()
	if opts.configPath != "" {
		loaded, err := loadRunConfig(opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := applyFlags(fs, opts, &cfg); err != nil {
		return err
	}

	logging.ConfigureWith(logging.ProfileRuntime, func(lc *logging.Config) {
		if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
			lc.Level = lvl
		}
		if cfg.LogTimestamp != nil {
			lc.Timestamp = *cfg.LogTimestamp
		}
		if cfg.LogNoColor != nil {
			lc.NoColor = *cfg.LogNoColor
		}
	})
	cfg.Client.Logger = log.Logger
	cfg.Engine.Logger = log.Logger
	cfg.Admin.Logger = log.Logger

	// Messages are read before the engine starts so a bad file costs nothing.
	var toSend []fudi.Message
	if opts.messages != "" {
		seq, err := patch.ReadFile(opts.messages)
		if err != nil {
			return err
		}
		toSend = append(toSend, seq.Messages()...)
	}
	for _, text := range fs.Args() {
		msgs, err := fudi.DecodeDatagram([]byte(text))
		if err != nil {
			return fmt.Errorf("message %q: %w", text, err)
		}
		toSend = append(toSend, msgs...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var manager engine.Manager
	if cfg.Launch {
		manager = engine.NewPdManager(cfg.Engine)
	}
	c, err := client.Create(ctx, cfg.Client, manager)
	if err != nil {
		return err
	}

	adminCtx, stopAdmin := context.WithCancel(ctx)
	defer stopAdmin()
	if cfg.AdminEnabled {
		srv := admin.New(cfg.Admin, c)
		go func() {
			if err := srv.Serve(adminCtx); err != nil {
				log.Error().Err(err).Msg("admin server stopped")
			}
		}()
	}

	if len(toSend) > 0 {
		if err := c.CreatePatch(patch.Sequence(toSend)); err != nil {
			log.Warn().Err(err).Msg("some messages were not sent")
		}
	}

	select {
	case <-c.Done():
	case <-ctx.Done():
		log.Info().Msg("interrupted")
	}

	quitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := c.Quit(quitCtx)
	if err != nil && !errors.Is(err, client.ErrClosed) {
		return err
	}
	if status != "" {
		log.Info().Str("engine", status).Msg("done")
	}
	return nil
}

// applyFlags overrides cfg with flags set on the command line only.
func applyFlags(fs *flag.FlagSet, opts options, cfg *runConfig) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "quit-after-send":
			cfg.Client.QuitAfterSend = opts.quitAfter
		case "launch":
			cfg.Launch = opts.launch
		case "pd":
			cfg.Engine.Binary = opts.binary
		case "open":
			cfg.Engine.Patch = opts.pdPatch
		case "pid":
			cfg.Client.EnginePID = opts.pid
		case "receive-port":
			cfg.Client.ReceivePort = opts.receive
		case "send-port":
			cfg.Client.SendPort = opts.send
		case "transport":
			t, perr := fudi.ParseTransport(opts.transport)
			if perr != nil {
				err = perr
				return
			}
			cfg.Client.Transport = t
		case "verbose":
			cfg.Client.Verbose = opts.verbose
		case "admin":
			cfg.AdminEnabled = strings.TrimSpace(opts.adminAddr) != ""
			cfg.Admin.Addr = opts.adminAddr
		}
	})
	if err != nil {
		return err
	}
	if cfg.Launch && cfg.Client.EnginePID > 0 {
		return fmt.Errorf("-launch and -pid are mutually exclusive")
	}
	if cfg.Launch && strings.TrimSpace(cfg.Engine.Patch) == "" {
		return fmt.Errorf("-launch requires a patch (-open or engine.patch)")
	}
	return nil
}
