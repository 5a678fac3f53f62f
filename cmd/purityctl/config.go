package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/purity/internal/admin"
	"github.com/danmuck/purity/internal/client"
	"github.com/danmuck/purity/internal/config"
	"github.com/danmuck/purity/internal/engine"
	"github.com/danmuck/purity/internal/fudi"
)

// runConfig is everything purityctl needs for one session.
type runConfig struct {
	Client       client.Config
	Launch       bool
	Engine       engine.PdConfig
	AdminEnabled bool
	Admin        admin.Config
	LogLevel     string
	LogTimestamp *bool
	LogNoColor   *bool
}

func defaultRunConfig() runConfig {
	return runConfig{
		Client: client.DefaultConfig(),
		Engine: engine.PdConfig{NoGUI: true},
		Admin:  admin.Config{Addr: "127.0.0.1:7020"},
	}
}

// purityctl config.toml key mapping; same layout as internal/config.
type fileConfig struct {
	Client config.ClientSection `toml:"client"`
	Engine config.EngineSection `toml:"engine"`
	Admin  config.AdminSection  `toml:"admin"`
	Log    config.LogSection    `toml:"log"`
}

// loadRunConfig overlays only the keys path defines onto the runtime
// defaults. The file is validated with those defaults filled in.
func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runConfig{}, fmt.Errorf("load purity config: %w", err)
	}
	if err := config.ValidatePurityConfig(effectiveFile(meta, raw, cfg)); err != nil {
		return runConfig{}, fmt.Errorf("load purity config: %w", err)
	}

	c := &cfg.Client
	if meta.IsDefined("client", "receive_port") {
		c.ReceivePort = raw.Client.ReceivePort
	}
	if meta.IsDefined("client", "send_port") {
		c.SendPort = raw.Client.SendPort
	}
	if meta.IsDefined("client", "host") {
		c.Host = strings.TrimSpace(raw.Client.Host)
	}
	if meta.IsDefined("client", "transport") {
		t, err := fudi.ParseTransport(raw.Client.Transport)
		if err != nil {
			return runConfig{}, fmt.Errorf("load purity config: %w", err)
		}
		c.Transport = t
	}
	if meta.IsDefined("client", "quit_after_send") {
		c.QuitAfterSend = raw.Client.QuitAfterSend
	}
	if meta.IsDefined("client", "engine_pid") {
		c.EnginePID = raw.Client.EnginePID
	}
	if meta.IsDefined("client", "verbose") {
		c.Verbose = raw.Client.Verbose
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"quit_grace", raw.Client.QuitGrace, &c.QuitGrace},
		{"connect_timeout", raw.Client.ConnectTimeout, &c.ConnectTimeout},
		{"handshake_timeout", raw.Client.HandshakeTimeout, &c.HandshakeTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined("client", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse client.%s: %w", d.key, err)
		}
		*d.dst = v
	}

	e := &cfg.Engine
	if meta.IsDefined("engine", "launch") {
		cfg.Launch = raw.Engine.Launch
	}
	if meta.IsDefined("engine", "binary") {
		e.Binary = strings.TrimSpace(raw.Engine.Binary)
	}
	if meta.IsDefined("engine", "patch") {
		e.Patch = strings.TrimSpace(raw.Engine.Patch)
	}
	if meta.IsDefined("engine", "args") {
		e.Args = append([]string(nil), raw.Engine.Args...)
	}
	if meta.IsDefined("engine", "nogui") {
		e.NoGUI = raw.Engine.NoGUI
	}
	if meta.IsDefined("engine", "ready_match") {
		e.ReadyMatch = raw.Engine.ReadyMatch
	}
	if meta.IsDefined("engine", "startup_delay") {
		v, err := time.ParseDuration(strings.TrimSpace(raw.Engine.StartupDelay))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse engine.startup_delay: %w", err)
		}
		e.StartupDelay = v
	}
	if meta.IsDefined("engine", "startup_timeout") {
		v, err := time.ParseDuration(strings.TrimSpace(raw.Engine.StartupTimeout))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse engine.startup_timeout: %w", err)
		}
		e.StartupTimeout = v
	}

	if meta.IsDefined("admin", "enabled") {
		cfg.AdminEnabled = raw.Admin.Enabled
	}
	if meta.IsDefined("admin", "addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = append([]string(nil), raw.Admin.CorsOrigins...)
	}
	if meta.IsDefined("admin", "token") {
		cfg.Admin.Token = strings.TrimSpace(raw.Admin.Token)
	}

	if meta.IsDefined("log", "level") {
		cfg.LogLevel = raw.Log.Level
	}
	if meta.IsDefined("log", "timestamp") {
		v := raw.Log.Timestamp
		cfg.LogTimestamp = &v
	}
	if meta.IsDefined("log", "nocolor") {
		v := raw.Log.NoColor
		cfg.LogNoColor = &v
	}
	return cfg, nil
}

// effectiveFile fills keys the file leaves out with the runtime defaults so
// validation sees what the session will actually run with.
func effectiveFile(meta toml.MetaData, raw fileConfig, def runConfig) config.PurityConfig {
	out := config.PurityConfig{
		Client: raw.Client,
		Engine: raw.Engine,
		Admin:  raw.Admin,
		Log:    raw.Log,
	}
	if !meta.IsDefined("client", "receive_port") {
		out.Client.ReceivePort = def.Client.ReceivePort
	}
	if !meta.IsDefined("client", "send_port") {
		out.Client.SendPort = def.Client.SendPort
	}
	if !meta.IsDefined("engine", "binary") {
		out.Engine.Binary = engine.DefaultBinary
	}
	if !meta.IsDefined("admin", "addr") {
		out.Admin.Addr = def.Admin.Addr
	}
	return out
}
