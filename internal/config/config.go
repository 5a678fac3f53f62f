package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/purity/internal/fudi"
	"github.com/pelletier/go-toml/v2"
)

// PurityConfig is the purityctl config file.
type PurityConfig struct {
	Client ClientSection `toml:"client"`
	Engine EngineSection `toml:"engine"`
	Admin  AdminSection  `toml:"admin"`
	Log    LogSection    `toml:"log"`
}

type ClientSection struct {
	ReceivePort      int    `toml:"receive_port"`
	SendPort         int    `toml:"send_port"`
	Host             string `toml:"host"`
	Transport        string `toml:"transport"`
	QuitAfterSend    bool   `toml:"quit_after_send"`
	EnginePID        int    `toml:"engine_pid"`
	QuitGrace        string `toml:"quit_grace"`
	ConnectTimeout   string `toml:"connect_timeout"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	Verbose          bool   `toml:"verbose"`
}

type EngineSection struct {
	Launch         bool     `toml:"launch"`
	Binary         string   `toml:"binary"`
	Patch          string   `toml:"patch"`
	Args           []string `toml:"args"`
	NoGUI          bool     `toml:"nogui"`
	ReadyMatch     string   `toml:"ready_match"`
	StartupDelay   string   `toml:"startup_delay"`
	StartupTimeout string   `toml:"startup_timeout"`
}

type AdminSection struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	Token       string   `toml:"token"`
}

type LogSection struct {
	Level     string `toml:"level"`
	Timestamp bool   `toml:"timestamp"`
	NoColor   bool   `toml:"nocolor"`
}

func LoadPurityConfig(path string) (PurityConfig, error) {
	var cfg PurityConfig
	if err := loadToml(path, &cfg); err != nil {
		return PurityConfig{}, err
	}
	if cfg.Client.ReceivePort == 0 {
		cfg.Client.ReceivePort = 14444
	}
	if cfg.Client.SendPort == 0 {
		cfg.Client.SendPort = 15555
	}
	if cfg.Engine.Launch && cfg.Engine.Binary == "" {
		cfg.Engine.Binary = "pd"
	}
	if cfg.Admin.Enabled && cfg.Admin.Addr == "" {
		cfg.Admin.Addr = "127.0.0.1:7020"
	}
	if err := ValidatePurityConfig(cfg); err != nil {
		return PurityConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidatePurityConfig(cfg PurityConfig) error {
	if err := ValidateClientSection(cfg.Client); err != nil {
		return fmt.Errorf("client invalid: %w", err)
	}
	if err := ValidateEngineSection(cfg.Engine); err != nil {
		return fmt.Errorf("engine invalid: %w", err)
	}
	if cfg.Engine.Launch && cfg.Client.EnginePID > 0 {
		return fmt.Errorf("engine.launch and client.engine_pid are mutually exclusive")
	}
	if cfg.Admin.Enabled && strings.TrimSpace(cfg.Admin.Addr) == "" {
		return fmt.Errorf("admin invalid: addr is required when enabled")
	}
	return nil
}

func ValidateClientSection(c ClientSection) error {
	if c.ReceivePort < 0 || c.ReceivePort > 65535 {
		return fmt.Errorf("receive_port out of range: %d", c.ReceivePort)
	}
	if c.SendPort <= 0 || c.SendPort > 65535 {
		return fmt.Errorf("send_port out of range: %d", c.SendPort)
	}
	if _, err := fudi.ParseTransport(c.Transport); err != nil {
		return err
	}
	if c.EnginePID < 0 {
		return fmt.Errorf("engine_pid must not be negative")
	}
	return validateDurations(map[string]string{
		"quit_grace":        c.QuitGrace,
		"connect_timeout":   c.ConnectTimeout,
		"handshake_timeout": c.HandshakeTimeout,
	})
}

func ValidateEngineSection(e EngineSection) error {
	if !e.Launch {
		return nil
	}
	if strings.TrimSpace(e.Binary) == "" {
		return fmt.Errorf("binary is required when launch is set")
	}
	if strings.TrimSpace(e.Patch) == "" {
		return fmt.Errorf("patch is required when launch is set")
	}
	return validateDurations(map[string]string{
		"startup_delay":   e.StartupDelay,
		"startup_timeout": e.StartupTimeout,
	})
}

func validateDurations(fields map[string]string) error {
	for name, raw := range fields {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}
