package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/purity/internal/client"
	"github.com/danmuck/purity/internal/config"
	"github.com/danmuck/purity/internal/fudi"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRunConfigTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteTemplate(path, "purity", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := loadRunConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Client.ReceivePort != 14444 || cfg.Client.SendPort != 15555 {
		t.Fatalf("unexpected ports: %d/%d", cfg.Client.ReceivePort, cfg.Client.SendPort)
	}
	if cfg.Client.HandshakeTimeout != 30*time.Second {
		t.Fatalf("unexpected handshake timeout: %v", cfg.Client.HandshakeTimeout)
	}
	if !cfg.Launch || cfg.Engine.Binary != "pd" || cfg.Engine.Patch != "patches/purity.pd" {
		t.Fatalf("unexpected engine: launch=%v %+v", cfg.Launch, cfg.Engine)
	}
	if cfg.Engine.StartupDelay != time.Second || cfg.Engine.StartupTimeout != 10*time.Second {
		t.Fatalf("unexpected startup timing: %v %v", cfg.Engine.StartupDelay, cfg.Engine.StartupTimeout)
	}
	if cfg.AdminEnabled {
		t.Fatalf("expected admin disabled")
	}
	if cfg.LogLevel != "info" || cfg.LogTimestamp == nil || *cfg.LogTimestamp {
		t.Fatalf("unexpected log settings: %q %v", cfg.LogLevel, cfg.LogTimestamp)
	}
}

func TestLoadRunConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, `
[client]
send_port = 16000
transport = "udp"
quit_after_send = true
`)
	cfg, err := loadRunConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := client.DefaultConfig()
	if cfg.Client.ReceivePort != def.ReceivePort {
		t.Fatalf("receive port overwritten: %d", cfg.Client.ReceivePort)
	}
	if cfg.Client.SendPort != 16000 {
		t.Fatalf("unexpected send port: %d", cfg.Client.SendPort)
	}
	if cfg.Client.Transport != fudi.TransportDatagram {
		t.Fatalf("unexpected transport: %q", cfg.Client.Transport)
	}
	if !cfg.Client.QuitAfterSend {
		t.Fatalf("expected quit_after_send")
	}
	if cfg.Client.QuitGrace != def.QuitGrace {
		t.Fatalf("quit grace overwritten: %v", cfg.Client.QuitGrace)
	}
	if !cfg.Engine.NoGUI {
		t.Fatalf("expected nogui default")
	}
	if cfg.LogTimestamp != nil {
		t.Fatalf("expected log timestamp unset")
	}
}

func TestLoadRunConfigRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
[client]
engine_pid = 10

[engine]
launch = true
patch = "a.pd"
`)
	if _, err := loadRunConfig(path); err == nil {
		t.Fatalf("expected launch/pid conflict")
	}
}

func TestApplyFlagsOverridesOnlySetFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opts := options{}
	fs.IntVar(&opts.send, "send-port", client.DefaultSendPort, "")
	fs.IntVar(&opts.receive, "receive-port", client.DefaultReceivePort, "")
	fs.StringVar(&opts.adminAddr, "admin", "", "")
	if err := fs.Parse([]string{"-send-port", "17000", "-admin", "127.0.0.1:7999"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg := defaultRunConfig()
	cfg.Client.ReceivePort = 20000
	if err := applyFlags(fs, opts, &cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Client.SendPort != 17000 {
		t.Fatalf("send port=%d", cfg.Client.SendPort)
	}
	if cfg.Client.ReceivePort != 20000 {
		t.Fatalf("unset flag overrode receive port: %d", cfg.Client.ReceivePort)
	}
	if !cfg.AdminEnabled || cfg.Admin.Addr != "127.0.0.1:7999" {
		t.Fatalf("admin not applied: %v %q", cfg.AdminEnabled, cfg.Admin.Addr)
	}
}

func TestApplyFlagsLaunchNeedsPatch(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opts := options{}
	fs.BoolVar(&opts.launch, "launch", false, "")
	if err := fs.Parse([]string{"-launch"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := defaultRunConfig()
	if err := applyFlags(fs, opts, &cfg); err == nil {
		t.Fatalf("expected missing patch error")
	}
}

func TestLoadRunConfigExampleFile(t *testing.T) {
	cfg, err := loadRunConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if cfg.Launch {
		t.Fatalf("example attaches to a running engine")
	}
	if !cfg.Client.Verbose {
		t.Fatalf("expected verbose example")
	}
	if cfg.Client.QuitGrace != 500*time.Millisecond {
		t.Fatalf("unexpected quit grace: %v", cfg.Client.QuitGrace)
	}
	if len(cfg.Admin.CorsOrigins) != 1 || cfg.Admin.CorsOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %v", cfg.Admin.CorsOrigins)
	}
}

func TestLoadRunConfigValidatesWithRuntimeDefaults(t *testing.T) {
	cfg, err := loadRunConfig(writeConfig(t, `
[client]
receive_port = 0

[engine]
launch = true
patch = "a.pd"
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Client.ReceivePort != 0 {
		t.Fatalf("explicit ephemeral receive port replaced: %d", cfg.Client.ReceivePort)
	}
	if cfg.Client.SendPort != client.DefaultSendPort {
		t.Fatalf("send port=%d want default", cfg.Client.SendPort)
	}
	if cfg.Engine.Binary != "" {
		t.Fatalf("binary should stay unset for the manager default: %q", cfg.Engine.Binary)
	}

	if _, err := loadRunConfig(writeConfig(t, "[client]\nsend_port = 0\n")); err == nil {
		t.Fatalf("expected explicit send_port = 0 to be rejected")
	}
	if _, err := loadRunConfig(writeConfig(t, "[admin]\nenabled = true\naddr = \" \"\n")); err == nil {
		t.Fatalf("expected blank admin addr to be rejected")
	}
}
