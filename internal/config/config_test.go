package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/purity/internal/patch"
	"github.com/danmuck/purity/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestPurityTemplateLoads(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteTemplate(path, "purity", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := LoadPurityConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Client.ReceivePort != 14444 || cfg.Client.SendPort != 15555 {
		t.Fatalf("unexpected ports: %+v", cfg.Client)
	}
	if !cfg.Engine.Launch || cfg.Engine.Binary != "pd" || !cfg.Engine.NoGUI {
		t.Fatalf("unexpected engine: %+v", cfg.Engine)
	}
	if cfg.Admin.Enabled {
		t.Fatalf("admin should be disabled in template")
	}
}

func TestPatchTemplateParses(t *testing.T) {
	testlog.Start(t)
	body, err := Template("patch")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	seq, err := patch.Read(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(seq) != 7 {
		t.Fatalf("messages=%d want 7", len(seq))
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "x = 1\n")
	if err := WriteTemplate(path, "purity", false); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
	if err := WriteTemplate(path, "purity", true); err != nil {
		t.Fatalf("forced write: %v", err)
	}
	if _, err := Template("mirage"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestLoadPurityConfigDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "[engine]\nlaunch = true\npatch = \"a.pd\"\n\n[admin]\nenabled = true\n")
	cfg, err := LoadPurityConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Client.ReceivePort != 14444 || cfg.Client.SendPort != 15555 {
		t.Fatalf("default ports not applied: %+v", cfg.Client)
	}
	if cfg.Engine.Binary != "pd" {
		t.Fatalf("default binary not applied: %q", cfg.Engine.Binary)
	}
	if cfg.Admin.Addr != "127.0.0.1:7020" {
		t.Fatalf("default admin addr not applied: %q", cfg.Admin.Addr)
	}
}

func TestValidatePurityConfigRejects(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"bad transport":   "[client]\ntransport = \"smoke\"\n",
		"bad port":        "[client]\nsend_port = 700000\n",
		"bad duration":    "[client]\nquit_grace = \"soon\"\n",
		"launch no patch": "[engine]\nlaunch = true\n",
		"launch and pid":  "[client]\nengine_pid = 12\n\n[engine]\nlaunch = true\npatch = \"a.pd\"\n",
	}
	for name, body := range cases {
		if _, err := LoadPurityConfig(writeFile(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadPurityConfigMissingFile(t *testing.T) {
	testlog.Start(t)
	_, err := LoadPurityConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "config load failed") {
		t.Fatalf("expected load failure, got %v", err)
	}
}
