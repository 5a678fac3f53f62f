package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"DEBUG":    zerolog.DebugLevel,
		" warn ":   zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"off":      zerolog.Disabled,
		"inactive": zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q)=%v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogBypass, "1")
	t.Setenv(EnvLogTimestamp, "nope")

	cfg := defaultConfig(ProfileTest)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.WarnLevel || !cfg.NoColor || !cfg.Bypass {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Timestamp {
		t.Fatalf("invalid bool should leave timestamp at profile default")
	}
}

func TestNewBypassWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: zerolog.InfoLevel, Bypass: true, Out: &buf})
	logger.Debug().Msg("hidden")
	logger.Info().Str("selector", "__ping__").Msg("received")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
	if !strings.Contains(out, `"selector":"__ping__"`) {
		t.Fatalf("expected json field, got %q", out)
	}
}
