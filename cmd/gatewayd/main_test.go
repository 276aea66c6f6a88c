package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/haasonsaas/gateway/internal/config"
)

func TestResolveConfigPathPrefersExplicitFlag(t *testing.T) {
	t.Setenv("GATEWAYD_CONFIG", "from-env.yaml")
	if got := resolveConfigPath("from-flag.yaml"); got != "from-flag.yaml" {
		t.Fatalf("resolveConfigPath = %q, want from-flag.yaml", got)
	}
}

func TestResolveConfigPathFallsBackToEnv(t *testing.T) {
	t.Setenv("GATEWAYD_CONFIG", "from-env.yaml")
	if got := resolveConfigPath(""); got != "from-env.yaml" {
		t.Fatalf("resolveConfigPath = %q, want from-env.yaml", got)
	}
}

func TestResolveConfigPathDefaultsWhenUnset(t *testing.T) {
	t.Setenv("GATEWAYD_CONFIG", "")
	if got := resolveConfigPath(""); got != "gatewayd.yaml" {
		t.Fatalf("resolveConfigPath = %q, want gatewayd.yaml", got)
	}
}

func TestNewSlogHandlerJSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	h := newSlogHandler(config.ObservabilityConfig{}, &buf)
	slog.New(h).Info("hello")
	if buf.Len() == 0 || buf.Bytes()[0] != '{' {
		t.Fatalf("expected JSON-formatted output by default, got %q", buf.String())
	}
}

func TestNewSlogHandlerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	h := newSlogHandler(config.ObservabilityConfig{LogFormat: "text"}, &buf)
	slog.New(h).Info("hello")
	if buf.Len() == 0 || buf.Bytes()[0] == '{' {
		t.Fatalf("expected text-formatted output, got %q", buf.String())
	}
}

func TestNewSlogHandlerRespectsDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	h := newSlogHandler(config.ObservabilityConfig{LogLevel: "warn"}, &buf)
	logger := slog.New(h)
	logger.Info("should be filtered out")
	if buf.Len() != 0 {
		t.Fatalf("expected info logs to be filtered at warn level, got %q", buf.String())
	}
	logger.Warn("should appear")
	if buf.Len() == 0 {
		t.Fatal("expected warn-level logs to appear")
	}
}

func TestBuildRootCmdRegistersSubcommands(t *testing.T) {
	root := buildRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	if !names["serve"] || !names["validate-config"] {
		t.Fatalf("expected serve and validate-config subcommands, got %+v", names)
	}
}

func TestBuildValidateConfigCmdReportsLoadError(t *testing.T) {
	cmd := buildValidateConfigCmd()
	cmd.SetArgs([]string{"--config", "/nonexistent/path/gatewayd.yaml"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
