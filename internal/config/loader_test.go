package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Bridge.UIResultTimeout != 30*time.Second {
		t.Errorf("ui_result_timeout = %v, want 30s", cfg.Bridge.UIResultTimeout)
	}
	if cfg.Remote.MaxAttempts != 4 {
		t.Errorf("max_attempts = %d, want 4", cfg.Remote.MaxAttempts)
	}
	if cfg.Stream.BufferSize != 256 {
		t.Errorf("buffer_size = %d, want 256", cfg.Stream.BufferSize)
	}
}

func TestLoadFrom_YAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harmonium.yaml")
	yaml := `
server:
  port: "9090"
breaker:
  max_failures: 3
remote:
  max_attempts: 2
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Breaker.MaxFailures != 3 {
		t.Errorf("max_failures = %d, want 3", cfg.Breaker.MaxFailures)
	}
	if cfg.Remote.MaxAttempts != 2 {
		t.Errorf("max_attempts = %d, want 2", cfg.Remote.MaxAttempts)
	}
	// Untouched sections keep their defaults.
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("nats url = %q, want default", cfg.NATS.URL)
	}
}

func TestLoadFrom_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harmonium.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	t.Setenv("HARMONIUM_PORT", "7070")
	t.Setenv("HARMONIUM_BRIDGE_UI_TIMEOUT", "5s")
	t.Setenv("HARMONIUM_MCP_ENABLED", "true")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("port = %q, want env value 7070", cfg.Server.Port)
	}
	if cfg.Bridge.UIResultTimeout != 5*time.Second {
		t.Errorf("ui_result_timeout = %v, want 5s", cfg.Bridge.UIResultTimeout)
	}
	if !cfg.MCP.Enabled {
		t.Error("mcp.enabled = false, want true")
	}
}

func TestLoadFrom_ValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harmonium.yaml")
	if err := os.WriteFile(path, []byte("stream:\n  buffer_size: 0\n"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected validation error for buffer_size 0, got nil")
	}
}

func TestLoadFrom_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harmonium.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected parse error, got nil")
	}
}
