package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Broadcast.Backend != "memory" {
		t.Errorf("Backend = %q, want memory", cfg.Broadcast.Backend)
	}
	if cfg.Expiry.TickSec != 1 {
		t.Errorf("TickSec = %d, want 1", cfg.Expiry.TickSec)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
server:
  addr: ":9090"
broadcast:
  backend: "nats"
  nats:
    url: "nats://file-host:4222"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("NATS_URL", "nats://env-host:4222")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090 from file", cfg.Server.Addr)
	}
	if cfg.Broadcast.Backend != "nats" {
		t.Errorf("Backend = %q, want nats from file", cfg.Broadcast.Backend)
	}
	if cfg.Broadcast.NATS.URL != "nats://env-host:4222" {
		t.Errorf("NATS URL = %q, environment must win over the file", cfg.Broadcast.NATS.URL)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not: a map"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load must fail on malformed YAML")
	}
}
