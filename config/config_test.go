package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Node.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", cfg.Node.Port)
	}
	if cfg.Ledger.GenesisSupply != 1000.0 {
		t.Fatalf("expected default genesis supply 1000, got %v", cfg.Ledger.GenesisSupply)
	}
	if cfg.Overlay.DiscoveryInterval != 30*time.Second {
		t.Fatalf("expected default discovery interval 30s, got %v", cfg.Overlay.DiscoveryInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
}

func TestLoadOverridesOnlySpecifiedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	yaml := `
node:
  port: 9001
ledger:
  fee: 0.05
overlay:
  bootstrap_peers:
    - "10.0.0.1:8000"
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Node.Port != 9001 {
		t.Fatalf("expected overridden port 9001, got %d", cfg.Node.Port)
	}
	if cfg.Ledger.Fee != 0.05 {
		t.Fatalf("expected overridden fee 0.05, got %v", cfg.Ledger.Fee)
	}
	if len(cfg.Overlay.BootstrapPeers) != 1 || cfg.Overlay.BootstrapPeers[0] != "10.0.0.1:8000" {
		t.Fatalf("unexpected bootstrap peers: %v", cfg.Overlay.BootstrapPeers)
	}
	// Fields the file never mentioned must keep their Default() values.
	if cfg.Ledger.GenesisSupply != 1000.0 {
		t.Fatalf("expected genesis supply to keep its default, got %v", cfg.Ledger.GenesisSupply)
	}
	if cfg.Node.ListenAddress != "0.0.0.0" {
		t.Fatalf("expected listen address to keep its default, got %q", cfg.Node.ListenAddress)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error loading a nonexistent config file")
	}
}
