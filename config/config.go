// Package config loads a node's YAML configuration file, the way
// cmd/cli/devnet.go reads a testnet config with gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of a node's configuration file.
type Config struct {
	Node struct {
		ListenAddress string `yaml:"listen_address"`
		Port          int    `yaml:"port"`
	} `yaml:"node"`

	Ledger struct {
		GenesisSupply      float64 `yaml:"genesis_supply"`
		Fee                float64 `yaml:"fee"`
		TargetBlockSeconds int64   `yaml:"target_block_seconds"`
		AdjustmentInterval int     `yaml:"adjustment_interval"`
	} `yaml:"ledger"`

	Overlay struct {
		BootstrapPeers    []string      `yaml:"bootstrap_peers"`
		DiscoveryInterval time.Duration `yaml:"discovery_interval"`
		ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	} `yaml:"overlay"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Default returns the configuration used when no file is supplied: genesis
// supply and fee match core's own package defaults, no bootstrap peers (a
// node started from Default dials nobody until a file lists some), and
// info-level logging.
func Default() Config {
	var cfg Config
	cfg.Node.ListenAddress = "0.0.0.0"
	cfg.Node.Port = 8000
	cfg.Ledger.GenesisSupply = 1000.0
	cfg.Ledger.Fee = 0.001
	cfg.Ledger.TargetBlockSeconds = 10
	cfg.Ledger.AdjustmentInterval = 5
	cfg.Overlay.DiscoveryInterval = 30 * time.Second
	cfg.Overlay.ConnectionTimeout = 10 * time.Second
	cfg.Logging.Level = "info"
	return cfg
}

// Load reads and parses the YAML file at path, filling any field the file
// omits from Default().
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
