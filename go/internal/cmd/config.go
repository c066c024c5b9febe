package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/turfline/derby/go/internal/race/relay"
	"github.com/turfline/derby/go/internal/race/table"
)

// Config is the full server configuration, loaded from YAML with
// environment overrides for deployment-specific values.
type Config struct {
	Table table.Config `yaml:"table"`

	Wallet struct {
		// Backend selects the balance store: memory, sqlite or postgres.
		Backend         string `yaml:"backend"`
		StartingBalance int64  `yaml:"starting_balance"`
		SQLitePath      string `yaml:"sqlite_path"`
	} `yaml:"wallet"`

	Relay struct {
		Enabled bool `yaml:"enabled"`
		relay.Config `yaml:",inline"`
	} `yaml:"relay"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Port    string `yaml:"port"`
	} `yaml:"metrics"`
}

func defaultConfig() *Config {
	cfg := &Config{Table: table.DefaultConfig()}
	cfg.Wallet.Backend = "memory"
	cfg.Wallet.StartingBalance = 10000
	cfg.Wallet.SQLitePath = "derby.db"
	cfg.Relay.Config = relay.DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = "9091"
	return cfg
}

func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
