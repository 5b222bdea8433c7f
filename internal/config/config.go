// Package config loads ipcctl configuration from an optional TOML file and
// IPCCTL_* environment variables. Environment variables win over the file.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "IPCCTL"

// Config holds all ipcctl configuration.
type Config struct {
	Logging LogConfig     `toml:"logging" envconfig:"LOG"`
	IPC     IPCConfig     `toml:"ipc" envconfig:"IPC"`
	Metrics MetricsConfig `toml:"metrics" envconfig:"METRICS"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level" envconfig:"LEVEL"`
	Development bool   `toml:"development" envconfig:"DEV"`
}

// IPCConfig holds defaults for the IPC subcommands.
type IPCConfig struct {
	// Perm is the permission mask for created objects.
	Perm uint32 `toml:"perm" envconfig:"PERM"`

	// KeyPath and ProjectID derive the key when a subcommand gets no -key.
	KeyPath   string `toml:"key_path" envconfig:"KEY_PATH"`
	ProjectID int    `toml:"project_id" envconfig:"PROJECT_ID"`
}

// MetricsConfig holds the Prometheus listener configuration.
type MetricsConfig struct {
	// Addr, when set, serves /metrics while a command runs.
	Addr string `toml:"addr" envconfig:"ADDR"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Logging: LogConfig{
			Level: "info",
		},
		IPC: IPCConfig{
			Perm:      0o600,
			ProjectID: 1,
		},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.IPC.Perm > 0o777 {
		return nil, fmt.Errorf("invalid permission mask %#o", cfg.IPC.Perm)
	}
	return cfg, nil
}
