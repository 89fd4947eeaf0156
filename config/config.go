// Package config is Caldera's unified configuration: defaults, optional
// YAML file overrides, and environment variable overrides, in that order
// of precedence.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every knob the server and CLI need to start the engine and
// listen for connections.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`

	// Source records where the config was ultimately loaded from, for
	// diagnostics (e.g. `calderad config show`). Not itself configurable.
	Source string `yaml:"-"`
}

// StorageConfig controls the engine's on-disk footprint.
type StorageConfig struct {
	DataPath  string `yaml:"data_path" env:"CALDERA_DATA_PATH"`
	CacheSize int    `yaml:"cache_size" env:"CALDERA_CACHE_SIZE"`
}

// ServerConfig controls the TCP listener and its worker pool.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" env:"CALDERA_LISTEN_ADDR"`
	Workers    int    `yaml:"workers" env:"CALDERA_WORKERS"`
}

// DefaultConfig returns Caldera's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataPath:  "caldera.db",
			CacheSize: 1000,
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:6380",
			Workers:    4,
		},
		Source: "defaults",
	}
}

// Load builds a Config starting from DefaultConfig, applying a YAML file at
// path if it exists (a missing file is not an error — it just means the
// defaults apply), then applying any set environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
			cfg.Source = path
		case os.IsNotExist(err):
			// no file to load; defaults stand
		default:
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides cfg's fields from the environment variables named in
// their `env` struct tags above, when set.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("CALDERA_DATA_PATH"); ok {
		cfg.Storage.DataPath = v
	}
	if v, ok := os.LookupEnv("CALDERA_CACHE_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.CacheSize = n
		}
	}
	if v, ok := os.LookupEnv("CALDERA_LISTEN_ADDR"); ok {
		cfg.Server.ListenAddr = v
	}
	if v, ok := os.LookupEnv("CALDERA_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Workers = n
		}
	}
}

// ToYAML renders cfg as YAML, for `calderad config show`.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
