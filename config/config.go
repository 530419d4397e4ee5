// Package config loads server configuration from a TOML file, with
// defaults suitable for local development. Flags in cmd/server override
// whatever the file says.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds all server configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	CORS     CORSConfig     `toml:"cors"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `toml:"host,omitempty"`
	Port int    `toml:"port"`
}

// DatabaseConfig holds the SQLite database settings.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// CORSConfig holds cross-origin settings for browser frontends.
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Path: "./data/evm.db"},
	}
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(path string, cfg Config) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
