// Copyright 2025 the MetaMCP authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the gateway configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents the complete gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	MCP       MCPConfig       `yaml:"mcp"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address.
	// Environment: METAMCP_ADDR
	// Default: 127.0.0.1:12006
	Addr string `yaml:"addr,omitempty"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown. Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// DatabaseConfig configures the SQLite backing store.
type DatabaseConfig struct {
	// Path is the SQLite database file.
	// Environment: METAMCP_DB_PATH
	// Default: ~/.metamcp/metamcp.db
	Path string `yaml:"path,omitempty"`
}

// MCPConfig configures downstream MCP connections.
type MCPConfig struct {
	// ConnectTimeout bounds transport start plus the initialize
	// handshake. Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`

	// CallTimeout bounds a single tool invocation. Default: 60s
	CallTimeout time.Duration `yaml:"call_timeout,omitempty"`
}

// RateLimitConfig configures per-API-key rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	BurstSize         int     `yaml:"burst_size,omitempty"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	// Environment: METAMCP_LOG_LEVEL
	Level string `yaml:"level,omitempty"`

	// Format selects json or text output.
	// Environment: LOG_FORMAT
	Format string `yaml:"format,omitempty"`
}

// Default returns the configuration defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:12006",
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(home, ".metamcp", "metamcp.db"),
		},
		MCP: MCPConfig{
			ConnectTimeout: 10 * time.Second,
			CallTimeout:    60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 10,
			BurstSize:         20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("METAMCP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("METAMCP_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("METAMCP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("METAMCP_RATE_LIMIT_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.RateLimit.Enabled = enabled
		}
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalidConfig)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	if c.MCP.ConnectTimeout < 0 || c.MCP.CallTimeout < 0 {
		return fmt.Errorf("%w: mcp timeouts must be positive", ErrInvalidConfig)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: rate_limit.requests_per_second must be positive", ErrInvalidConfig)
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("%w: log.format must be json or text", ErrInvalidConfig)
	}
	return nil
}
