// File: engine/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine configuration: immutable per run, with sane defaults and an
// optional TOML file loader.

package engine

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds parameters immutable per run.
type Config struct {
	// PoolInitial messages are created up front; PoolMax is the hard
	// ceiling of live messages.
	PoolInitial int `toml:"pool_initial"`
	PoolMax     int `toml:"pool_max"`

	// Decode limits; a header declaring more closes the connection.
	MaxTextHeadersLen uint32 `toml:"max_text_headers_len"`
	MaxBodyLen        uint32 `toml:"max_body_len"`

	MaxEvents      int `toml:"max_events"`       // epoll batch size
	ReadBufferSize int `toml:"read_buffer_size"` // per-read scratch size

	ShutdownTimeout int64 `toml:"shutdown_timeout"` // ns; bound on reactor stop wait
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		PoolInitial:       64,
		PoolMax:           4096,
		MaxTextHeadersLen: 64 << 10,
		MaxBodyLen:        16 << 20,
		MaxEvents:         128,
		ReadBufferSize:    64 << 10,
		ShutdownTimeout:   10 * 1e9, // 10-second teardown deadline
	}
}

// LoadConfig reads a TOML file over the defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.PoolMax < 1 {
		return fmt.Errorf("pool_max must be at least 1, got %d", c.PoolMax)
	}
	if c.PoolInitial < 0 || c.PoolInitial > c.PoolMax {
		return fmt.Errorf("pool_initial %d out of range [0, %d]", c.PoolInitial, c.PoolMax)
	}
	if c.MaxTextHeadersLen == 0 || c.MaxBodyLen == 0 {
		return fmt.Errorf("decode limits must be non-zero")
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must not be negative")
	}
	return nil
}
