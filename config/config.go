// Package config provides loading and parsing of the mapper's YAML
// configuration and the connectivity bootstrap that turns a configuration
// into a live graph.Client.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in the configuration file.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config represents a neogm.yaml configuration file.
//
// Example:
//
//	backend: redis
//	endpoints:
//	  - redis://graph-a:6379
//	  - redis://graph-b:6379
//	probe_timeout: 2s
type Config struct {
	// Backend selects the store implementation: memory, redis or sqlite.
	Backend string `yaml:"backend"`

	// Endpoints lists candidate store endpoints for the redis backend,
	// probed in order during Open.
	Endpoints []string `yaml:"endpoints,omitempty"`

	// Database is the database file path for the sqlite backend.
	Database string `yaml:"database,omitempty"`

	// ProbeTimeout bounds each liveness probe during Open (e.g. "2s").
	ProbeTimeout string `yaml:"probe_timeout,omitempty"`
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is complete for its backend.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendRedis:
		if len(c.Endpoints) == 0 {
			return fmt.Errorf("%w: redis backend needs at least one endpoint", ErrInvalidConfig)
		}
		return nil
	case BackendSQLite:
		if c.Database == "" {
			return fmt.Errorf("%w: sqlite backend needs a database path", ErrInvalidConfig)
		}
		return nil
	case "":
		return fmt.Errorf("%w: backend is required", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
}

// GetProbeTimeout returns the per-candidate probe timeout, defaulting to 2s
// when unset or unparseable.
func (c *Config) GetProbeTimeout() time.Duration {
	if c.ProbeTimeout == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(c.ProbeTimeout)
	if err != nil {
		return 2 * time.Second
	}
	return d
}
