package store

import (
	"errors"
	"fmt"
)

// Static errors for configuration validation
var (
	ErrUnknownBackend   = errors.New("unknown store backend")
	ErrPathRequired     = errors.New("sqlite path is required")
	ErrRedisURLRequired = errors.New("redis URL is required for the redis backend")
)

// Backend names selectable via store.backend.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config selects and configures the store backend.
type Config struct {
	Backend string       `yaml:"backend" default:"sqlite"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
	Redis   RedisConfig  `yaml:"redis"`
}

// SQLiteConfig configures the embedded SQLite backend.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" is accepted for tests.
	Path string `yaml:"path" default:"soltrail.db"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix" default:"soltrail"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, "":
		if c.SQLite.Path == "" {
			return ErrPathRequired
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return ErrRedisURLRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}

	return nil
}
