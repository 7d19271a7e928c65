// Package fetcher implements the incremental fetch orchestrator: it
// merges what the record store already holds with what must still be
// fetched through the RPC pool, bounding concurrency and batch size.
package fetcher

import (
	"errors"
)

// Static errors for configuration validation
var (
	ErrInvalidPageSize      = errors.New("pageSize must be between 1 and 1000")
	ErrInvalidBatchSize     = errors.New("batchSize must be positive")
	ErrInvalidMaxConcurrent = errors.New("maxConcurrent must be positive")
	ErrInvalidRetryCeiling  = errors.New("maxDetailRetries must be positive")
)

// Config contains orchestrator settings
type Config struct {
	// PageSize bounds one signature listing page (upstream max 1000).
	PageSize int `yaml:"pageSize" default:"1000"`
	// BatchSize bounds one batch of pending detail fetches pulled from
	// the store.
	BatchSize int `yaml:"batchSize" default:"50"`
	// MaxConcurrent caps in-flight detail requests.
	MaxConcurrent int `yaml:"maxConcurrent" default:"3"`
	// MaxDetailRetries is the per-record retry ceiling; a record failed
	// this many times is terminal until force-refresh.
	MaxDetailRetries int `yaml:"maxDetailRetries" default:"5"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.PageSize < 1 || c.PageSize > 1000 {
		return ErrInvalidPageSize
	}

	if c.BatchSize < 1 {
		return ErrInvalidBatchSize
	}

	if c.MaxConcurrent < 1 {
		return ErrInvalidMaxConcurrent
	}

	if c.MaxDetailRetries < 1 {
		return ErrInvalidRetryCeiling
	}

	return nil
}

// SetDefaults sets default values for fields left zero
func (c *Config) SetDefaults() {
	if c.PageSize == 0 {
		c.PageSize = 1000
	}

	if c.BatchSize == 0 {
		c.BatchSize = 50
	}

	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 3
	}

	if c.MaxDetailRetries == 0 {
		c.MaxDetailRetries = 5
	}
}
