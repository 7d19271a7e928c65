// Package engine wires the full soltrail daemon together
package engine

import (
	"errors"

	"github.com/solwatch/soltrail/pkg/api"
	"github.com/solwatch/soltrail/pkg/events"
	"github.com/solwatch/soltrail/pkg/fetcher"
	"github.com/solwatch/soltrail/pkg/solana"
	"github.com/solwatch/soltrail/pkg/store"
	"github.com/solwatch/soltrail/pkg/tracker"
)

var (
	// ErrRedisURLRequired is returned when Redis URL is not provided
	ErrRedisURLRequired = errors.New("redis URL is required")
)

// Config represents the complete engine configuration
type Config struct {
	// Core settings
	Logging         string `yaml:"logging" default:"info" validate:"oneof=panic fatal warn info debug trace"`
	MetricsAddr     string `yaml:"metricsAddr" default:":9090"`
	HealthCheckAddr string `yaml:"healthCheckAddr"`
	PProfAddr       string `yaml:"pprofAddr"`

	// Redis backs the sync task queue
	Redis RedisConfig `yaml:"redis"`

	// Solana RPC endpoint pool
	Solana solana.Config `yaml:"solana"`

	// Record store
	Store store.Config `yaml:"store"`

	// Fetch orchestrator settings
	Fetcher fetcher.Config `yaml:"fetcher"`

	// Scheduled sync settings
	Tracker tracker.Config `yaml:"tracker"`

	// Event publishing
	Events events.Config `yaml:"events"`

	// API service configuration
	API api.Config `yaml:"api"`
}

// RedisConfig represents Redis connection configuration
type RedisConfig struct {
	URL string `yaml:"url" validate:"required,url"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Redis.URL == "" {
		return ErrRedisURLRequired
	}

	if err := c.Solana.Validate(); err != nil {
		return err
	}

	if err := c.Store.Validate(); err != nil {
		return err
	}

	if err := c.Fetcher.Validate(); err != nil {
		return err
	}

	if err := c.Tracker.Validate(); err != nil {
		return err
	}

	if err := c.Events.Validate(); err != nil {
		return err
	}

	return c.API.Validate()
}
