package solana

import (
	"errors"
	"time"
)

// Static errors for configuration validation
var (
	ErrEndpointsRequired = errors.New("at least one RPC endpoint is required")
	ErrInvalidRate       = errors.New("requestsPerSecond must be positive")
)

// Config contains RPC endpoint pool settings
type Config struct {
	// Endpoints is the ordered list of JSON-RPC URLs to rotate over.
	Endpoints []string `yaml:"endpoints"`
	// RequestTimeout bounds a single attempt against one endpoint.
	RequestTimeout time.Duration `yaml:"requestTimeout" default:"30s"`
	// MaxAttempts is the attempt budget for one logical call across all
	// endpoints. Zero means two passes over the endpoint list.
	MaxAttempts int `yaml:"maxAttempts"`
	// RequestsPerSecond throttles each endpoint independently.
	RequestsPerSecond float64 `yaml:"requestsPerSecond" default:"4"`
	// CooldownThreshold is the consecutive-failure count at which an
	// endpoint is skipped in rotation.
	CooldownThreshold int `yaml:"cooldownThreshold" default:"3"`
	// Cooldown is how long a skipped endpoint stays out of rotation.
	Cooldown time.Duration `yaml:"cooldown" default:"30s"`
	// KeepAlive configures idle connection reuse toward the endpoints.
	KeepAlive time.Duration `yaml:"keepAlive" default:"30s"`
	Debug     bool          `yaml:"debug"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return ErrEndpointsRequired
	}

	if c.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}

	return nil
}

// SetDefaults sets default values for fields without yaml defaults
func (c *Config) SetDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}

	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 4
	}

	if c.CooldownThreshold == 0 {
		c.CooldownThreshold = 3
	}

	if c.Cooldown == 0 {
		c.Cooldown = 30 * time.Second
	}

	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}
}

// EffectiveMaxAttempts returns the attempt budget for one logical call.
func (c *Config) EffectiveMaxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}

	return len(c.Endpoints) * 2
}
