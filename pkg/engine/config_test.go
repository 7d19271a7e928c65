package engine

import (
	"testing"

	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()

	cfg := &Config{}
	require.NoError(t, defaults.Set(cfg))

	cfg.Redis.URL = "redis://localhost:6379"
	cfg.Solana.Endpoints = []string{"https://api.mainnet-beta.solana.com"}

	return cfg
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig(t)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateRequiresRedis(t *testing.T) {
	cfg := validConfig(t)
	cfg.Redis.URL = ""

	assert.ErrorIs(t, cfg.Validate(), ErrRedisURLRequired)
}

func TestConfigValidateRequiresEndpoints(t *testing.T) {
	cfg := validConfig(t)
	cfg.Solana.Endpoints = nil

	assert.Error(t, cfg.Validate())
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, defaults.Set(cfg))

	assert.Equal(t, "info", cfg.Logging)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, "@every 5m", cfg.Tracker.Schedule)
	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.False(t, cfg.API.Enabled)
}
