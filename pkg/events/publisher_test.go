package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisherWithoutURL(t *testing.T) {
	p, err := NewPublisher(logrus.New(), &Config{})
	require.NoError(t, err)

	assert.NoError(t, p.PublishSyncCompleted(context.Background(), SyncCompleted{Subject: "addr"}))
	assert.NoError(t, p.Close())
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}

	_, err := NewPublisher(logrus.New(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "soltrail", cfg.Exchange)
}

func TestSyncCompletedSerialization(t *testing.T) {
	event := SyncCompleted{
		Subject:       "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		RunID:         "run-1",
		Trigger:       "scheduled",
		NewSignatures: 12,
		Fetched:       10,
		FailedIDs:     []string{"sig1", "sig2"},
		Duration:      "1.5s",
		CompletedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded SyncCompleted
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, event, decoded)
}

func TestSyncCompletedOmitsEmptyFailures(t *testing.T) {
	data, err := json.Marshal(SyncCompleted{Subject: "addr"})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "failed_ids")
}
