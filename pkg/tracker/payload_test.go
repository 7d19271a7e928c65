package tracker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncPayloadTaskID(t *testing.T) {
	tests := []struct {
		name    string
		payload SyncPayload
		want    string
	}{
		{
			name:    "basic subject",
			payload: SyncPayload{Subject: "addr1"},
			want:    "sync:addr1",
		},
		{
			name: "identical for different runs of the same subject",
			payload: SyncPayload{
				Subject: "addr1",
				Force:   true,
				RunID:   "run-2",
			},
			want: "sync:addr1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.payload.TaskID())
		})
	}
}

func TestSyncPayloadSerialization(t *testing.T) {
	payload := SyncPayload{
		Subject:    "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Limit:      500,
		Force:      true,
		Trigger:    TriggerScheduled,
		RunID:      "a3f1c9e2",
		EnqueuedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded SyncPayload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, payload, decoded)
}
