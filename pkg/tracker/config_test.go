package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid every schedule",
			config: Config{Schedule: "@every 5m", Concurrency: 5},
		},
		{
			name:   "valid cron schedule",
			config: Config{Schedule: "*/10 * * * *", Concurrency: 1},
		},
		{
			name:    "invalid schedule",
			config:  Config{Schedule: "not a schedule", Concurrency: 5},
			wantErr: true,
		},
		{
			name:    "zero concurrency",
			config:  Config{Schedule: "@every 5m"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseScheduleInterval(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		want     time.Duration
		wantErr  bool
	}{
		{name: "every seconds", schedule: "@every 30s", want: 30 * time.Second},
		{name: "every minutes", schedule: "@every 5m", want: 5 * time.Minute},
		{name: "hourly cron", schedule: "0 * * * *", want: time.Hour},
		{name: "garbage", schedule: "whenever", wantErr: true},
		{name: "bad every duration", schedule: "@every fast", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScheduleInterval(tt.schedule)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
