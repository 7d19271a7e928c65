package solana

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthTrackerRecordOutcome(t *testing.T) {
	tracker := NewHealthTracker([]string{"http://a", "http://b"}, 3, 30*time.Second)

	tracker.RecordOutcome(0, true, 10*time.Millisecond)
	tracker.RecordOutcome(0, false, 20*time.Millisecond)
	tracker.RecordOutcome(1, false, 5*time.Millisecond)

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 2)

	assert.Equal(t, uint64(2), snapshot[0].Attempts)
	assert.Equal(t, uint64(1), snapshot[0].Successes)
	assert.Equal(t, uint64(1), snapshot[0].Failures)
	assert.Equal(t, 1, snapshot[0].ConsecutiveFailures)
	assert.Equal(t, 20*time.Millisecond, snapshot[0].LastLatency)

	assert.Equal(t, uint64(1), snapshot[1].Attempts)
	assert.Equal(t, 1, snapshot[1].ConsecutiveFailures)
}

func TestHealthTrackerSuccessResetsConsecutiveFailures(t *testing.T) {
	tracker := NewHealthTracker([]string{"http://a"}, 3, 30*time.Second)

	tracker.RecordOutcome(0, false, time.Millisecond)
	tracker.RecordOutcome(0, false, time.Millisecond)
	assert.Equal(t, 2, tracker.Snapshot()[0].ConsecutiveFailures)

	tracker.RecordOutcome(0, true, time.Millisecond)
	assert.Equal(t, 0, tracker.Snapshot()[0].ConsecutiveFailures)
}

func TestHealthTrackerRank(t *testing.T) {
	tracker := NewHealthTracker([]string{"http://a", "http://b", "http://c"}, 3, 30*time.Second)

	// All healthy: rank is configured rotation order.
	assert.Equal(t, []int{0, 1, 2}, tracker.Rank())

	// Failures push an endpoint to the back, ties keep position order.
	tracker.RecordOutcome(0, false, time.Millisecond)
	tracker.RecordOutcome(0, false, time.Millisecond)
	tracker.RecordOutcome(2, false, time.Millisecond)

	assert.Equal(t, []int{1, 2, 0}, tracker.Rank())
}

func TestHealthTrackerCooldown(t *testing.T) {
	tracker := NewHealthTracker([]string{"http://a"}, 2, 30*time.Second)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }

	assert.True(t, tracker.Eligible(0))

	tracker.RecordOutcome(0, false, time.Millisecond)
	assert.True(t, tracker.Eligible(0), "below threshold, still eligible")

	tracker.RecordOutcome(0, false, time.Millisecond)
	assert.False(t, tracker.Eligible(0), "at threshold, cooling down")

	// Skipped, not removed: once the cooldown elapses it re-enters.
	now = now.Add(31 * time.Second)
	assert.True(t, tracker.Eligible(0))
}
