// Package storetest holds the conformance suite every store backend
// must pass. Backend test packages call Run with a factory producing a
// fresh, empty store per subtest.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solwatch/soltrail/pkg/store"
)

// Factory produces a fresh, empty store. Cleanup is the caller's
// responsibility (t.Cleanup in the factory).
type Factory func(t *testing.T) store.Store

// Run exercises the full store.Store contract against a backend.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	tests := map[string]func(*testing.T, store.Store){
		"CursorAbsentForUnknownSubject":     testCursorAbsent,
		"UpsertSignaturesDedup":             testUpsertSignaturesDedup,
		"UpsertSignaturesCreatesPending":    testUpsertCreatesPending,
		"CursorAdvancesMonotonically":       testCursorMonotone,
		"ListPendingOldestFirst":            testListPendingOldestFirst,
		"UpsertDetailIdempotent":            testUpsertDetailIdempotent,
		"UpsertDetailRejectsEmptyPayload":   testUpsertDetailEmptyPayload,
		"UpsertDetailRequiresSignature":     testUpsertDetailRequiresParent,
		"MarkDetailFailedCountsRetries":     testMarkDetailFailed,
		"MarkDetailFailedNeverDemotes":      testMarkFailedNeverDemotes,
		"RetryCeilingExcludesFromPending":   testRetryCeiling,
		"PurgeClearsSubject":                testPurge,
		"StatsCountsByStatus":               testStats,
		"TrackedSubjectsRoundTrip":          testTrackedSubjects,
		"ConcurrentDetailWritesAreIsolated": testConcurrentDetailWrites,
	}

	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func sigRecord(subject, sig string, slot uint64) store.SignatureRecord {
	blockTime := int64(1700000000 + slot) //nolint:gosec // test fixture

	return store.SignatureRecord{
		Subject:   subject,
		Signature: sig,
		Slot:      slot,
		BlockTime: &blockTime,
		FetchedAt: time.Now(),
	}
}

func testCursorAbsent(t *testing.T, s store.Store) {
	cursor, err := s.GetCursor(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func testUpsertSignaturesDedup(t *testing.T, s store.Store) {
	ctx := context.Background()

	inserted, err := s.UpsertSignatures(ctx, "subj", []store.SignatureRecord{
		sigRecord("subj", "sig1", 100),
		sigRecord("subj", "sig2", 101),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// Re-applying the same batch inserts nothing.
	inserted, err = s.UpsertSignatures(ctx, "subj", []store.SignatureRecord{
		sigRecord("subj", "sig1", 100),
		sigRecord("subj", "sig2", 101),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	stats, err := s.Stats(ctx, "subj")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SignatureCount)
}

func testUpsertCreatesPending(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.UpsertSignatures(ctx, "subj", []store.SignatureRecord{sigRecord("subj", "sig1", 100)})
	require.NoError(t, err)

	detail, err := s.GetDetail(ctx, "subj", "sig1")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, store.DetailStatusPending, detail.Status)
	assert.Empty(t, detail.Payload)
}

func testCursorMonotone(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.UpsertSignatures(ctx, "subj", []store.SignatureRecord{sigRecord("subj", "sig5", 105)})
	require.NoError(t, err)

	cursor, err := s.GetCursor(ctx, "subj")
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, uint64(105), cursor.NewestSlot)
	assert.Equal(t, "sig5", cursor.NewestSignature)

	// Older records never move the cursor backward.
	_, err = s.UpsertSignatures(ctx, "subj", []store.SignatureRecord{sigRecord("subj", "sig1", 101)})
	require.NoError(t, err)

	cursor, err = s.GetCursor(ctx, "subj")
	require.NoError(t, err)
	assert.Equal(t, uint64(105), cursor.NewestSlot)
	assert.Equal(t, "sig5", cursor.NewestSignature)
	assert.Equal(t, uint64(2), cursor.TotalSynced)

	// Newer records do.
	_, err = s.UpsertSignatures(ctx, "subj", []store.SignatureRecord{sigRecord("subj", "sig9", 109)})
	require.NoError(t, err)

	cursor, err = s.GetCursor(ctx, "subj")
	require.NoError(t, err)
	assert.Equal(t, uint64(109), cursor.NewestSlot)
	assert.Equal(t, "sig9", cursor.NewestSignature)
}

func testListPendingOldestFirst(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.UpsertSignatures(ctx, "subj", []store.SignatureRecord{
		sigRecord("subj", "sig3", 103),
		sigRecord("subj", "sig1", 101),
		sigRecord("subj", "sig2", 102),
	})
	require.NoError(t, err)

	sigs, err := s.ListPendingDetails(ctx, "subj", 10, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"sig1", "sig2", "sig3"}, sigs)

	// Limit bounds the batch.
	sigs, err = s.ListPendingDetails(ctx, "subj", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"sig1", "sig2"}, sigs)

	// Fetched records drop out.
	require.NoError(t, s.UpsertDetail(ctx, "subj", "sig1", []byte(`{"ok":true}`)))

	sigs, err = s.ListPendingDetails(ctx, "subj", 10, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"sig2", "sig3"}, sigs)
}

func testUpsertDetailIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.UpsertSignatures(ctx, "subj", []store.SignatureRecord{sigRecord("subj", "sig1", 100)})
	require.NoError(t, err)

	payload := []byte(`{"slot":100}`)
	require.NoError(t, s.UpsertDetail(ctx, "subj", "sig1", payload))
	require.NoError(t, s.UpsertDetail(ctx, "subj", "sig1", payload))

	detail, err := s.GetDetail(ctx, "subj", "sig1")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, store.DetailStatusFetched, detail.Status)
	assert.JSONEq(t, `{"slot":100}`, string(detail.Payload))

	stats, err := s.Stats(ctx, "subj")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FetchedCount)
}

func testUpsertDetailEmptyPayload(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.UpsertSignatures(ctx, "subj", []store.SignatureRecord{sigRecord("subj", "sig1", 100)})
	require.NoError(t, err)

	err = s.UpsertDetail(ctx, "subj", "sig1", nil)
	require.ErrorIs(t, err, store.ErrEmptyPayload)
}

func testUpsertDetailRequiresParent(t *testing.T, s store.Store) {
	err := s.UpsertDetail(context.Background(), "subj", "orphan", []byte(`{}`))
	require.ErrorIs(t, err, store.ErrDetailNotFound)
}

func testMarkDetailFailed(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.UpsertSignatures(ctx, "subj", []store.SignatureRecord{sigRecord("subj", "sig1", 100)})
	require.NoError(t, err)

	require.NoError(t, s.MarkDetailFailed(ctx, "subj", "sig1"))
	require.NoError(t, s.MarkDetailFailed(ctx, "subj", "sig1"))

	detail, err := s.GetDetail(ctx, "subj", "sig1")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, store.DetailStatusFailed, detail.Status)
	assert.Equal(t, 2, detail.RetryCount)

	// Failed records stay retry eligible below the ceiling.
	sigs, err := s.ListPendingDetails(ctx, "subj", 10, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"sig1"}, sigs)
}

func testMarkFailedNeverDemotes(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.UpsertSignatures(ctx, "subj", []store.SignatureRecord{sigRecord("subj", "sig1", 100)})
	require.NoError(t, err)

	require.NoError(t, s.UpsertDetail(ctx, "subj", "sig1", []byte(`{"slot":100}`)))
	require.NoError(t, s.MarkDetailFailed(ctx, "subj", "sig1"))

	detail, err := s.GetDetail(ctx, "subj", "sig1")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, store.DetailStatusFetched, detail.Status)
	assert.NotEmpty(t, detail.Payload)
}

func testRetryCeiling(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.UpsertSignatures(ctx, "subj", []store.SignatureRecord{sigRecord("subj", "sig1", 100)})
	require.NoError(t, err)

	const ceiling = 3

	for i := 0; i < ceiling; i++ {
		require.NoError(t, s.MarkDetailFailed(ctx, "subj", "sig1"))
	}

	sigs, err := s.ListPendingDetails(ctx, "subj", 10, ceiling)
	require.NoError(t, err)
	assert.Empty(t, sigs, "terminally failed records disappear from the pending list")

	stats, err := s.Stats(ctx, "subj")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FailedCount)
}

func testPurge(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.UpsertSignatures(ctx, "subj", []store.SignatureRecord{
		sigRecord("subj", "sig1", 100),
		sigRecord("subj", "sig2", 101),
	})
	require.NoError(t, err)
	require.NoError(t, s.UpsertDetail(ctx, "subj", "sig1", []byte(`{}`)))

	// Another subject's records survive the purge.
	_, err = s.UpsertSignatures(ctx, "other", []store.SignatureRecord{sigRecord("other", "sigX", 200)})
	require.NoError(t, err)

	require.NoError(t, s.Purge(ctx, "subj"))

	stats, err := s.Stats(ctx, "subj")
	require.NoError(t, err)
	assert.Equal(t, store.CacheStats{}, stats)

	cursor, err := s.GetCursor(ctx, "subj")
	require.NoError(t, err)
	assert.Nil(t, cursor)

	otherStats, err := s.Stats(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 1, otherStats.SignatureCount)
}

func testStats(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.UpsertSignatures(ctx, "subj", []store.SignatureRecord{
		sigRecord("subj", "sig1", 100),
		sigRecord("subj", "sig2", 101),
		sigRecord("subj", "sig3", 102),
	})
	require.NoError(t, err)

	require.NoError(t, s.UpsertDetail(ctx, "subj", "sig1", []byte(`{}`)))
	require.NoError(t, s.MarkDetailFailed(ctx, "subj", "sig2"))

	stats, err := s.Stats(ctx, "subj")
	require.NoError(t, err)
	assert.Equal(t, store.CacheStats{
		SignatureCount: 3,
		FetchedCount:   1,
		PendingCount:   1,
		FailedCount:    1,
	}, stats)
}

func testTrackedSubjects(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.TrackSubject(ctx, store.TrackedSubject{
		Subject: "addr1",
		Label:   "treasury",
		AddedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Enabled: true,
	}))
	require.NoError(t, s.TrackSubject(ctx, store.TrackedSubject{
		Subject: "addr2",
		AddedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Enabled: true,
	}))

	subjects, err := s.ListTrackedSubjects(ctx)
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.Equal(t, "addr1", subjects[0].Subject)
	assert.Equal(t, "treasury", subjects[0].Label)

	// Tracking again updates in place.
	require.NoError(t, s.TrackSubject(ctx, store.TrackedSubject{Subject: "addr1", Label: "ops", Enabled: false}))

	subjects, err = s.ListTrackedSubjects(ctx)
	require.NoError(t, err)
	require.Len(t, subjects, 2)

	require.NoError(t, s.UntrackSubject(ctx, "addr1"))

	subjects, err = s.ListTrackedSubjects(ctx)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "addr2", subjects[0].Subject)
}

func testConcurrentDetailWrites(t *testing.T, s store.Store) {
	ctx := context.Background()

	const n = 20

	records := make([]store.SignatureRecord, n)
	for i := range records {
		records[i] = sigRecord("subj", fmt.Sprintf("sig%02d", i), uint64(100+i)) //nolint:gosec // small test index
	}

	_, err := s.UpsertSignatures(ctx, "subj", records)
	require.NoError(t, err)

	errCh := make(chan error, n)

	for i := 0; i < n; i++ {
		go func(i int) {
			sig := fmt.Sprintf("sig%02d", i)
			if i%2 == 0 {
				errCh <- s.UpsertDetail(ctx, "subj", sig, []byte(fmt.Sprintf(`{"i":%d}`, i)))
			} else {
				errCh <- s.MarkDetailFailed(ctx, "subj", sig)
			}
		}(i)
	}

	for i := 0; i < n; i++ {
		require.NoError(t, <-errCh)
	}

	stats, err := s.Stats(ctx, "subj")
	require.NoError(t, err)
	assert.Equal(t, n/2, stats.FetchedCount)
	assert.Equal(t, n/2, stats.FailedCount)
	assert.Equal(t, 0, stats.PendingCount)
}
