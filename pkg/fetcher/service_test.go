package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solwatch/soltrail/internal/testutil"
	"github.com/solwatch/soltrail/pkg/solana"
	"github.com/solwatch/soltrail/pkg/store"
	"github.com/solwatch/soltrail/pkg/store/sqlite"
)

const subject = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

type fixture struct {
	upstream *testutil.RPCServer
	store    *sqlite.Store
	service  Service
}

func newFixture(t *testing.T, cfg *Config) *fixture {
	t.Helper()

	upstream := testutil.NewRPCServer(t)

	st, err := sqlite.Open(logrus.New(), &store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "cache.db")})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Logf("failed to close store: %v", err)
		}
	})

	pool, err := solana.NewPool(logrus.New(), &solana.Config{
		Endpoints:         []string{upstream.URL},
		RequestsPerSecond: 10000,
		RequestTimeout:    2 * time.Second,
	})
	require.NoError(t, err)

	if cfg == nil {
		cfg = &Config{}
	}

	svc, err := NewService(logrus.New(), cfg, st, pool)
	require.NoError(t, err)

	return &fixture{upstream: upstream, store: st, service: svc}
}

// seedUpstream scripts n signatures (slots 100..100+n-1, newest first)
// with matching transaction payloads.
func (f *fixture) seedUpstream(n int) {
	for i := n - 1; i >= 0; i-- {
		slot := uint64(100 + i) //nolint:gosec // small test index
		sig := fmt.Sprintf("sig%03d", i)
		blockTime := int64(1700000000 + slot) //nolint:gosec // test fixture

		f.upstream.AddSignatures(subject, testutil.SignatureEntry{
			Signature: sig,
			Slot:      slot,
			BlockTime: &blockTime,
		})
		f.upstream.SetTransaction(sig, json.RawMessage(fmt.Sprintf(`{"slot":%d}`, slot)))
	}
}

func TestFetchIncrementalColdCache(t *testing.T) {
	f := newFixture(t, &Config{PageSize: 3})
	f.seedUpstream(5)

	result, err := f.service.FetchIncremental(context.Background(), subject, FetchOptions{Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, 5, result.NewSignatureCount)
	assert.Len(t, result.Details, 5)
	assert.Empty(t, result.FailedIDs)

	// Paged twice: one full page of 3, one short page of 2.
	assert.Equal(t, 2, f.upstream.Calls("getSignaturesForAddress"))
	assert.Equal(t, 5, f.upstream.Calls("getTransaction"))

	stats, err := f.service.CacheStats(context.Background(), subject)
	require.NoError(t, err)
	assert.Equal(t, store.CacheStats{SignatureCount: 5, FetchedCount: 5}, stats)
}

func TestFetchIncrementalIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUpstream(4)

	first, err := f.service.FetchIncremental(context.Background(), subject, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, first.NewSignatureCount)

	statsAfterFirst, err := f.service.CacheStats(context.Background(), subject)
	require.NoError(t, err)

	// No new upstream data: the second run discovers nothing and the
	// cache is unchanged.
	second, err := f.service.FetchIncremental(context.Background(), subject, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewSignatureCount)
	assert.Empty(t, second.Details)

	statsAfterSecond, err := f.service.CacheStats(context.Background(), subject)
	require.NoError(t, err)
	assert.Equal(t, statsAfterFirst, statsAfterSecond)
}

func TestFetchIncrementalOnlyListsPastFrontier(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUpstream(3)

	_, err := f.service.FetchIncremental(context.Background(), subject, FetchOptions{})
	require.NoError(t, err)

	// Three newer records arrive upstream.
	for _, slot := range []uint64{103, 104, 105} {
		sig := fmt.Sprintf("sig%03d", slot-100)
		blockTime := int64(1700000000 + slot) //nolint:gosec // test fixture

		f.upstream.AddSignatures(subject, testutil.SignatureEntry{Signature: sig, Slot: slot, BlockTime: &blockTime})
		f.upstream.SetTransaction(sig, json.RawMessage(fmt.Sprintf(`{"slot":%d}`, slot)))
	}

	detailsBefore := f.upstream.Calls("getTransaction")

	result, err := f.service.FetchIncremental(context.Background(), subject, FetchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.NewSignatureCount)
	assert.Len(t, result.Details, 3)
	assert.Equal(t, detailsBefore+3, f.upstream.Calls("getTransaction"), "cached records are not re-fetched")

	cursor, err := f.store.GetCursor(context.Background(), subject)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, uint64(105), cursor.NewestSlot)
}

func TestFetchIncrementalIsolatesDetailFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUpstream(4)
	f.upstream.FailTransaction("sig001", -1)

	result, err := f.service.FetchIncremental(context.Background(), subject, FetchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, result.NewSignatureCount)
	assert.Len(t, result.Details, 3, "other records still complete")
	assert.Equal(t, []string{"sig001"}, result.FailedIDs)

	stats, err := f.service.CacheStats(context.Background(), subject)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.FetchedCount)
	assert.Equal(t, 1, stats.FailedCount)
}

func TestFetchIncrementalRetriesFailedOnNextRun(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUpstream(2)
	f.upstream.FailTransaction("sig000", 2)

	result, err := f.service.FetchIncremental(context.Background(), subject, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"sig000"}, result.FailedIDs)

	// The failed record is retry eligible; the upstream has recovered.
	result, err = f.service.FetchIncremental(context.Background(), subject, FetchOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.FailedIDs)
	assert.Len(t, result.Details, 1)

	stats, err := f.service.CacheStats(context.Background(), subject)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FetchedCount)
}

func TestFetchIncrementalForceRefresh(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUpstream(3)

	_, err := f.service.FetchIncremental(context.Background(), subject, FetchOptions{})
	require.NoError(t, err)

	result, err := f.service.FetchIncremental(context.Background(), subject, FetchOptions{ForceRefresh: true})
	require.NoError(t, err)

	// Everything is re-listed and re-fetched from scratch.
	assert.Equal(t, 3, result.NewSignatureCount)
	assert.Len(t, result.Details, 3)
}

func TestFetchIncrementalConcurrencyBound(t *testing.T) {
	const maxConcurrent = 2

	f := newFixture(t, &Config{MaxConcurrent: maxConcurrent})
	f.seedUpstream(8)
	f.upstream.SetDelay(20 * time.Millisecond)

	_, err := f.service.FetchIncremental(context.Background(), subject, FetchOptions{})
	require.NoError(t, err)

	assert.LessOrEqual(t, f.upstream.MaxInFlight(), maxConcurrent,
		"in-flight detail requests never exceed the gate")
}

func TestFetchIncrementalCancellationLeavesPending(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUpstream(6)
	f.upstream.SetDelay(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	_, err := f.service.FetchIncremental(ctx, subject, FetchOptions{})
	require.Error(t, err)

	stats, err := f.service.CacheStats(context.Background(), subject)
	require.NoError(t, err)
	assert.Positive(t, stats.PendingCount, "cancelled fetches stay pending")
	assert.Zero(t, stats.FailedCount, "cancellation is not a failure")

	// A later run completes the leftovers.
	f.upstream.SetDelay(0)

	result, err := f.service.FetchIncremental(context.Background(), subject, FetchOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.FailedIDs)

	stats, err = f.service.CacheStats(context.Background(), subject)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.FetchedCount)
}

func TestFetchIncrementalRetryCeiling(t *testing.T) {
	f := newFixture(t, &Config{MaxDetailRetries: 2})
	f.seedUpstream(1)
	f.upstream.FailTransaction("sig000", -1)

	for i := 0; i < 2; i++ {
		result, err := f.service.FetchIncremental(context.Background(), subject, FetchOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"sig000"}, result.FailedIDs)
	}

	// Past the ceiling the record is terminal: no more attempts.
	attempts := f.upstream.Calls("getTransaction")

	result, err := f.service.FetchIncremental(context.Background(), subject, FetchOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.FailedIDs)
	assert.Equal(t, attempts, f.upstream.Calls("getTransaction"))
}

func TestFetchIncrementalRequiresSubject(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.FetchIncremental(context.Background(), "", FetchOptions{})
	require.ErrorIs(t, err, store.ErrSubjectRequired)
}

func TestFetchIncrementalSurfacesListingExhaustion(t *testing.T) {
	f := newFixture(t, nil)
	f.upstream.FailMethod("getSignaturesForAddress", true)

	_, err := f.service.FetchIncremental(context.Background(), subject, FetchOptions{})
	require.Error(t, err)
	assert.True(t, solana.IsExhausted(err))
}
