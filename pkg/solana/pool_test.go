package solana

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solwatch/soltrail/internal/testutil"
)

func newTestPool(t *testing.T, cfg *Config) *Pool {
	t.Helper()

	// High rate so throttling never distorts timing-sensitive tests.
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 10000
	}

	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 2 * time.Second
	}

	pool, err := NewPool(logrus.New(), cfg)
	require.NoError(t, err)

	return pool
}

func TestNewPoolRequiresEndpoints(t *testing.T) {
	_, err := NewPool(logrus.New(), &Config{})
	require.ErrorIs(t, err, ErrEndpointsRequired)
}

func TestCallRoundRobinFairness(t *testing.T) {
	const endpoints = 3

	const calls = 12

	servers := make([]*testutil.RPCServer, endpoints)
	urls := make([]string, endpoints)

	for i := range servers {
		servers[i] = testutil.NewRPCServer(t)
		urls[i] = servers[i].URL
	}

	pool := newTestPool(t, &Config{Endpoints: urls})

	for i := 0; i < calls; i++ {
		_, err := pool.Call(context.Background(), "getHealth")
		require.NoError(t, err)
	}

	// With every endpoint healthy, N calls over K endpoints land evenly.
	for i, server := range servers {
		assert.Equal(t, calls/endpoints, server.Calls("getHealth"), "endpoint %d", i)
	}
}

func TestCallFailsOverOnTransientFailure(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(failing.Close)

	healthy := testutil.NewRPCServer(t)

	pool := newTestPool(t, &Config{Endpoints: []string{failing.URL, healthy.URL}})

	result, err := pool.Call(context.Background(), "getHealth")
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(result))

	snapshot := pool.Health()
	assert.Equal(t, 1, snapshot[0].ConsecutiveFailures, "failing endpoint accrues failures")
	assert.Equal(t, 0, snapshot[1].ConsecutiveFailures, "healthy endpoint does not")
	assert.Equal(t, uint64(1), snapshot[1].Successes)
}

func TestCallReturnsExhaustedWhenAllEndpointsFail(t *testing.T) {
	var hits atomic.Int64

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	s1 := httptest.NewServer(handler)
	t.Cleanup(s1.Close)

	s2 := httptest.NewServer(handler)
	t.Cleanup(s2.Close)

	pool := newTestPool(t, &Config{Endpoints: []string{s1.URL, s2.URL}})

	_, err := pool.Call(context.Background(), "getSlot")
	require.Error(t, err)
	assert.True(t, IsExhausted(err))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "getSlot", exhausted.Method)
	assert.Equal(t, int64(4), hits.Load(), "attempt budget is endpoints x 2")
	assert.Len(t, exhausted.Attempts, 2)
}

func TestCallFailsFastOnFatalError(t *testing.T) {
	var hits atomic.Int64

	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))
	t.Cleanup(auth.Close)

	other := testutil.NewRPCServer(t)

	pool := newTestPool(t, &Config{Endpoints: []string{auth.URL, other.URL}})

	_, err := pool.Call(context.Background(), "getHealth")
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.False(t, IsExhausted(err))
	assert.Equal(t, int64(1), hits.Load(), "no rotation on fatal errors")
	assert.Equal(t, 0, other.Calls("getHealth"))
}

func TestCallFatalRPCErrorCode(t *testing.T) {
	server := testutil.NewRPCServer(t)

	pool := newTestPool(t, &Config{Endpoints: []string{server.URL}})

	// Unknown methods answer with -32601, which no endpoint can fix.
	_, err := pool.Call(context.Background(), "getNonsense")
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestCallSkipsCooledDownEndpoint(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(failing.Close)

	healthy := testutil.NewRPCServer(t)

	pool := newTestPool(t, &Config{
		Endpoints:         []string{failing.URL, healthy.URL},
		CooldownThreshold: 2,
		Cooldown:          time.Hour,
	})

	// Drive the failing endpoint past the threshold.
	for i := 0; i < 4; i++ {
		_, err := pool.Call(context.Background(), "getHealth")
		require.NoError(t, err)
	}

	before := healthy.Calls("getHealth")

	for i := 0; i < 5; i++ {
		_, err := pool.Call(context.Background(), "getHealth")
		require.NoError(t, err)
	}

	assert.Equal(t, before+5, healthy.Calls("getHealth"), "cooled-down endpoint is skipped entirely")
}

func TestCallHonoursContextCancellation(t *testing.T) {
	server := testutil.NewRPCServer(t)

	pool := newTestPool(t, &Config{Endpoints: []string{server.URL}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.Call(ctx, "getHealth")
	require.ErrorIs(t, err, context.Canceled)
}

func TestGetSignaturesForAddress(t *testing.T) {
	server := testutil.NewRPCServer(t)

	blockTime := int64(1700000100)
	server.AddSignatures("addr1",
		testutil.SignatureEntry{Signature: "sig2", Slot: 101, BlockTime: &blockTime},
		testutil.SignatureEntry{Signature: "sig1", Slot: 100, BlockTime: &blockTime},
	)

	pool := newTestPool(t, &Config{Endpoints: []string{server.URL}})

	sigs, err := pool.GetSignaturesForAddress(context.Background(), "addr1", ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "sig2", sigs[0].Signature)
	assert.Equal(t, uint64(101), sigs[0].Slot)

	// Until bounds the pass at the cached frontier.
	sigs, err = pool.GetSignaturesForAddress(context.Background(), "addr1", ListOptions{Limit: 10, Until: "sig1"})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "sig2", sigs[0].Signature)

	_, err = pool.GetSignaturesForAddress(context.Background(), "", ListOptions{})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestGetTransaction(t *testing.T) {
	server := testutil.NewRPCServer(t)
	server.SetTransaction("sig1", []byte(`{"slot":100,"meta":{}}`))

	pool := newTestPool(t, &Config{Endpoints: []string{server.URL}})

	payload, err := pool.GetTransaction(context.Background(), "sig1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"slot":100,"meta":{}}`, string(payload))

	// A null result is fatal: no other endpoint will know it either.
	_, err = pool.GetTransaction(context.Background(), "unknown")
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}
