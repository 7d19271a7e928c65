package redis

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solwatch/soltrail/internal/testutil"
	"github.com/solwatch/soltrail/pkg/store"
	"github.com/solwatch/soltrail/pkg/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()

		_, client := testutil.NewMiniredisClient(t)

		return New(logrus.New(), client, "soltrail-test")
	})
}

func TestOpenRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), logrus.New(), &store.RedisConfig{})
	require.ErrorIs(t, err, store.ErrRedisURLRequired)
}

func TestOpenConnects(t *testing.T) {
	mr := testutil.NewMiniredis(t)

	s, err := Open(context.Background(), logrus.New(), &store.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Logf("failed to close store: %v", err)
		}
	})

	_, err = s.UpsertSignatures(context.Background(), "subj", []store.SignatureRecord{
		{Subject: "subj", Signature: "sig1", Slot: 100},
	})
	require.NoError(t, err)

	stats, err := s.Stats(context.Background(), "subj")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SignatureCount)
}

func TestPrefixIsolation(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)

	a := New(logrus.New(), client, "a")
	b := New(logrus.New(), client, "b")

	_, err := a.UpsertSignatures(context.Background(), "subj", []store.SignatureRecord{
		{Subject: "subj", Signature: "sig1", Slot: 100},
	})
	require.NoError(t, err)

	stats, err := b.Stats(context.Background(), "subj")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.SignatureCount, "prefixes keep stores disjoint")
}
