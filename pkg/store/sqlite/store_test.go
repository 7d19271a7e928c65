package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solwatch/soltrail/pkg/store"
	"github.com/solwatch/soltrail/pkg/store/storetest"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(logrus.New(), &store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "soltrail.db")})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Logf("failed to close store: %v", err)
		}
	})

	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()

		return openTempStore(t)
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(logrus.New(), &store.SQLiteConfig{})
	require.ErrorIs(t, err, store.ErrPathRequired)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soltrail.db")

	s1, err := Open(logrus.New(), &store.SQLiteConfig{Path: path})
	require.NoError(t, err)

	_, err = s1.UpsertSignatures(context.Background(), "subj", []store.SignatureRecord{
		{Subject: "subj", Signature: "sig1", Slot: 100},
	})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// Reopening applies no migrations twice and keeps the data.
	s2, err := Open(logrus.New(), &store.SQLiteConfig{Path: path})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := s2.Close(); err != nil {
			t.Logf("failed to close store: %v", err)
		}
	})

	stats, err := s2.Stats(context.Background(), "subj")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SignatureCount)
}

func TestSubjectIsRequired(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	_, err := s.GetCursor(ctx, "")
	assert.ErrorIs(t, err, store.ErrSubjectRequired)

	_, err = s.UpsertSignatures(ctx, "", nil)
	assert.ErrorIs(t, err, store.ErrSubjectRequired)

	err = s.Purge(ctx, "")
	assert.ErrorIs(t, err, store.ErrSubjectRequired)
}
