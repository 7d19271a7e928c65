package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/solwatch/soltrail/pkg/store"
	redisstore "github.com/solwatch/soltrail/pkg/store/redis"
	"github.com/solwatch/soltrail/pkg/store/sqlite"
)

// openStore opens the configured record store backend.
func openStore(ctx context.Context, log logrus.FieldLogger, cfg *store.Config) (store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}

	switch cfg.Backend {
	case store.BackendRedis:
		return redisstore.Open(ctx, log, &cfg.Redis)
	default:
		return sqlite.Open(log, &cfg.SQLite)
	}
}

func closeStore(log logrus.FieldLogger, st store.Store) {
	if err := st.Close(); err != nil {
		log.WithError(err).Warn("Failed to close record store")
	}
}
