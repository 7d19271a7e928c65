package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // pprof is intentionally exposed when pprofAddr is configured
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/solwatch/soltrail/pkg/api"
	"github.com/solwatch/soltrail/pkg/events"
	"github.com/solwatch/soltrail/pkg/fetcher"
	"github.com/solwatch/soltrail/pkg/observability"
	"github.com/solwatch/soltrail/pkg/solana"
	"github.com/solwatch/soltrail/pkg/store"
	redisstore "github.com/solwatch/soltrail/pkg/store/redis"
	"github.com/solwatch/soltrail/pkg/store/sqlite"
	"github.com/solwatch/soltrail/pkg/tracker"
)

// Service encapsulates the daemon application logic
type Service struct {
	config *Config
	log    *logrus.Logger

	pool    solana.ClientInterface
	store   store.Store
	fetcher fetcher.Service
	events  events.Publisher
	tracker tracker.Service
	api     api.Service

	// Servers
	healthServer *http.Server
	pprofServer  *http.Server

	redisOptions *redis.Options
	redisClient  *redis.Client
}

// NewService creates a new daemon application
func NewService(log *logrus.Logger, cfg *Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	redisOptions, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisClient := redis.NewClient(redisOptions)

	st, err := openStore(log, &cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	pool, err := solana.NewPool(log, &cfg.Solana)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC pool: %w", err)
	}

	fetcherService, err := fetcher.NewService(log, &cfg.Fetcher, st, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher service: %w", err)
	}

	publisher, err := events.NewPublisher(log, &cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}

	handler := tracker.NewSyncHandler(log, fetcherService, publisher)

	trackerService, err := tracker.NewService(log, &cfg.Tracker, st, handler, redisOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracker service: %w", err)
	}

	apiService := api.NewService(&cfg.API, st, fetcherService, trackerService, pool, log)

	return &Service{
		log:    log,
		config: cfg,

		redisOptions: redisOptions,
		redisClient:  redisClient,
		pool:         pool,
		store:        st,
		fetcher:      fetcherService,
		events:       publisher,
		tracker:      trackerService,
		api:          apiService,
	}, nil
}

func openStore(log *logrus.Logger, cfg *store.Config) (store.Store, error) {
	switch cfg.Backend {
	case store.BackendRedis:
		return redisstore.Open(context.Background(), log, &cfg.Redis)
	default:
		return sqlite.Open(log, &cfg.SQLite)
	}
}

// Start initializes and starts the daemon
func (a *Service) Start() error {
	a.log.Info("Starting soltrail engine...")

	ctx := context.Background()

	observability.StartMetricsServer(a.config.MetricsAddr)
	a.log.WithField("addr", a.config.MetricsAddr).Info("Started metrics server")

	if a.config.HealthCheckAddr != "" {
		a.startHealthCheck()
	}

	if a.config.PProfAddr != "" {
		a.startPProf()
	}

	if err := a.pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start RPC pool: %w", err)
	}

	if err := a.tracker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start tracker: %w", err)
	}

	if err := a.api.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API service: %w", err)
	}

	a.log.Info("soltrail engine started successfully")

	return nil
}

// Stop gracefully shuts down the daemon
func (a *Service) Stop() error {
	a.log.Info("Shutting down engine...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopService := func(name string, stopFunc func() error) {
		if stopFunc == nil {
			return
		}

		if err := stopFunc(); err != nil {
			a.log.WithError(err).Errorf("Failed to stop %s", name)
		}
	}

	// Stop the tracker first so no new syncs start, then the API, then
	// the supporting clients.
	if a.tracker != nil {
		stopService("tracker service", a.tracker.Stop)
	}

	if a.api != nil {
		stopService("API service", a.api.Stop)
	}

	if a.events != nil {
		stopService("event publisher", a.events.Close)
	}

	if a.redisClient != nil {
		stopService("Redis client", a.redisClient.Close)
	}

	if a.pool != nil {
		stopService("RPC pool", a.pool.Stop)
	}

	// Close the store last (critical - return error if fails)
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Error("Failed to close record store")

			return err
		}
	}

	if a.healthServer != nil {
		stopService("health check server", func() error { return a.healthServer.Shutdown(ctx) })
	}

	if a.pprofServer != nil {
		stopService("pprof server", func() error { return a.pprofServer.Shutdown(ctx) })
	}

	return nil
}

func (a *Service) startHealthCheck() {
	a.log.WithField("addr", a.config.HealthCheckAddr).Info("Starting health check server")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	a.healthServer = &http.Server{
		Addr:              a.config.HealthCheckAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := a.healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("Health check server failed")
		}
	}()
}

func (a *Service) startPProf() {
	a.log.WithField("addr", a.config.PProfAddr).Info("Starting pprof server")

	a.pprofServer = &http.Server{
		Addr:              a.config.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	go func() {
		if err := a.pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("Pprof server failed")
		}
	}()
}
