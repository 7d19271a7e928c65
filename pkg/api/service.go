package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/sirupsen/logrus"

	"github.com/solwatch/soltrail/pkg/fetcher"
	"github.com/solwatch/soltrail/pkg/solana"
	"github.com/solwatch/soltrail/pkg/store"
	"github.com/solwatch/soltrail/pkg/tracker"
)

// Service defines the API service interface
type Service interface {
	Start(ctx context.Context) error
	Stop() error
}

type service struct {
	app     *fiber.App
	server  *http.Server
	config  *Config
	store   store.Store
	fetcher fetcher.Service
	tracker tracker.Service
	rpc     solana.ClientInterface
	log     logrus.FieldLogger
}

// NewService creates a new API service
func NewService(cfg *Config, st store.Store, fetcherService fetcher.Service, trackerService tracker.Service, rpc solana.ClientInterface, log logrus.FieldLogger) Service {
	return &service{
		config:  cfg,
		store:   st,
		fetcher: fetcherService,
		tracker: trackerService,
		rpc:     rpc,
		log:     log.WithField("service", "api"),
	}
}

// Start initializes and starts the API server
func (s *service) Start(_ context.Context) error {
	if !s.config.Enabled {
		s.log.Info("API service is disabled")

		return nil
	}

	// Create Fiber app with custom error handler
	s.app = fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		AppName:      "soltrail API",
	})

	setupMiddleware(s.app)

	s.registerRoutes(s.app)

	// Create HTTP server with the Fiber app
	fiberHandler := adaptor.FiberApp(s.app)
	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           fiberHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.WithField("addr", s.config.Addr).Info("Starting API server")

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Server failed to start")
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server
func (s *service) Stop() error {
	if s.server == nil {
		return nil
	}

	s.log.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

func (s *service) registerRoutes(app *fiber.App) {
	app.Get("/healthz", s.handleHealthz)

	apiV1 := app.Group("/api/v1")

	apiV1.Get("/subjects", s.handleListSubjects)
	apiV1.Post("/subjects/:address", s.handleTrackSubject)
	apiV1.Delete("/subjects/:address", s.handleUntrackSubject)
	apiV1.Get("/subjects/:address/stats", s.handleSubjectStats)
	apiV1.Post("/subjects/:address/sync", s.handleSyncSubject)
	apiV1.Get("/endpoints", s.handleListEndpoints)
}

// Ensure service implements the interface
var _ Service = (*service)(nil)
