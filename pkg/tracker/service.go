package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/solwatch/soltrail/pkg/observability"
	r "github.com/solwatch/soltrail/pkg/redis"
	"github.com/solwatch/soltrail/pkg/store"
)

// Service defines the public interface for the tracker service
type Service interface {
	// Start begins the sync worker and the periodic ticker
	Start(ctx context.Context) error

	// Stop gracefully shuts down the tracker service
	Stop() error

	// EnqueueSync queues an on-demand sync for a subject and returns
	// the run ID. A sync already queued for the subject is reused.
	EnqueueSync(ctx context.Context, subject string, force bool) (string, error)
}

type service struct {
	log     logrus.FieldLogger
	config  *Config
	store   store.Store
	handler *SyncHandler

	redisOpt *redis.Options
	client   *asynq.Client
	server   *asynq.Server

	interval time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// NewService creates a new tracker service
func NewService(log logrus.FieldLogger, cfg *Config, st store.Store, handler *SyncHandler, redisOpt *redis.Options) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	interval, err := parseScheduleInterval(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	return &service{
		log:      log.WithField("service", "tracker"),
		config:   cfg,
		store:    st,
		handler:  handler,
		redisOpt: redisOpt,
		interval: interval,
		done:     make(chan struct{}),
	}, nil
}

// Start begins the sync worker and the periodic ticker
func (s *service) Start(ctx context.Context) error {
	s.client = asynq.NewClient(r.NewAsynqRedisOptions(s.redisOpt))

	srv := asynq.NewServer(r.NewAsynqRedisOptions(s.redisOpt), asynq.Config{
		Concurrency: s.config.Concurrency,
		Queues:      map[string]int{QueueSync: 10},
	})

	mux := asynq.NewServeMux()
	for taskType, handlerFunc := range s.handler.Routes() {
		mux.HandleFunc(taskType, handlerFunc)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		if runErr := srv.Run(mux); runErr != nil {
			s.log.WithError(runErr).Error("Sync worker stopped with error")
		}
	}()

	s.server = srv

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.tickerLoop(ctx)
	}()

	s.log.WithFields(logrus.Fields{
		"schedule":    s.config.Schedule,
		"concurrency": s.config.Concurrency,
	}).Info("Tracker service started")

	return nil
}

// Stop gracefully shuts down the tracker service
func (s *service) Stop() error {
	close(s.done)

	if s.server != nil {
		s.server.Shutdown()
	}

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.log.WithError(err).Warn("Failed to close queue client")
		}
	}

	s.wg.Wait()

	s.log.Info("Tracker service stopped")

	return nil
}

// EnqueueSync queues an on-demand sync for a subject
func (s *service) EnqueueSync(ctx context.Context, subject string, force bool) (string, error) {
	if subject == "" {
		return "", store.ErrSubjectRequired
	}

	payload := SyncPayload{
		Subject:    subject,
		Limit:      s.config.Limit,
		Force:      force,
		Trigger:    TriggerAPI,
		RunID:      uuid.New().String(),
		EnqueuedAt: time.Now().UTC(),
	}

	if err := s.enqueue(ctx, payload); err != nil {
		return "", err
	}

	return payload.RunID, nil
}

// tickerLoop enqueues a sync for every tracked subject once per
// schedule interval. The first pass runs immediately so a fresh daemon
// does not wait a full interval before its first sync.
func (s *service) tickerLoop(ctx context.Context) {
	s.enqueueTracked(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.enqueueTracked(ctx)
		}
	}
}

func (s *service) enqueueTracked(ctx context.Context) {
	subjects, err := s.store.ListTrackedSubjects(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to list tracked subjects, will retry next tick")

		return
	}

	for _, subject := range subjects {
		if !subject.Enabled {
			continue
		}

		payload := SyncPayload{
			Subject:    subject.Subject,
			Limit:      s.config.Limit,
			Trigger:    TriggerScheduled,
			RunID:      uuid.New().String(),
			EnqueuedAt: time.Now().UTC(),
		}

		if err := s.enqueue(ctx, payload); err != nil {
			s.log.WithError(err).WithField("subject", subject.Subject).Error("Failed to enqueue scheduled sync")
		}
	}
}

func (s *service) enqueue(ctx context.Context, payload SyncPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		observability.RecordTaskEnqueued("error")

		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	task := asynq.NewTask(TypeSubjectSync, data)

	opts := []asynq.Option{
		asynq.TaskID(payload.TaskID()),
		asynq.Queue(QueueSync),
		asynq.MaxRetry(0),
		asynq.Timeout(s.config.TaskTimeout),
	}

	info, err := s.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		// A queued sync for this subject already covers this request.
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			observability.RecordTaskEnqueued("duplicate")

			s.log.WithField("subject", payload.Subject).Debug("Sync already queued, skipping")

			return nil
		}

		observability.RecordTaskEnqueued("error")

		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	observability.RecordTaskEnqueued("enqueued")

	s.log.WithFields(logrus.Fields{
		"subject":  payload.Subject,
		"trigger":  payload.Trigger,
		"run_id":   payload.RunID,
		"asynq_id": info.ID,
	}).Info("Enqueued sync task")

	return nil
}

// Ensure service implements the interface
var _ Service = (*service)(nil)
