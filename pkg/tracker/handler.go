package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/solwatch/soltrail/pkg/events"
	"github.com/solwatch/soltrail/pkg/fetcher"
	"github.com/solwatch/soltrail/pkg/observability"
)

// SyncHandler executes queued subject sync tasks
type SyncHandler struct {
	log     logrus.FieldLogger
	fetcher fetcher.Service
	events  events.Publisher
}

// NewSyncHandler creates a new sync task handler
func NewSyncHandler(log logrus.FieldLogger, fetcherService fetcher.Service, publisher events.Publisher) *SyncHandler {
	return &SyncHandler{
		log:     log.WithField("component", "sync-handler"),
		fetcher: fetcherService,
		events:  publisher,
	}
}

// HandleSync runs one subject sync and publishes the completion event
func (h *SyncHandler) HandleSync(ctx context.Context, t *asynq.Task) error {
	var payload SyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	log := h.log.WithFields(logrus.Fields{
		"subject": payload.Subject,
		"trigger": payload.Trigger,
		"run_id":  payload.RunID,
	})

	log.Info("Starting subject sync")

	start := time.Now()

	result, err := h.fetcher.FetchIncremental(ctx, payload.Subject, fetcher.FetchOptions{
		Limit:        payload.Limit,
		ForceRefresh: payload.Force,
	})

	duration := time.Since(start)

	if err != nil {
		observability.RecordSyncRun(payload.Trigger, "failed", duration.Seconds())

		return fmt.Errorf("sync failed: %w", err)
	}

	observability.RecordSyncRun(payload.Trigger, "success", duration.Seconds())

	event := events.SyncCompleted{
		Subject:       payload.Subject,
		RunID:         payload.RunID,
		Trigger:       payload.Trigger,
		NewSignatures: result.NewSignatureCount,
		Fetched:       len(result.Details),
		FailedIDs:     result.FailedIDs,
		Duration:      duration.String(),
		CompletedAt:   time.Now().UTC(),
	}

	if err := h.events.PublishSyncCompleted(ctx, event); err != nil {
		// The sync itself succeeded; a lost notification is not worth
		// re-running it.
		log.WithError(err).Warn("Failed to publish sync completion event")
	}

	log.WithFields(logrus.Fields{
		"new_signatures": result.NewSignatureCount,
		"fetched":        len(result.Details),
		"failed":         len(result.FailedIDs),
		"duration":       duration,
	}).Info("Subject sync completed")

	return nil
}

// Routes returns the task handler routes for Asynq
func (h *SyncHandler) Routes() map[string]asynq.HandlerFunc {
	return map[string]asynq.HandlerFunc{
		TypeSubjectSync: h.HandleSync,
	}
}
