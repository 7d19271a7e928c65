package api

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/solwatch/soltrail/pkg/store"
)

// ErrSyncUnavailable is returned when the sync queue is not running
var ErrSyncUnavailable = fiber.NewError(fiber.StatusServiceUnavailable, "sync queue is not available")

func (s *service) handleHealthz(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

// handleListSubjects handles GET /api/v1/subjects
func (s *service) handleListSubjects(c fiber.Ctx) error {
	tracked, err := s.store.ListTrackedSubjects(c.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list tracked subjects")

		return fiber.ErrInternalServerError
	}

	subjects := make([]SubjectSummary, 0, len(tracked))
	for _, t := range tracked {
		subjects = append(subjects, SubjectSummary{
			Address: t.Subject,
			AddedAt: t.AddedAt,
			Label:   t.Label,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"subjects": subjects,
		"total":    len(subjects),
	})
}

// handleTrackSubject handles POST /api/v1/subjects/:address
func (s *service) handleTrackSubject(c fiber.Ctx) error {
	address := c.Params("address")

	subject := store.TrackedSubject{
		Subject: address,
		Label:   c.Query("label"),
		AddedAt: time.Now().UTC(),
		Enabled: true,
	}

	if err := s.store.TrackSubject(c.Context(), subject); err != nil {
		s.log.WithError(err).WithField("address", address).Error("Failed to track subject")

		return fiber.ErrInternalServerError
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"address": address, "status": "tracked"})
}

// handleUntrackSubject handles DELETE /api/v1/subjects/:address
func (s *service) handleUntrackSubject(c fiber.Ctx) error {
	address := c.Params("address")

	if err := s.store.UntrackSubject(c.Context(), address); err != nil {
		s.log.WithError(err).WithField("address", address).Error("Failed to untrack subject")

		return fiber.ErrInternalServerError
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"address": address, "status": "untracked"})
}

// handleSubjectStats handles GET /api/v1/subjects/:address/stats
func (s *service) handleSubjectStats(c fiber.Ctx) error {
	address := c.Params("address")

	stats, err := s.fetcher.CacheStats(c.Context(), address)
	if err != nil {
		s.log.WithError(err).WithField("address", address).Error("Failed to read cache stats")

		return fiber.ErrInternalServerError
	}

	response := SubjectStats{
		Address: address,
		Cache:   stats,
	}

	cursor, err := s.store.GetCursor(c.Context(), address)
	if err != nil {
		s.log.WithError(err).WithField("address", address).Error("Failed to read cursor")

		return fiber.ErrInternalServerError
	}

	if cursor != nil {
		response.Cursor = &CursorView{
			NewestSignature: cursor.NewestSignature,
			NewestSlot:      cursor.NewestSlot,
			LastSyncedAt:    cursor.LastSyncedAt,
			TotalSynced:     cursor.TotalSynced,
		}
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// handleSyncSubject handles POST /api/v1/subjects/:address/sync
func (s *service) handleSyncSubject(c fiber.Ctx) error {
	if s.tracker == nil {
		return ErrSyncUnavailable
	}

	address := c.Params("address")
	force := c.Query("force") == "true"

	runID, err := s.tracker.EnqueueSync(c.Context(), address, force)
	if err != nil {
		s.log.WithError(err).WithField("address", address).Error("Failed to enqueue sync")

		return fiber.ErrInternalServerError
	}

	s.log.WithFields(logrus.Fields{
		"address": address,
		"run_id":  runID,
		"force":   force,
	}).Info("Sync requested via API")

	return c.Status(fiber.StatusAccepted).JSON(SyncAccepted{RunID: runID, Status: "queued"})
}

// handleListEndpoints handles GET /api/v1/endpoints
func (s *service) handleListEndpoints(c fiber.Ctx) error {
	snapshot := s.rpc.Health()

	endpoints := make([]EndpointStatus, 0, len(snapshot))
	for _, e := range snapshot {
		endpoints = append(endpoints, EndpointStatus{
			URL:                 e.URL,
			Attempts:            e.Attempts,
			Successes:           e.Successes,
			Failures:            e.Failures,
			ConsecutiveFailures: e.ConsecutiveFailures,
			LastLatencyMs:       e.LastLatency.Milliseconds(),
			LastFailure:         e.LastFailure,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"endpoints": endpoints,
		"total":     len(endpoints),
	})
}
