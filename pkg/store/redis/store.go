// Package redis implements the record store on Redis, for deployments
// already carrying Redis for the tracker queue. Signatures and details
// live in per-subject hashes with a sorted set keeping slot order.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/solwatch/soltrail/pkg/observability"
	"github.com/solwatch/soltrail/pkg/store"
)

// Store implements store.Store over a Redis client.
type Store struct {
	log    logrus.FieldLogger
	client *redis.Client
	prefix string
}

// New creates a Redis-backed store from an existing client. The prefix
// namespaces every key.
func New(log logrus.FieldLogger, client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "soltrail"
	}

	return &Store{
		log:    log.WithField("component", "store-redis"),
		client: client,
		prefix: prefix,
	}
}

// Open connects to Redis using the backend config and verifies the
// connection.
func Open(ctx context.Context, log logrus.FieldLogger, cfg *store.RedisConfig) (*Store, error) {
	if cfg.URL == "" {
		return nil, store.ErrRedisURLRequired
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return New(log, client, cfg.Prefix), nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) sigKey(subject string) string     { return s.prefix + ":sigs:" + subject }
func (s *Store) slotKey(subject string) string    { return s.prefix + ":slots:" + subject }
func (s *Store) detailKey(subject string) string  { return s.prefix + ":details:" + subject }
func (s *Store) pendingKey(subject string) string { return s.prefix + ":pending:" + subject }
func (s *Store) cursorKey(subject string) string  { return s.prefix + ":cursor:" + subject }
func (s *Store) trackedKey() string               { return s.prefix + ":tracked" }

func (s *Store) record(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	observability.RecordStoreOperation(store.BackendRedis, op, status)
}

// detailRow is the stored wire form of a DetailRecord.
type detailRow struct {
	Payload    json.RawMessage    `json:"payload,omitempty"`
	Status     store.DetailStatus `json:"status"`
	RetryCount int                `json:"retry_count"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// sigRow is the stored wire form of a SignatureRecord.
type sigRow struct {
	Slot      uint64    `json:"slot"`
	BlockTime *int64    `json:"block_time,omitempty"`
	Err       string    `json:"err,omitempty"`
	Memo      string    `json:"memo,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// GetCursor returns the subject's cursor, or (nil, nil) when unknown.
func (s *Store) GetCursor(ctx context.Context, subject string) (cursor *store.SubjectCursor, err error) {
	defer func() { s.record("get_cursor", err) }()

	if subject == "" {
		return nil, store.ErrSubjectRequired
	}

	data, err := s.client.Get(ctx, s.cursorKey(subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil //nolint:nilnil // absence is not an error
		}

		return nil, store.NewStorageError("get_cursor", err)
	}

	var c store.SubjectCursor
	if err = json.Unmarshal([]byte(data), &c); err != nil {
		return nil, store.NewStorageError("get_cursor", err)
	}

	return &c, nil
}

// UpsertSignatures inserts newly listed signatures and their pending
// detail rows, then advances the cursor.
func (s *Store) UpsertSignatures(ctx context.Context, subject string, records []store.SignatureRecord) (inserted int, err error) {
	defer func() { s.record("upsert_signatures", err) }()

	if subject == "" {
		return 0, store.ErrSubjectRequired
	}

	if len(records) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()

	var (
		newestSlot uint64
		newestSig  string
	)

	for _, rec := range records {
		if rec.Signature == "" {
			err = store.ErrSignatureRequired

			return 0, err
		}

		fetchedAt := rec.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = now
		}

		sigData, marshalErr := json.Marshal(sigRow{
			Slot:      rec.Slot,
			BlockTime: rec.BlockTime,
			Err:       rec.Err,
			Memo:      rec.Memo,
			FetchedAt: fetchedAt,
		})
		if marshalErr != nil {
			err = store.NewStorageError("upsert_signatures", marshalErr)

			return 0, err
		}

		added, setErr := s.client.HSetNX(ctx, s.sigKey(subject), rec.Signature, sigData).Result()
		if setErr != nil {
			err = store.NewStorageError("upsert_signatures", setErr)

			return 0, err
		}

		if added {
			inserted++

			member := redis.Z{Score: float64(rec.Slot), Member: rec.Signature}
			if zErr := s.client.ZAdd(ctx, s.slotKey(subject), member).Err(); zErr != nil {
				err = store.NewStorageError("upsert_signatures", zErr)

				return 0, err
			}

			if pErr := s.putDetailRow(ctx, subject, rec.Signature, detailRow{Status: store.DetailStatusPending, UpdatedAt: now}); pErr != nil {
				err = pErr

				return 0, err
			}

			if zErr := s.client.ZAdd(ctx, s.pendingKey(subject), member).Err(); zErr != nil {
				err = store.NewStorageError("upsert_signatures", zErr)

				return 0, err
			}
		}

		if rec.Slot > newestSlot || newestSig == "" {
			newestSlot = rec.Slot
			newestSig = rec.Signature
		}
	}

	if err = s.advanceCursor(ctx, subject, newestSig, newestSlot, inserted, now); err != nil {
		return 0, err
	}

	return inserted, nil
}

func (s *Store) advanceCursor(ctx context.Context, subject, newestSig string, newestSlot uint64, inserted int, now time.Time) error {
	cursor, err := s.GetCursor(ctx, subject)
	if err != nil {
		return err
	}

	next := store.SubjectCursor{
		Subject:         subject,
		NewestSignature: newestSig,
		NewestSlot:      newestSlot,
		LastSyncedAt:    now,
	}

	if cursor != nil {
		next.TotalSynced = cursor.TotalSynced

		// Never regress the frontier.
		if newestSlot <= cursor.NewestSlot {
			next.NewestSignature = cursor.NewestSignature
			next.NewestSlot = cursor.NewestSlot
		}
	}

	next.TotalSynced += uint64(inserted) //nolint:gosec // inserted is non-negative

	data, err := json.Marshal(next)
	if err != nil {
		return store.NewStorageError("advance_cursor", err)
	}

	if err := s.client.Set(ctx, s.cursorKey(subject), data, 0).Err(); err != nil {
		return store.NewStorageError("advance_cursor", err)
	}

	return nil
}

func (s *Store) getDetailRow(ctx context.Context, subject, signature string) (*detailRow, error) {
	data, err := s.client.HGet(ctx, s.detailKey(subject), signature).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil //nolint:nilnil // absence is not an error
		}

		return nil, store.NewStorageError("get_detail", err)
	}

	var row detailRow
	if err := json.Unmarshal([]byte(data), &row); err != nil {
		return nil, store.NewStorageError("get_detail", err)
	}

	return &row, nil
}

func (s *Store) putDetailRow(ctx context.Context, subject, signature string, row detailRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return store.NewStorageError("put_detail", err)
	}

	if err := s.client.HSet(ctx, s.detailKey(subject), signature, data).Err(); err != nil {
		return store.NewStorageError("put_detail", err)
	}

	return nil
}

// ListPendingDetails returns retry-eligible detail signatures, oldest
// slot first.
func (s *Store) ListPendingDetails(ctx context.Context, subject string, limit, maxRetries int) (sigs []string, err error) {
	defer func() { s.record("list_pending_details", err) }()

	if subject == "" {
		return nil, store.ErrSubjectRequired
	}

	candidates, err := s.client.ZRange(ctx, s.pendingKey(subject), 0, -1).Result()
	if err != nil {
		return nil, store.NewStorageError("list_pending_details", err)
	}

	for _, sig := range candidates {
		if len(sigs) == limit {
			break
		}

		row, rowErr := s.getDetailRow(ctx, subject, sig)
		if rowErr != nil {
			err = rowErr

			return nil, err
		}

		if row == nil || row.Status == store.DetailStatusFetched {
			continue
		}

		if row.RetryCount < maxRetries {
			sigs = append(sigs, sig)
		}
	}

	return sigs, nil
}

// UpsertDetail stores a successfully fetched payload.
func (s *Store) UpsertDetail(ctx context.Context, subject, signature string, payload json.RawMessage) (err error) {
	defer func() { s.record("upsert_detail", err) }()

	if subject == "" {
		return store.ErrSubjectRequired
	}

	if signature == "" {
		return store.ErrSignatureRequired
	}

	if len(payload) == 0 {
		return store.ErrEmptyPayload
	}

	row, err := s.getDetailRow(ctx, subject, signature)
	if err != nil {
		return err
	}

	if row == nil {
		return fmt.Errorf("%w: %s", store.ErrDetailNotFound, signature)
	}

	row.Payload = payload
	row.Status = store.DetailStatusFetched
	row.UpdatedAt = time.Now().UTC()

	if err = s.putDetailRow(ctx, subject, signature, *row); err != nil {
		return err
	}

	if err = s.client.ZRem(ctx, s.pendingKey(subject), signature).Err(); err != nil {
		return store.NewStorageError("upsert_detail", err)
	}

	return nil
}

// MarkDetailFailed increments the retry counter. A fetched detail is
// never demoted.
func (s *Store) MarkDetailFailed(ctx context.Context, subject, signature string) (err error) {
	defer func() { s.record("mark_detail_failed", err) }()

	if subject == "" {
		return store.ErrSubjectRequired
	}

	if signature == "" {
		return store.ErrSignatureRequired
	}

	row, err := s.getDetailRow(ctx, subject, signature)
	if err != nil {
		return err
	}

	if row == nil {
		return fmt.Errorf("%w: %s", store.ErrDetailNotFound, signature)
	}

	if row.Status == store.DetailStatusFetched {
		return nil
	}

	row.Status = store.DetailStatusFailed
	row.RetryCount++
	row.UpdatedAt = time.Now().UTC()

	return s.putDetailRow(ctx, subject, signature, *row)
}

// GetDetail returns one detail record, or (nil, nil) when absent.
func (s *Store) GetDetail(ctx context.Context, subject, signature string) (detail *store.DetailRecord, err error) {
	defer func() { s.record("get_detail", err) }()

	if subject == "" {
		return nil, store.ErrSubjectRequired
	}

	row, err := s.getDetailRow(ctx, subject, signature)
	if err != nil {
		return nil, err
	}

	if row == nil {
		return nil, nil //nolint:nilnil // absence is not an error
	}

	return &store.DetailRecord{
		Subject:    subject,
		Signature:  signature,
		Payload:    row.Payload,
		Status:     row.Status,
		RetryCount: row.RetryCount,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

// Stats returns cache counters for a subject.
func (s *Store) Stats(ctx context.Context, subject string) (stats store.CacheStats, err error) {
	defer func() { s.record("stats", err) }()

	if subject == "" {
		return store.CacheStats{}, store.ErrSubjectRequired
	}

	count, err := s.client.HLen(ctx, s.sigKey(subject)).Result()
	if err != nil {
		return store.CacheStats{}, store.NewStorageError("stats", err)
	}

	stats.SignatureCount = int(count)

	rows, err := s.client.HVals(ctx, s.detailKey(subject)).Result()
	if err != nil {
		return store.CacheStats{}, store.NewStorageError("stats", err)
	}

	for _, data := range rows {
		var row detailRow
		if err = json.Unmarshal([]byte(data), &row); err != nil {
			return store.CacheStats{}, store.NewStorageError("stats", err)
		}

		switch row.Status {
		case store.DetailStatusFetched:
			stats.FetchedCount++
		case store.DetailStatusFailed:
			stats.FailedCount++
		case store.DetailStatusPending:
			stats.PendingCount++
		}
	}

	return stats, nil
}

// Purge removes the subject's signatures, details and cursor.
func (s *Store) Purge(ctx context.Context, subject string) (err error) {
	defer func() { s.record("purge", err) }()

	if subject == "" {
		return store.ErrSubjectRequired
	}

	keys := []string{
		s.sigKey(subject),
		s.slotKey(subject),
		s.detailKey(subject),
		s.pendingKey(subject),
		s.cursorKey(subject),
	}

	if err = s.client.Del(ctx, keys...).Err(); err != nil {
		return store.NewStorageError("purge", err)
	}

	return nil
}

// TrackSubject adds or updates a subject in the tracked set.
func (s *Store) TrackSubject(ctx context.Context, subject store.TrackedSubject) (err error) {
	defer func() { s.record("track_subject", err) }()

	if subject.Subject == "" {
		return store.ErrSubjectRequired
	}

	if subject.AddedAt.IsZero() {
		subject.AddedAt = time.Now().UTC()
	}

	// Keep the original added_at on re-track so ordering is stable.
	existing, err := s.client.HGet(ctx, s.trackedKey(), subject.Subject).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return store.NewStorageError("track_subject", err)
	}

	if err == nil {
		var prev store.TrackedSubject
		if unmarshalErr := json.Unmarshal([]byte(existing), &prev); unmarshalErr == nil && !prev.AddedAt.IsZero() {
			subject.AddedAt = prev.AddedAt
		}
	}

	data, err := json.Marshal(subject)
	if err != nil {
		return store.NewStorageError("track_subject", err)
	}

	if err = s.client.HSet(ctx, s.trackedKey(), subject.Subject, data).Err(); err != nil {
		return store.NewStorageError("track_subject", err)
	}

	return nil
}

// UntrackSubject removes a subject from the tracked set.
func (s *Store) UntrackSubject(ctx context.Context, subject string) (err error) {
	defer func() { s.record("untrack_subject", err) }()

	if subject == "" {
		return store.ErrSubjectRequired
	}

	if err = s.client.HDel(ctx, s.trackedKey(), subject).Err(); err != nil {
		return store.NewStorageError("untrack_subject", err)
	}

	return nil
}

// ListTrackedSubjects returns the tracked set, oldest first.
func (s *Store) ListTrackedSubjects(ctx context.Context) (subjects []store.TrackedSubject, err error) {
	defer func() { s.record("list_tracked_subjects", err) }()

	rows, err := s.client.HVals(ctx, s.trackedKey()).Result()
	if err != nil {
		return nil, store.NewStorageError("list_tracked_subjects", err)
	}

	for _, data := range rows {
		var sub store.TrackedSubject
		if err = json.Unmarshal([]byte(data), &sub); err != nil {
			return nil, store.NewStorageError("list_tracked_subjects", err)
		}

		subjects = append(subjects, sub)
	}

	sort.Slice(subjects, func(i, j int) bool {
		if !subjects[i].AddedAt.Equal(subjects[j].AddedAt) {
			return subjects[i].AddedAt.Before(subjects[j].AddedAt)
		}

		return subjects[i].Subject < subjects[j].Subject
	})

	return subjects, nil
}

// Ensure Store implements the interface
var _ store.Store = (*Store)(nil)
