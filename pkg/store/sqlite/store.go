// Package sqlite implements the record store on an embedded SQLite
// database (pure-Go driver, WAL journal). The default backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // database/sql driver

	"github.com/solwatch/soltrail/pkg/observability"
	"github.com/solwatch/soltrail/pkg/store"
)

// Store implements store.Store over a single SQLite file.
type Store struct {
	log logrus.FieldLogger
	db  *sql.DB
}

// Open opens (creating if needed) the SQLite store at path and applies
// schema migrations.
func Open(log logrus.FieldLogger, cfg *store.SQLiteConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, store.ErrPathRequired
	}

	dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		log: log.WithField("component", "store-sqlite"),
		db:  db,
	}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func (s *Store) record(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	observability.RecordStoreOperation(store.BackendSQLite, op, status)
}

// GetCursor returns the subject's cursor, or (nil, nil) when unknown.
func (s *Store) GetCursor(ctx context.Context, subject string) (cursor *store.SubjectCursor, err error) {
	defer func() { s.record("get_cursor", err) }()

	if subject == "" {
		return nil, store.ErrSubjectRequired
	}

	var (
		c          store.SubjectCursor
		lastSynced int64
	)

	row := s.db.QueryRowContext(ctx,
		`SELECT subject, newest_signature, newest_slot, last_synced_at, total_synced FROM cursors WHERE subject = ?`, subject)
	if err = row.Scan(&c.Subject, &c.NewestSignature, &c.NewestSlot, &lastSynced, &c.TotalSynced); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil // absence is not an error
		}

		return nil, store.NewStorageError("get_cursor", err)
	}

	c.LastSyncedAt = fromMillis(lastSynced)

	return &c, nil
}

// UpsertSignatures inserts newly listed signatures and their pending
// detail rows, then advances the cursor. The batch and the cursor
// advance commit in one transaction so partial listing progress is
// always consistent.
func (s *Store) UpsertSignatures(ctx context.Context, subject string, records []store.SignatureRecord) (inserted int, err error) {
	defer func() { s.record("upsert_signatures", err) }()

	if subject == "" {
		return 0, store.ErrSubjectRequired
	}

	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, store.NewStorageError("upsert_signatures", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := toMillis(time.Now())

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
			fetchedAt = time.Now()
		}

		res, execErr := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO signatures (subject, signature, slot, block_time, err, memo, fetched_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			subject, rec.Signature, rec.Slot, rec.BlockTime, rec.Err, rec.Memo, toMillis(fetchedAt))
		if execErr != nil {
			err = store.NewStorageError("upsert_signatures", execErr)

			return 0, err
		}

		n, raErr := res.RowsAffected()
		if raErr != nil {
			err = store.NewStorageError("upsert_signatures", raErr)

			return 0, err
		}

		if n > 0 {
			inserted++

			if _, execErr := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO details (subject, signature, status, updated_at) VALUES (?, ?, ?, ?)`,
				subject, rec.Signature, store.DetailStatusPending, now); execErr != nil {
				err = store.NewStorageError("upsert_signatures", execErr)

				return 0, err
			}
		}

		if rec.Slot > newestSlot || newestSig == "" {
			newestSlot = rec.Slot
			newestSig = rec.Signature
		}
	}

	if err = s.advanceCursorTx(ctx, tx, subject, newestSig, newestSlot, inserted, now); err != nil {
		return 0, err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		err = store.NewStorageError("upsert_signatures", commitErr)

		return 0, err
	}

	return inserted, nil
}

// advanceCursorTx moves the cursor forward, never backward.
func (s *Store) advanceCursorTx(ctx context.Context, tx *sql.Tx, subject, newestSig string, newestSlot uint64, inserted int, now int64) error {
	var (
		currentSlot  uint64
		totalSynced  uint64
		cursorExists = true
	)

	row := tx.QueryRowContext(ctx, `SELECT newest_slot, total_synced FROM cursors WHERE subject = ?`, subject)
	if err := row.Scan(&currentSlot, &totalSynced); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return store.NewStorageError("advance_cursor", err)
		}

		cursorExists = false
	}

	if cursorExists && newestSlot <= currentSlot {
		_, err := tx.ExecContext(ctx,
			`UPDATE cursors SET last_synced_at = ?, total_synced = total_synced + ? WHERE subject = ?`,
			now, inserted, subject)
		if err != nil {
			return store.NewStorageError("advance_cursor", err)
		}

		return nil
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO cursors (subject, newest_signature, newest_slot, last_synced_at, total_synced)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (subject) DO UPDATE SET
			newest_signature = excluded.newest_signature,
			newest_slot      = excluded.newest_slot,
			last_synced_at   = excluded.last_synced_at,
			total_synced     = cursors.total_synced + ?`,
		subject, newestSig, newestSlot, now, inserted, inserted)
	if err != nil {
		return store.NewStorageError("advance_cursor", err)
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

	rows, err := s.db.QueryContext(ctx,
		`SELECT d.signature
		 FROM details d
		 JOIN signatures s ON s.subject = d.subject AND s.signature = d.signature
		 WHERE d.subject = ? AND d.status IN (?, ?) AND d.retry_count < ?
		 ORDER BY s.slot ASC
		 LIMIT ?`,
		subject, store.DetailStatusPending, store.DetailStatusFailed, maxRetries, limit)
	if err != nil {
		return nil, store.NewStorageError("list_pending_details", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.log.WithError(closeErr).Debug("Failed to close rows")
		}
	}()

	for rows.Next() {
		var sig string
		if err = rows.Scan(&sig); err != nil {
			return nil, store.NewStorageError("list_pending_details", err)
		}

		sigs = append(sigs, sig)
	}

	if err = rows.Err(); err != nil {
		return nil, store.NewStorageError("list_pending_details", err)
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

	res, err := s.db.ExecContext(ctx,
		`UPDATE details SET payload = ?, status = ?, updated_at = ? WHERE subject = ? AND signature = ?`,
		[]byte(payload), store.DetailStatusFetched, toMillis(time.Now()), subject, signature)
	if err != nil {
		return store.NewStorageError("upsert_detail", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return store.NewStorageError("upsert_detail", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrDetailNotFound, signature)
	}

	return nil
}

// MarkDetailFailed increments the retry counter. A fetched detail is
// never demoted back to failed.
func (s *Store) MarkDetailFailed(ctx context.Context, subject, signature string) (err error) {
	defer func() { s.record("mark_detail_failed", err) }()

	if subject == "" {
		return store.ErrSubjectRequired
	}

	if signature == "" {
		return store.ErrSignatureRequired
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE details SET retry_count = retry_count + 1, status = ?, updated_at = ?
		 WHERE subject = ? AND signature = ? AND status != ?`,
		store.DetailStatusFailed, toMillis(time.Now()), subject, signature, store.DetailStatusFetched)
	if err != nil {
		return store.NewStorageError("mark_detail_failed", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return store.NewStorageError("mark_detail_failed", err)
	}

	if n == 0 {
		// Either already fetched (a no-op) or the row is missing.
		detail, getErr := s.GetDetail(ctx, subject, signature)
		if getErr != nil {
			return getErr
		}

		if detail == nil {
			return fmt.Errorf("%w: %s", store.ErrDetailNotFound, signature)
		}
	}

	return nil
}

// GetDetail returns one detail record, or (nil, nil) when absent.
func (s *Store) GetDetail(ctx context.Context, subject, signature string) (detail *store.DetailRecord, err error) {
	defer func() { s.record("get_detail", err) }()

	if subject == "" {
		return nil, store.ErrSubjectRequired
	}

	var (
		d         store.DetailRecord
		payload   []byte
		updatedAt int64
	)

	row := s.db.QueryRowContext(ctx,
		`SELECT subject, signature, payload, status, retry_count, updated_at FROM details WHERE subject = ? AND signature = ?`,
		subject, signature)
	if err = row.Scan(&d.Subject, &d.Signature, &payload, &d.Status, &d.RetryCount, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil // absence is not an error
		}

		return nil, store.NewStorageError("get_detail", err)
	}

	d.Payload = payload
	d.UpdatedAt = fromMillis(updatedAt)

	return &d, nil
}

// Stats returns cache counters for a subject.
func (s *Store) Stats(ctx context.Context, subject string) (stats store.CacheStats, err error) {
	defer func() { s.record("stats", err) }()

	if subject == "" {
		return store.CacheStats{}, store.ErrSubjectRequired
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM signatures WHERE subject = ?1),
			(SELECT COUNT(*) FROM details WHERE subject = ?1 AND status = 'fetched'),
			(SELECT COUNT(*) FROM details WHERE subject = ?1 AND status = 'pending'),
			(SELECT COUNT(*) FROM details WHERE subject = ?1 AND status = 'failed')`,
		subject)
	if err = row.Scan(&stats.SignatureCount, &stats.FetchedCount, &stats.PendingCount, &stats.FailedCount); err != nil {
		return store.CacheStats{}, store.NewStorageError("stats", err)
	}

	return stats, nil
}

// Purge removes the subject's signatures, details and cursor.
func (s *Store) Purge(ctx context.Context, subject string) (err error) {
	defer func() { s.record("purge", err) }()

	if subject == "" {
		return store.ErrSubjectRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.NewStorageError("purge", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		`DELETE FROM details WHERE subject = ?`,
		`DELETE FROM signatures WHERE subject = ?`,
		`DELETE FROM cursors WHERE subject = ?`,
	} {
		if _, execErr := tx.ExecContext(ctx, stmt, subject); execErr != nil {
			err = store.NewStorageError("purge", execErr)

			return err
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		err = store.NewStorageError("purge", commitErr)

		return err
	}

	return nil
}

// TrackSubject adds or updates a subject in the tracked set.
func (s *Store) TrackSubject(ctx context.Context, subject store.TrackedSubject) (err error) {
	defer func() { s.record("track_subject", err) }()

	if subject.Subject == "" {
		return store.ErrSubjectRequired
	}

	addedAt := subject.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tracked_subjects (subject, label, added_at, enabled) VALUES (?, ?, ?, ?)
		 ON CONFLICT (subject) DO UPDATE SET label = excluded.label, enabled = excluded.enabled`,
		subject.Subject, subject.Label, toMillis(addedAt), subject.Enabled)
	if err != nil {
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

	if _, err = s.db.ExecContext(ctx, `DELETE FROM tracked_subjects WHERE subject = ?`, subject); err != nil {
		return store.NewStorageError("untrack_subject", err)
	}

	return nil
}

// ListTrackedSubjects returns the tracked set, oldest first.
func (s *Store) ListTrackedSubjects(ctx context.Context) (subjects []store.TrackedSubject, err error) {
	defer func() { s.record("list_tracked_subjects", err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT subject, label, added_at, enabled FROM tracked_subjects ORDER BY added_at ASC, subject ASC`)
	if err != nil {
		return nil, store.NewStorageError("list_tracked_subjects", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.log.WithError(closeErr).Debug("Failed to close rows")
		}
	}()

	for rows.Next() {
		var (
			sub     store.TrackedSubject
			addedAt int64
		)

		if err = rows.Scan(&sub.Subject, &sub.Label, &addedAt, &sub.Enabled); err != nil {
			return nil, store.NewStorageError("list_tracked_subjects", err)
		}

		sub.AddedAt = fromMillis(addedAt)
		subjects = append(subjects, sub)
	}

	if err = rows.Err(); err != nil {
		return nil, store.NewStorageError("list_tracked_subjects", err)
	}

	return subjects, nil
}

// Ensure Store implements the interface
var _ store.Store = (*Store)(nil)
