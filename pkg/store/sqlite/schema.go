package sqlite

import (
	"database/sql"
	"fmt"
	"time"
)

// migrations are applied in order; schema_migrations records the highest
// applied version so restarts are idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS signatures (
		subject    TEXT NOT NULL,
		signature  TEXT NOT NULL,
		slot       INTEGER NOT NULL,
		block_time INTEGER,
		err        TEXT NOT NULL DEFAULT '',
		memo       TEXT NOT NULL DEFAULT '',
		fetched_at INTEGER NOT NULL,
		PRIMARY KEY (subject, signature)
	);
	CREATE INDEX IF NOT EXISTS idx_signatures_subject_slot ON signatures (subject, slot);

	CREATE TABLE IF NOT EXISTS details (
		subject     TEXT NOT NULL,
		signature   TEXT NOT NULL,
		payload     BLOB,
		status      TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		updated_at  INTEGER NOT NULL,
		PRIMARY KEY (subject, signature),
		FOREIGN KEY (subject, signature) REFERENCES signatures (subject, signature) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_details_subject_status ON details (subject, status);

	CREATE TABLE IF NOT EXISTS cursors (
		subject          TEXT PRIMARY KEY,
		newest_signature TEXT NOT NULL,
		newest_slot      INTEGER NOT NULL,
		last_synced_at   INTEGER NOT NULL,
		total_synced     INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS tracked_subjects (
		subject  TEXT PRIMARY KEY,
		label    TEXT NOT NULL DEFAULT '',
		added_at INTEGER NOT NULL,
		enabled  INTEGER NOT NULL DEFAULT 1
	);`,
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			i+1, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
