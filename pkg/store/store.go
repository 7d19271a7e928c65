// Package store defines the persistent record cache: signature lists,
// transaction detail payloads and per-subject cursors, keyed by subject
// and signature.
package store

import (
	"context"
	"encoding/json"
)

// Store is the persistent cache contract. Every operation is idempotent
// and fails only on underlying storage I/O errors, surfaced as a
// *StorageError. Implementations guarantee row-level atomicity per
// (subject, signature); concurrent detail writes for different
// signatures never corrupt each other.
type Store interface {
	// GetCursor returns the subject's cursor, or (nil, nil) when the
	// subject has never been synced.
	GetCursor(ctx context.Context, subject string) (*SubjectCursor, error)

	// UpsertSignatures stores newly listed signatures, ignoring ones
	// already present, and creates a pending DetailRecord per inserted
	// signature. The subject's cursor advances to the newest slot seen
	// and never regresses. Returns how many records were inserted.
	UpsertSignatures(ctx context.Context, subject string, records []SignatureRecord) (int, error)

	// ListPendingDetails returns signatures whose details are still
	// pending or failed with fewer than maxRetries attempts,
	// oldest-first by slot, bounded by limit.
	ListPendingDetails(ctx context.Context, subject string, limit, maxRetries int) ([]string, error)

	// UpsertDetail records a successfully fetched payload. Re-applying
	// the same payload is a no-op.
	UpsertDetail(ctx context.Context, subject, signature string, payload json.RawMessage) error

	// MarkDetailFailed increments the retry counter and marks the
	// detail failed. A fetched detail is never demoted.
	MarkDetailFailed(ctx context.Context, subject, signature string) error

	// GetDetail returns one detail record, or (nil, nil) when absent.
	GetDetail(ctx context.Context, subject, signature string) (*DetailRecord, error)

	// Stats returns cache counters for a subject.
	Stats(ctx context.Context, subject string) (CacheStats, error)

	// Purge removes the subject's signatures, details and cursor.
	// Force-refresh support.
	Purge(ctx context.Context, subject string) error

	// TrackSubject adds or updates a subject in the tracked set.
	TrackSubject(ctx context.Context, subject TrackedSubject) error

	// UntrackSubject removes a subject from the tracked set.
	UntrackSubject(ctx context.Context, subject string) error

	// ListTrackedSubjects returns the tracked set, oldest first.
	ListTrackedSubjects(ctx context.Context) ([]TrackedSubject, error)

	// Close releases the underlying storage.
	Close() error
}
