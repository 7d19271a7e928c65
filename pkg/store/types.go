package store

import (
	"encoding/json"
	"time"
)

// DetailStatus is the lifecycle state of a DetailRecord.
type DetailStatus string

const (
	// DetailStatusPending means the detail has never been fetched.
	DetailStatusPending DetailStatus = "pending"
	// DetailStatusFetched means the payload is stored.
	DetailStatusFetched DetailStatus = "fetched"
	// DetailStatusFailed means the last fetch attempt failed; the
	// record stays retry eligible until the retry ceiling.
	DetailStatusFailed DetailStatus = "failed"
)

// SignatureRecord is one discovered transaction signature for a subject.
// Immutable once stored; (subject, signature) is the primary key and
// slot order defines "newer than" for incremental fetches.
type SignatureRecord struct {
	Subject   string
	Signature string
	Slot      uint64
	BlockTime *int64
	Err       string
	Memo      string
	FetchedAt time.Time
}

// DetailRecord holds the full transaction payload for one signature.
// Created pending alongside its SignatureRecord; a fetched record never
// has an empty payload.
type DetailRecord struct {
	Subject    string
	Signature  string
	Payload    json.RawMessage
	Status     DetailStatus
	RetryCount int
	UpdatedAt  time.Time
}

// SubjectCursor is the per-subject incremental frontier: the newest
// known signature bounds the next listing pass.
type SubjectCursor struct {
	Subject         string
	NewestSignature string
	NewestSlot      uint64
	LastSyncedAt    time.Time
	TotalSynced     uint64
}

// CacheStats summarizes a subject's cache contents.
type CacheStats struct {
	SignatureCount int `json:"signature_count"`
	FetchedCount   int `json:"fetched_count"`
	PendingCount   int `json:"pending_count"`
	FailedCount    int `json:"failed_count"`
}

// TrackedSubject is one address the tracker daemon re-syncs on schedule.
type TrackedSubject struct {
	Subject string    `json:"subject"`
	Label   string    `json:"label,omitempty"`
	AddedAt time.Time `json:"added_at"`
	Enabled bool      `json:"enabled"`
}
