package api

import (
	"time"

	"github.com/solwatch/soltrail/pkg/store"
)

// SubjectSummary is one tracked subject in list responses
type SubjectSummary struct {
	Address string    `json:"address"`
	AddedAt time.Time `json:"added_at"`
	Label   string    `json:"label,omitempty"`
}

// CursorView is the sync frontier for a subject
type CursorView struct {
	NewestSignature string    `json:"newest_signature"`
	NewestSlot      uint64    `json:"newest_slot"`
	LastSyncedAt    time.Time `json:"last_synced_at"`
	TotalSynced     uint64    `json:"total_synced"`
}

// SubjectStats is the stats response for one subject
type SubjectStats struct {
	Address string           `json:"address"`
	Cursor  *CursorView      `json:"cursor,omitempty"`
	Cache   store.CacheStats `json:"cache"`
}

// SyncAccepted is the response to a sync request
type SyncAccepted struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// EndpointStatus is one RPC endpoint's health counters
type EndpointStatus struct {
	URL                 string    `json:"url"`
	Attempts            uint64    `json:"attempts"`
	Successes           uint64    `json:"successes"`
	Failures            uint64    `json:"failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastLatencyMs       int64     `json:"last_latency_ms"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
}
