package tracker

import (
	"fmt"
	"time"
)

const (
	// TypeSubjectSync is the task type for subject sync tasks
	TypeSubjectSync = "subject:sync"

	// QueueSync is the queue sync tasks are enqueued to
	QueueSync = "sync"
)

const (
	// TriggerScheduled marks syncs enqueued by the ticker
	TriggerScheduled = "scheduled"
	// TriggerAPI marks syncs requested through the API
	TriggerAPI = "api"
	// TriggerManual marks syncs run from the CLI
	TriggerManual = "manual"
)

// SyncPayload represents the payload for a subject sync task
type SyncPayload struct {
	Subject    string    `json:"subject"`
	Limit      int       `json:"limit,omitempty"`
	Force      bool      `json:"force,omitempty"`
	Trigger    string    `json:"trigger"`
	RunID      string    `json:"run_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// TaskID returns a deterministic identifier for this task. Two sync
// requests for the same subject collapse into one queued task.
func (p SyncPayload) TaskID() string {
	return fmt.Sprintf("sync:%s", p.Subject)
}
