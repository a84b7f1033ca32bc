package models

import "time"

// Sync job states. At most one job per source is running at any instant.
const (
	SyncIdle    = "idle"
	SyncRunning = "running"
	SyncFailed  = "failed"
)

// SyncJob is the live state of one source's sync loop.
type SyncJob struct {
	SourceKind          string    `json:"source_kind"` // kubernetes | docker
	SourceID            string    `json:"source_id"`
	State               string    `json:"state"`
	StartedAt           time.Time `json:"started_at,omitempty"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	Cycles              uint64    `json:"cycles"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}
