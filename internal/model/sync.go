package model

import (
	"database/sql"
	"time"
)

// Sync statuses. A row left at in_progress by a crashed run is never trusted
// as a resume point; incremental fetches key off the last success row.
const (
	SyncInProgress = "in_progress"
	SyncSuccess    = "success"
	SyncFailed     = "failed"
)

// SyncState is the per-endpoint synchronization record. Rows are created on
// the first run of an endpoint's fetch stage and updated on every run after
// that; they are never deleted.
type SyncState struct {
	Endpoint      string
	LastSync      time.Time
	LastOffset    int
	Status        string
	LastError     sql.NullString
	LastRunID     sql.NullString
	LastSuccessAt sql.NullTime
}
