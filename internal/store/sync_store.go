package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jharding/legistrack/internal/model"
)

// SyncStore tracks per-endpoint synchronization state. Stages receive it
// explicitly so tests can inject a fake tracker.
type SyncStore struct {
	db *sql.DB
}

// NewSyncStore creates a new SyncStore.
func NewSyncStore(db *sql.DB) *SyncStore {
	return &SyncStore{db: db}
}

// LastSuccessfulSync returns the timestamp of the endpoint's last successful
// run, or a zero time if none exists. Rows left at in_progress by a crashed
// run are deliberately excluded so a stale offset is never used as a resume
// point.
func (s *SyncStore) LastSuccessfulSync(ctx context.Context, endpoint string) (time.Time, error) {
	query := `
		SELECT last_success_at
		FROM api_sync_status
		WHERE endpoint = $1 AND last_success_at IS NOT NULL
	`

	var ts sql.NullTime
	err := s.db.QueryRowContext(ctx, query, endpoint).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync for %s: %w", endpoint, err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time, nil
}

// SetStatus upserts the endpoint's sync row. A success additionally advances
// the last_success_at watermark.
func (s *SyncStore) SetStatus(ctx context.Context, endpoint, status string, offset int, runID string, runErr error) error {
	var lastError sql.NullString
	if runErr != nil {
		lastError = sql.NullString{String: runErr.Error(), Valid: true}
	}

	query := `
		INSERT INTO api_sync_status (
			endpoint, last_sync_timestamp, last_successful_offset,
			status, last_error, last_run_id, last_success_at
		) VALUES ($1, NOW(), $2, $3, $4, $5,
			CASE WHEN $3 = 'success' THEN NOW() ELSE NULL END)
		ON CONFLICT (endpoint) DO UPDATE SET
			last_sync_timestamp = NOW(),
			last_successful_offset = EXCLUDED.last_successful_offset,
			status = EXCLUDED.status,
			last_error = EXCLUDED.last_error,
			last_run_id = EXCLUDED.last_run_id,
			last_success_at = CASE
				WHEN EXCLUDED.status = 'success' THEN NOW()
				ELSE api_sync_status.last_success_at
			END
	`

	_, err := s.db.ExecContext(ctx, query, endpoint, offset, status, lastError, runID)
	if err != nil {
		return fmt.Errorf("failed to update sync status for %s: %w", endpoint, err)
	}
	return nil
}

// GetAll returns every endpoint's sync row, most recently touched first.
func (s *SyncStore) GetAll(ctx context.Context) ([]model.SyncState, error) {
	query := `
		SELECT endpoint, last_sync_timestamp, last_successful_offset,
		       status, last_error, last_run_id, last_success_at
		FROM api_sync_status
		ORDER BY last_sync_timestamp DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync status rows: %w", err)
	}
	defer rows.Close()

	var states []model.SyncState
	for rows.Next() {
		var st model.SyncState
		err := rows.Scan(
			&st.Endpoint,
			&st.LastSync,
			&st.LastOffset,
			&st.Status,
			&st.LastError,
			&st.LastRunID,
			&st.LastSuccessAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync status: %w", err)
		}
		states = append(states, st)
	}

	return states, rows.Err()
}
