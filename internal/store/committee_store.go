package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jharding/legistrack/internal/model"
)

// CommitteeStore handles database operations for committees.
type CommitteeStore struct {
	db *sql.DB
}

// NewCommitteeStore creates a new CommitteeStore.
func NewCommitteeStore(db *sql.DB) *CommitteeStore {
	return &CommitteeStore{db: db}
}

// Upsert inserts or updates a committee keyed on its system code.
func (s *CommitteeStore) Upsert(ctx context.Context, c *model.Committee, updateDate time.Time) (created bool, err error) {
	query := `
		INSERT INTO committees (
			system_code, committee_name, normalized_name, chamber,
			type_code, parent_code, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (system_code) DO UPDATE SET
			committee_name = EXCLUDED.committee_name,
			normalized_name = EXCLUDED.normalized_name,
			chamber = EXCLUDED.chamber,
			type_code = EXCLUDED.type_code,
			parent_code = EXCLUDED.parent_code,
			last_updated = EXCLUDED.last_updated
		RETURNING id, (xmax = 0)
	`

	err = s.db.QueryRowContext(ctx, query,
		c.SystemCode,
		c.Name,
		c.NormalizedName,
		c.Chamber,
		c.TypeCode,
		c.ParentCode,
		updateDate,
	).Scan(&c.ID, &created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert committee %s: %w", c.SystemCode, err)
	}
	return created, nil
}

// LastUpdated returns a committee's stored upstream update watermark.
func (s *CommitteeStore) LastUpdated(ctx context.Context, systemCode string) (time.Time, bool, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT last_updated FROM committees WHERE system_code = $1", systemCode).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get committee watermark %s: %w", systemCode, err)
	}
	return ts, true, nil
}

// GetAll returns committees with parents before subcommittees.
func (s *CommitteeStore) GetAll(ctx context.Context, chamber string) ([]model.Committee, error) {
	query := `
		SELECT id, system_code, committee_name, normalized_name, chamber,
		       type_code, parent_code, last_updated
		FROM committees
		WHERE ($1 = '' OR chamber = $1)
		ORDER BY parent_code NULLS FIRST, committee_name
	`

	rows, err := s.db.QueryContext(ctx, query, chamber)
	if err != nil {
		return nil, fmt.Errorf("failed to get committees: %w", err)
	}
	defer rows.Close()

	var committees []model.Committee
	for rows.Next() {
		var c model.Committee
		err := rows.Scan(
			&c.ID,
			&c.SystemCode,
			&c.Name,
			&c.NormalizedName,
			&c.Chamber,
			&c.TypeCode,
			&c.ParentCode,
			&c.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan committee: %w", err)
		}
		committees = append(committees, c)
	}

	return committees, rows.Err()
}
