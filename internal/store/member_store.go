package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jharding/legistrack/internal/model"
)

// MemberStore handles database operations for members and their terms.
type MemberStore struct {
	db *sql.DB
}

// NewMemberStore creates a new MemberStore.
func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

// GetByBioguideID retrieves a member, or nil when not found.
func (s *MemberStore) GetByBioguideID(ctx context.Context, bioguideID string) (*model.Member, error) {
	query := `
		SELECT id, bioguide_id, first_name, last_name, full_name, party, state,
		       district, chamber, photo_url, current_member, sponsored_count,
		       cosponsored_count, last_updated, created_at
		FROM members
		WHERE bioguide_id = $1
	`

	var m model.Member
	err := s.db.QueryRowContext(ctx, query, bioguideID).Scan(
		&m.ID,
		&m.BioguideID,
		&m.FirstName,
		&m.LastName,
		&m.FullName,
		&m.Party,
		&m.State,
		&m.District,
		&m.Chamber,
		&m.PhotoURL,
		&m.CurrentMember,
		&m.SponsoredCount,
		&m.CosponsorCount,
		&m.LastUpdated,
		&m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member %s: %w", bioguideID, err)
	}
	return &m, nil
}

// LastUpdated returns a member's stored upstream update watermark.
func (s *MemberStore) LastUpdated(ctx context.Context, bioguideID string) (time.Time, bool, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT last_updated FROM members WHERE bioguide_id = $1", bioguideID).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get member watermark %s: %w", bioguideID, err)
	}
	return ts, true, nil
}

// Upsert inserts or updates a member keyed on bioguide id.
func (s *MemberStore) Upsert(ctx context.Context, m *model.Member, updateDate time.Time) (created bool, err error) {
	query := `
		INSERT INTO members (
			bioguide_id, first_name, last_name, full_name, party, state,
			district, chamber, photo_url, current_member, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (bioguide_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			full_name = EXCLUDED.full_name,
			party = EXCLUDED.party,
			state = EXCLUDED.state,
			district = EXCLUDED.district,
			chamber = EXCLUDED.chamber,
			photo_url = EXCLUDED.photo_url,
			current_member = EXCLUDED.current_member,
			last_updated = EXCLUDED.last_updated
		RETURNING id, (xmax = 0)
	`

	err = s.db.QueryRowContext(ctx, query,
		m.BioguideID,
		m.FirstName,
		m.LastName,
		m.FullName,
		m.Party,
		m.State,
		m.District,
		m.Chamber,
		m.PhotoURL,
		m.CurrentMember,
		updateDate,
	).Scan(&m.ID, &created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert member %s: %w", m.BioguideID, err)
	}
	return created, nil
}

// ReplaceTerms swaps a member's term rows transactionally.
func (s *MemberStore) ReplaceTerms(ctx context.Context, memberID int, terms []model.MemberTerm) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM member_terms WHERE member_id = $1", memberID); err != nil {
		return fmt.Errorf("failed to clear terms for member %d: %w", memberID, err)
	}

	insert := `
		INSERT INTO member_terms (
			member_id, congress, chamber, party, state, district,
			start_year, end_year
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, t := range terms {
		if _, err := tx.ExecContext(ctx, insert,
			memberID, t.Congress, t.Chamber, t.Party, t.State, t.District,
			t.StartYear, t.EndYear,
		); err != nil {
			return fmt.Errorf("failed to insert term for member %d: %w", memberID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit terms for member %d: %w", memberID, err)
	}
	return nil
}

// LinkSponsored records a sponsored-legislation relationship.
func (s *MemberStore) LinkSponsored(ctx context.Context, memberID, billID int, introducedDate sql.NullTime) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sponsored_legislation (member_id, bill_id, introduced_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (member_id, bill_id) DO NOTHING
	`, memberID, billID, introducedDate)
	if err != nil {
		return fmt.Errorf("failed to link sponsored bill %d to member %d: %w", billID, memberID, err)
	}
	return nil
}

// LinkCosponsored records a cosponsored-legislation relationship.
func (s *MemberStore) LinkCosponsored(ctx context.Context, memberID, billID int, cosponsoredDate sql.NullTime) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cosponsored_legislation (member_id, bill_id, cosponsored_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (member_id, bill_id) DO NOTHING
	`, memberID, billID, cosponsoredDate)
	if err != nil {
		return fmt.Errorf("failed to link cosponsored bill %d to member %d: %w", billID, memberID, err)
	}
	return nil
}

// RefreshCounts recomputes a member's participation counters from the join
// tables.
func (s *MemberStore) RefreshCounts(ctx context.Context, memberID int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE members SET
			sponsored_count = (SELECT COUNT(*) FROM sponsored_legislation WHERE member_id = $1),
			cosponsored_count = (SELECT COUNT(*) FROM cosponsored_legislation WHERE member_id = $1)
		WHERE id = $1
	`, memberID)
	if err != nil {
		return fmt.Errorf("failed to refresh counts for member %d: %w", memberID, err)
	}
	return nil
}

// GetAll returns members for the read-side handlers, optionally filtered by
// chamber.
func (s *MemberStore) GetAll(ctx context.Context, chamber string, currentOnly bool) ([]model.Member, error) {
	query := `
		SELECT id, bioguide_id, first_name, last_name, full_name, party, state,
		       district, chamber, photo_url, current_member, sponsored_count,
		       cosponsored_count, last_updated, created_at
		FROM members
		WHERE ($1 = '' OR chamber = $1)
		  AND (NOT $2 OR current_member)
		ORDER BY last_name, first_name
	`

	rows, err := s.db.QueryContext(ctx, query, chamber, currentOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		var m model.Member
		err := rows.Scan(
			&m.ID,
			&m.BioguideID,
			&m.FirstName,
			&m.LastName,
			&m.FullName,
			&m.Party,
			&m.State,
			&m.District,
			&m.Chamber,
			&m.PhotoURL,
			&m.CurrentMember,
			&m.SponsoredCount,
			&m.CosponsorCount,
			&m.LastUpdated,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// CurrentBioguideIDs returns bioguide ids of current members, the default
// worklist for member enrichment.
func (s *MemberStore) CurrentBioguideIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bioguide_id FROM members
		WHERE current_member
		ORDER BY last_updated ASC
		LIMIT $1
	`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list current members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan bioguide id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
