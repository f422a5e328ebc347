package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jharding/legistrack/internal/model"
)

// BillStore handles database operations for bills and their sub-resources.
type BillStore struct {
	db *sql.DB
}

// NewBillStore creates a new BillStore.
func NewBillStore(db *sql.DB) *BillStore {
	return &BillStore{db: db}
}

// GetByNumber retrieves a bill by its canonical bill number. Returns nil when
// not found.
func (s *BillStore) GetByNumber(ctx context.Context, billNumber string) (*model.Bill, error) {
	query := `
		SELECT id, bill_number, bill_type, congress, bill_title, official_title,
		       short_title, sponsor_id, introduced_date, status, normalized_status,
		       latest_action_date, policy_area, summary, bill_text_link,
		       bill_law_link, related_bills, last_updated, created_at
		FROM bills
		WHERE bill_number = $1
	`

	var b model.Bill
	var related pq.StringArray
	err := s.db.QueryRowContext(ctx, query, billNumber).Scan(
		&b.ID,
		&b.BillNumber,
		&b.BillType,
		&b.Congress,
		&b.Title,
		&b.OfficialTitle,
		&b.ShortTitle,
		&b.SponsorID,
		&b.IntroducedDate,
		&b.Status,
		&b.NormalizedStatus,
		&b.LatestActionDate,
		&b.PolicyArea,
		&b.Summary,
		&b.TextLink,
		&b.LawLink,
		&related,
		&b.LastUpdated,
		&b.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill %s: %w", billNumber, err)
	}
	b.RelatedBills = related
	return &b, nil
}

// LastUpdated returns a bill's stored upstream update watermark, or a zero
// time when the bill is unknown.
func (s *BillStore) LastUpdated(ctx context.Context, billNumber string) (time.Time, bool, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT last_updated FROM bills WHERE bill_number = $1", billNumber).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get bill watermark %s: %w", billNumber, err)
	}
	return ts, true, nil
}

// Upsert inserts or updates a bill in its own transaction, keyed on the
// natural bill number. Returns whether a new row was created.
func (s *BillStore) Upsert(ctx context.Context, b *model.Bill, updateDate time.Time) (created bool, err error) {
	query := `
		INSERT INTO bills (
			bill_number, bill_type, congress, bill_title, official_title,
			short_title, sponsor_id, introduced_date, status, normalized_status,
			latest_action_date, policy_area, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (bill_number) DO UPDATE SET
			bill_type = EXCLUDED.bill_type,
			congress = EXCLUDED.congress,
			bill_title = EXCLUDED.bill_title,
			official_title = COALESCE(EXCLUDED.official_title, bills.official_title),
			short_title = COALESCE(EXCLUDED.short_title, bills.short_title),
			sponsor_id = EXCLUDED.sponsor_id,
			introduced_date = EXCLUDED.introduced_date,
			status = EXCLUDED.status,
			normalized_status = EXCLUDED.normalized_status,
			latest_action_date = EXCLUDED.latest_action_date,
			policy_area = EXCLUDED.policy_area,
			last_updated = EXCLUDED.last_updated
		RETURNING id, (xmax = 0)
	`

	err = s.db.QueryRowContext(ctx, query,
		b.BillNumber,
		b.BillType,
		b.Congress,
		b.Title,
		b.OfficialTitle,
		b.ShortTitle,
		b.SponsorID,
		b.IntroducedDate,
		b.Status,
		b.NormalizedStatus,
		b.LatestActionDate,
		b.PolicyArea,
		updateDate,
	).Scan(&b.ID, &created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert bill %s: %w", b.BillNumber, err)
	}
	return created, nil
}

// ReplaceActions swaps a bill's action rows for the given set inside one
// transaction, so a partial prior enrichment can never coexist with a new
// one. Seq preserves upstream response order within a day.
func (s *BillStore) ReplaceActions(ctx context.Context, billNumber string, actions []model.Action) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM bill_actions WHERE bill_number = $1", billNumber); err != nil {
		return 0, fmt.Errorf("failed to clear actions for %s: %w", billNumber, err)
	}

	insert := `
		INSERT INTO bill_actions (
			bill_number, action_date, action_time, action_text,
			action_type, source_code, seq
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i, a := range actions {
		if _, err := tx.ExecContext(ctx, insert,
			billNumber, a.ActionDate, a.ActionTime, a.Text, a.Type, a.SourceCode, i,
		); err != nil {
			return 0, fmt.Errorf("failed to insert action for %s: %w", billNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit actions for %s: %w", billNumber, err)
	}
	return len(actions), nil
}

// ReplaceCosponsors swaps a bill's cosponsor join rows transactionally.
func (s *BillStore) ReplaceCosponsors(ctx context.Context, billNumber string, cosponsors []model.Cosponsor) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM bill_cosponsors WHERE bill_number = $1", billNumber); err != nil {
		return 0, fmt.Errorf("failed to clear cosponsors for %s: %w", billNumber, err)
	}

	insert := `
		INSERT INTO bill_cosponsors (
			bill_number, cosponsor_id, cosponsor_name, cosponsor_party,
			cosponsor_state, cosponsor_district, cosponsor_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bill_number, cosponsor_id) DO UPDATE SET
			cosponsor_name = EXCLUDED.cosponsor_name,
			cosponsor_party = EXCLUDED.cosponsor_party,
			cosponsor_state = EXCLUDED.cosponsor_state,
			cosponsor_district = EXCLUDED.cosponsor_district,
			cosponsor_date = EXCLUDED.cosponsor_date
	`
	for _, c := range cosponsors {
		if _, err := tx.ExecContext(ctx, insert,
			billNumber, c.BioguideID, c.FullName, c.Party,
			c.State, c.District, c.DateJoined,
		); err != nil {
			return 0, fmt.Errorf("failed to insert cosponsor for %s: %w", billNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cosponsors for %s: %w", billNumber, err)
	}
	return len(cosponsors), nil
}

// ReplaceSubjects swaps a bill's subject rows transactionally.
func (s *BillStore) ReplaceSubjects(ctx context.Context, billNumber string, subjects []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM bill_subjects WHERE bill_number = $1", billNumber); err != nil {
		return 0, fmt.Errorf("failed to clear subjects for %s: %w", billNumber, err)
	}

	insert := `
		INSERT INTO bill_subjects (bill_number, subject_name)
		VALUES ($1, $2)
		ON CONFLICT (bill_number, subject_name) DO NOTHING
	`
	for _, name := range subjects {
		if _, err := tx.ExecContext(ctx, insert, billNumber, name); err != nil {
			return 0, fmt.Errorf("failed to insert subject for %s: %w", billNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit subjects for %s: %w", billNumber, err)
	}
	return len(subjects), nil
}

// UpdateTextVersions stores the processed text-version list as JSON.
func (s *BillStore) UpdateTextVersions(ctx context.Context, billNumber string, versions []model.TextVersion) error {
	var payload any
	if len(versions) > 0 {
		payload = versions
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal text versions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE bills SET text_versions = $2::jsonb, last_updated = NOW()
		WHERE bill_number = $1
	`, billNumber, data)
	if err != nil {
		return fmt.Errorf("failed to update text versions for %s: %w", billNumber, err)
	}
	return nil
}

// UpdateRelatedBills stores the cross-referenced bill numbers.
func (s *BillStore) UpdateRelatedBills(ctx context.Context, billNumber string, related []string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bills SET related_bills = $2::text[] WHERE bill_number = $1
	`, billNumber, pq.Array(related))
	if err != nil {
		return fmt.Errorf("failed to update related bills for %s: %w", billNumber, err)
	}
	return nil
}

// UpdateDetail applies the enriched fields from the detail payload.
func (s *BillStore) UpdateDetail(ctx context.Context, b *model.Bill) error {
	query := `
		UPDATE bills SET
			bill_title = $2,
			official_title = $3,
			short_title = $4,
			sponsor_id = $5,
			introduced_date = $6,
			status = $7,
			normalized_status = $8,
			policy_area = $9,
			last_updated = NOW()
		WHERE bill_number = $1
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		b.BillNumber,
		b.Title,
		b.OfficialTitle,
		b.ShortTitle,
		b.SponsorID,
		b.IntroducedDate,
		b.Status,
		b.NormalizedStatus,
		b.PolicyArea,
	).Scan(&b.ID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("bill %s not found", b.BillNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to update bill detail %s: %w", b.BillNumber, err)
	}
	return nil
}

// CommitSummary writes the AI summary, links, and validated tag associations
// in one transaction; a failure rolls back every field for this pass.
func (s *BillStore) CommitSummary(ctx context.Context, billNumber, summary string, textLink, lawLink sql.NullString, tagIDs []int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var billID int
	err = tx.QueryRowContext(ctx, `
		UPDATE bills SET
			summary = $2,
			bill_text_link = COALESCE($3, bill_text_link),
			bill_law_link = COALESCE($4, bill_law_link),
			last_updated = NOW()
		WHERE bill_number = $1
		RETURNING id
	`, billNumber, summary, textLink, lawLink).Scan(&billID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("bill %s not found", billNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to commit summary for %s: %w", billNumber, err)
	}

	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bill_tags (bill_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT (bill_id, tag_id) DO NOTHING
		`, billID, tagID); err != nil {
			return fmt.Errorf("failed to tag bill %s: %w", billNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit summary transaction for %s: %w", billNumber, err)
	}
	return nil
}

// AttachTag associates a tag with a bill outside the summary transaction,
// used for policy-area tags discovered during detail enrichment.
func (s *BillStore) AttachTag(ctx context.Context, billID, tagID int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bill_tags (bill_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT (bill_id, tag_id) DO NOTHING
	`, billID, tagID)
	if err != nil {
		return fmt.Errorf("failed to attach tag %d to bill %d: %w", tagID, billID, err)
	}
	return nil
}

// UpdateLinks stores the resolved text and law links outside the summary
// transaction so a later AI failure does not lose them.
func (s *BillStore) UpdateLinks(ctx context.Context, billNumber string, textLink, lawLink sql.NullString) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bills SET
			bill_text_link = COALESCE($2, bill_text_link),
			bill_law_link = COALESCE($3, bill_law_link)
		WHERE bill_number = $1
	`, billNumber, textLink, lawLink)
	if err != nil {
		return fmt.Errorf("failed to update links for %s: %w", billNumber, err)
	}
	return nil
}

// BillRef is a (billNumber, congress) pair from a worklist query.
type BillRef struct {
	BillNumber string
	Congress   int
}

// MissingSummaries returns bills with no AI summary yet, newest first.
// A non-positive limit returns the full worklist.
func (s *BillStore) MissingSummaries(ctx context.Context, limit int) ([]BillRef, error) {
	return s.refQuery(ctx, `
		SELECT bill_number, congress
		FROM bills
		WHERE summary IS NULL
		ORDER BY introduced_date DESC NULLS LAST
		LIMIT $1
	`, limitArg(limit))
}

// MissingTextVersions returns bills with no stored text versions.
func (s *BillStore) MissingTextVersions(ctx context.Context, limit int) ([]BillRef, error) {
	return s.refQuery(ctx, `
		SELECT bill_number, congress
		FROM bills
		WHERE text_versions IS NULL OR text_versions = '[]'::jsonb
		ORDER BY introduced_date DESC NULLS LAST
		LIMIT $1
	`, limitArg(limit))
}

// MissingActions returns bills with no action rows.
func (s *BillStore) MissingActions(ctx context.Context, limit int) ([]BillRef, error) {
	return s.refQuery(ctx, `
		SELECT b.bill_number, b.congress
		FROM bills b
		LEFT JOIN bill_actions ba ON b.bill_number = ba.bill_number
		GROUP BY b.bill_number, b.congress
		HAVING COUNT(ba.id) = 0
		ORDER BY b.congress DESC
		LIMIT $1
	`, limitArg(limit))
}

// MissingSubjects returns bills with no subject rows.
func (s *BillStore) MissingSubjects(ctx context.Context, limit int) ([]BillRef, error) {
	return s.refQuery(ctx, `
		SELECT b.bill_number, b.congress
		FROM bills b
		LEFT JOIN bill_subjects bs ON b.bill_number = bs.bill_number
		GROUP BY b.bill_number, b.congress
		HAVING COUNT(bs.id) = 0
		ORDER BY b.congress DESC
		LIMIT $1
	`, limitArg(limit))
}

// MissingCosponsors returns sponsored bills with no cosponsor rows.
func (s *BillStore) MissingCosponsors(ctx context.Context, limit int) ([]BillRef, error) {
	return s.refQuery(ctx, `
		SELECT b.bill_number, b.congress
		FROM bills b
		LEFT JOIN bill_cosponsors bc ON b.bill_number = bc.bill_number
		WHERE b.sponsor_id IS NOT NULL
		GROUP BY b.bill_number, b.congress
		HAVING COUNT(bc.id) = 0
		ORDER BY b.congress DESC
		LIMIT $1
	`, limitArg(limit))
}

// ByCongress returns every bill number in a congress.
func (s *BillStore) ByCongress(ctx context.Context, congress, limit int) ([]BillRef, error) {
	return s.refQuery(ctx, `
		SELECT bill_number, congress
		FROM bills
		WHERE congress = $2
		ORDER BY bill_number
		LIMIT $1
	`, limitArg(limit), congress)
}

// RecentlyUpdated returns the most recently touched bills.
func (s *BillStore) RecentlyUpdated(ctx context.Context, limit int) ([]BillRef, error) {
	return s.refQuery(ctx, `
		SELECT bill_number, congress
		FROM bills
		ORDER BY last_updated DESC
		LIMIT $1
	`, limitArg(limit))
}

// AllBillNumbers returns a map of bill number to surrogate id, used by member
// enrichment to link only bills already in the store.
func (s *BillStore) AllBillNumbers(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, bill_number FROM bills")
	if err != nil {
		return nil, fmt.Errorf("failed to list bill numbers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id int
		var num string
		if err := rows.Scan(&id, &num); err != nil {
			return nil, fmt.Errorf("failed to scan bill number: %w", err)
		}
		out[num] = id
	}
	return out, rows.Err()
}

// GetAll returns bills ordered by latest update, for the read-side handlers.
func (s *BillStore) GetAll(ctx context.Context, limit, offset int) ([]model.Bill, error) {
	query := `
		SELECT id, bill_number, bill_type, congress, bill_title, official_title,
		       short_title, sponsor_id, introduced_date, status, normalized_status,
		       latest_action_date, policy_area, summary, bill_text_link,
		       bill_law_link, related_bills, last_updated, created_at
		FROM bills
		ORDER BY last_updated DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get bills: %w", err)
	}
	defer rows.Close()

	var bills []model.Bill
	for rows.Next() {
		var b model.Bill
		var related pq.StringArray
		err := rows.Scan(
			&b.ID,
			&b.BillNumber,
			&b.BillType,
			&b.Congress,
			&b.Title,
			&b.OfficialTitle,
			&b.ShortTitle,
			&b.SponsorID,
			&b.IntroducedDate,
			&b.Status,
			&b.NormalizedStatus,
			&b.LatestActionDate,
			&b.PolicyArea,
			&b.Summary,
			&b.TextLink,
			&b.LawLink,
			&related,
			&b.LastUpdated,
			&b.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		b.RelatedBills = related
		bills = append(bills, b)
	}

	return bills, rows.Err()
}

// GetActions returns a bill's actions in display order.
func (s *BillStore) GetActions(ctx context.Context, billNumber string) ([]model.Action, error) {
	query := `
		SELECT id, bill_number, action_date, action_time, action_text,
		       action_type, source_code, seq
		FROM bill_actions
		WHERE bill_number = $1
		ORDER BY action_date, seq
	`

	rows, err := s.db.QueryContext(ctx, query, billNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get actions for %s: %w", billNumber, err)
	}
	defer rows.Close()

	var actions []model.Action
	for rows.Next() {
		var a model.Action
		err := rows.Scan(
			&a.ID,
			&a.BillNumber,
			&a.ActionDate,
			&a.ActionTime,
			&a.Text,
			&a.Type,
			&a.SourceCode,
			&a.Seq,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, a)
	}

	return actions, rows.Err()
}

func (s *BillStore) refQuery(ctx context.Context, query string, args ...any) ([]BillRef, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("worklist query failed: %w", err)
	}
	defer rows.Close()

	var refs []BillRef
	for rows.Next() {
		var r BillRef
		if err := rows.Scan(&r.BillNumber, &r.Congress); err != nil {
			return nil, fmt.Errorf("failed to scan worklist row: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}
