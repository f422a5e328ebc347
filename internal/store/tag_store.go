package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jharding/legistrack/internal/model"
)

// TagStore handles database operations for tag types, tags, and the
// review queue for tags outside the known vocabulary.
type TagStore struct {
	db *sql.DB
}

// NewTagStore creates a new TagStore.
func NewTagStore(db *sql.DB) *TagStore {
	return &TagStore{db: db}
}

// EnsureTagType returns the id of the named tag type, creating it if needed.
func (s *TagStore) EnsureTagType(ctx context.Context, name string) (int, error) {
	var id int
	query := `
		INSERT INTO tag_types (type_name) VALUES ($1)
		ON CONFLICT (type_name) DO UPDATE SET type_name = EXCLUDED.type_name
		RETURNING id
	`
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to ensure tag type %s: %w", name, err)
	}
	return id, nil
}

// GetOrCreateTag returns the id of the tag with the given display name under
// the given type, creating it if needed. Lookup is by normalized name, so
// "Health Care" and "health_care" resolve to the same tag.
func (s *TagStore) GetOrCreateTag(ctx context.Context, typeID int, name string) (int, error) {
	normalized := model.NormalizeTagName(name)

	var id int
	query := `
		INSERT INTO tags (type_id, tag_name, normalized_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (type_id, normalized_name) DO UPDATE SET type_id = EXCLUDED.type_id
		RETURNING id
	`
	if err := s.db.QueryRowContext(ctx, query, typeID, name, normalized).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get or create tag %s: %w", normalized, err)
	}
	return id, nil
}

// LoadVocabulary returns every known tag keyed by type name and normalized
// tag name. The result drives validation of model-produced tags.
func (s *TagStore) LoadVocabulary(ctx context.Context) (map[string]map[string]int, error) {
	query := `
		SELECT tt.type_name, t.normalized_name, t.id
		FROM tags t
		JOIN tag_types tt ON tt.id = t.type_id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load tag vocabulary: %w", err)
	}
	defer rows.Close()

	vocab := make(map[string]map[string]int)
	for rows.Next() {
		var typeName, normalized string
		var id int
		if err := rows.Scan(&typeName, &normalized, &id); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		byName, ok := vocab[typeName]
		if !ok {
			byName = make(map[string]int)
			vocab[typeName] = byName
		}
		byName[normalized] = id
	}

	return vocab, rows.Err()
}

// GetTagsByType returns all tags under the named type.
func (s *TagStore) GetTagsByType(ctx context.Context, typeName string) ([]model.Tag, error) {
	query := `
		SELECT t.id, t.type_id, t.tag_name, t.normalized_name, t.description, t.parent_id
		FROM tags t
		JOIN tag_types tt ON tt.id = t.type_id
		WHERE tt.type_name = $1
		ORDER BY t.normalized_name
	`
	rows, err := s.db.QueryContext(ctx, query, typeName)
	if err != nil {
		return nil, fmt.Errorf("failed to get tags for type %s: %w", typeName, err)
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.TypeID, &t.Name, &t.NormalizedName, &t.Description, &t.ParentID); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}

	return tags, rows.Err()
}

// QueueForReview records a tag the model produced that is not in the
// vocabulary. Duplicate (type, normalized name) submissions are collapsed.
func (s *TagStore) QueueForReview(ctx context.Context, typeName, name, billNumber string) error {
	normalized := model.NormalizeTagName(name)
	query := `
		INSERT INTO tag_review_queue (type_name, tag_name, normalized_name, bill_number)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (type_name, normalized_name) DO UPDATE SET
			bill_number = EXCLUDED.bill_number,
			submitted_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, typeName, name, normalized, billNumber); err != nil {
		return fmt.Errorf("failed to queue tag %s for review: %w", normalized, err)
	}
	return nil
}
