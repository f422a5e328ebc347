package model

import (
	"database/sql"
	"strings"
	"unicode"
)

// TagType is a tag category, e.g. "Policy Area".
type TagType struct {
	ID          int
	Name        string
	Description sql.NullString
}

// Tag is a classification value under a TagType. (TypeID, NormalizedName) is
// unique. ParentID supports hierarchical tags within a type.
type Tag struct {
	ID             int
	TypeID         int
	Name           string
	NormalizedName string
	Description    sql.NullString
	ParentID       sql.NullInt64
}

// NormalizeTagName converts a tag name to its canonical stored form:
// lowercase, "&" spelled out, punctuation stripped, spaces as underscores.
// The transformation is idempotent.
func NormalizeTagName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "&", "and")
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == ',':
			b.WriteByte('_')
		}
	}
	// Collapse runs introduced by adjacent separators ("a, b" -> "a__b").
	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return strings.Trim(out, "_")
}
