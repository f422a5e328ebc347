package model

import (
	"database/sql"
	"time"
)

// Member is a person holding or having held office, keyed by bioguide id.
type Member struct {
	ID             int
	BioguideID     string
	FirstName      sql.NullString
	LastName       sql.NullString
	FullName       string
	Party          sql.NullString
	State          sql.NullString
	District       sql.NullInt64 // null for senators
	Chamber        sql.NullString
	PhotoURL       sql.NullString
	CurrentMember  bool
	SponsoredCount int
	CosponsorCount int
	LastUpdated    time.Time
	CreatedAt      time.Time
}

// MemberTerm is one term of service for a member.
type MemberTerm struct {
	MemberID  int
	Congress  sql.NullInt64
	Chamber   sql.NullString
	Party     sql.NullString
	State     sql.NullString
	District  sql.NullInt64
	StartYear sql.NullInt64
	EndYear   sql.NullInt64
}

// Committee is a congressional committee. ParentCode forms a two-level
// hierarchy: committee -> subcommittee.
type Committee struct {
	ID             int
	SystemCode     string
	Name           string
	NormalizedName string
	Chamber        sql.NullString
	TypeCode       sql.NullString
	ParentCode     sql.NullString
	LastUpdated    time.Time
}
