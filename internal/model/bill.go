package model

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Historical congresses (6th-42nd, 1799-1873) expose reduced metadata and a
// divergent detail payload shape upstream.
const (
	HistoricalCongressMin = 6
	HistoricalCongressMax = 42
)

// IsHistoricalCongress reports whether a congress number falls in the legacy
// range where missing sponsor, cosponsor, and summary data is expected.
func IsHistoricalCongress(congress int) bool {
	return congress >= HistoricalCongressMin && congress <= HistoricalCongressMax
}

// BillKey is the natural key for a bill: congress number, bill type, and bill
// number. Keys are canonicalized to uppercase before any lookup or write.
type BillKey struct {
	Congress int
	Type     string
	Number   string
}

var billNumberRe = regexp.MustCompile(`^([A-Za-z]+)(\d+)$`)

// ParseBillNumber splits a combined bill number like "HR1234" or "SJRES33"
// into its type and numeric components.
func ParseBillNumber(billNumber string) (billType, number string, err error) {
	m := billNumberRe.FindStringSubmatch(strings.TrimSpace(billNumber))
	if m == nil {
		return "", "", fmt.Errorf("invalid bill number %q", billNumber)
	}
	return strings.ToUpper(m[1]), m[2], nil
}

// NewBillKey builds a canonical (uppercase) key.
func NewBillKey(congress int, billType, number string) BillKey {
	return BillKey{
		Congress: congress,
		Type:     strings.ToUpper(strings.TrimSpace(billType)),
		Number:   strings.TrimSpace(number),
	}
}

// BillNumber returns the combined bill number, e.g. "HR1234".
func (k BillKey) BillNumber() string {
	return k.Type + k.Number
}

func (k BillKey) String() string {
	return fmt.Sprintf("%s (congress %d)", k.BillNumber(), k.Congress)
}

// Bill is a legislative item row.
type Bill struct {
	ID               int
	BillNumber       string // canonical uppercase, e.g. "HR1234"
	BillType         string
	Congress         int
	Title            string
	OfficialTitle    sql.NullString
	ShortTitle       sql.NullString
	SponsorID        sql.NullString // bioguide id
	IntroducedDate   sql.NullTime
	Status           string // latest action free text
	NormalizedStatus string
	LatestActionDate sql.NullTime
	PolicyArea       sql.NullString
	Summary          sql.NullString
	TextLink         sql.NullString
	LawLink          sql.NullString
	RelatedBills     []string
	LastUpdated      time.Time
	CreatedAt        time.Time
}

// Key returns the bill's natural key.
func (b *Bill) Key() BillKey {
	t, n, err := ParseBillNumber(b.BillNumber)
	if err != nil {
		return BillKey{Congress: b.Congress, Type: b.BillType, Number: ""}
	}
	return BillKey{Congress: b.Congress, Type: t, Number: n}
}

// Action is an ordered event belonging to one bill. Ordering is by
// (ActionDate, Seq); Seq preserves the upstream response order within a day
// because the source does not guarantee a stable secondary order.
type Action struct {
	ID         int
	BillNumber string
	ActionDate sql.NullTime
	ActionTime sql.NullString
	Text       string
	Type       sql.NullString
	SourceCode sql.NullString
	Seq        int
}

// TextVersionFormat is one (format, URL) rendition of a text version.
type TextVersionFormat struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// TextVersion is a document rendition of a bill. A null upstream date is
// backfilled with the bill's introduced date for display ordering, and the
// backfilled version is flagged as the initial version.
type TextVersion struct {
	Type             string              `json:"type"`
	Date             string              `json:"date,omitempty"`
	Formats          []TextVersionFormat `json:"formats,omitempty"`
	IsInitialVersion bool                `json:"is_initial_version,omitempty"`
}

// Cosponsor is the bill-member join row with attributes captured at the time
// of cosponsorship.
type Cosponsor struct {
	BillNumber string
	BioguideID string
	FullName   sql.NullString
	Party      sql.NullString
	State      sql.NullString
	District   sql.NullInt64
	DateJoined sql.NullTime
}

// Subject is a flat legislative-subject string for a bill, sourced from the
// dedicated subjects sub-resource.
type Subject struct {
	BillNumber string
	Name       string
}
