package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jharding/legistrack/internal/config"
	"github.com/jharding/legistrack/internal/model"
)

// ResourceRef is an embedded pointer to a sub-resource endpoint. Several
// sub-resources are only obtainable through the referenced URL even though
// the detail payload's shape suggests they are inline.
type ResourceRef struct {
	Count int    `json:"count"`
	URL   string `json:"url"`
}

// BillDetail is the upstream detail record for one bill.
type BillDetail struct {
	Congress       int               `json:"congress"`
	Type           string            `json:"type"`
	Number         string            `json:"number"`
	Title          string            `json:"title"`
	IntroducedDate string            `json:"introducedDate"`
	UpdateDate     string            `json:"updateDate"`
	OriginChamber  string            `json:"originChamber"`
	LatestAction   *LatestAction     `json:"latestAction"`
	Sponsors       []SponsorRef      `json:"sponsors"`
	PolicyArea     *NamedRef         `json:"policyArea"`
	Titles         *ResourceRef      `json:"titles"`
	Actions        *ResourceRef      `json:"actions"`
	Cosponsors     *ResourceRef      `json:"cosponsors"`
	Subjects       *ResourceRef      `json:"subjects"`
	Summaries      *ResourceRef      `json:"summaries"`
	TextVersions   *ResourceRef      `json:"textVersions"`
	RelatedBills   *RelatedBillsNode `json:"relatedBills"`
}

// LatestAction is the most recent action embedded in list and detail payloads.
type LatestAction struct {
	ActionDate string `json:"actionDate"`
	Text       string `json:"text"`
}

// SponsorRef identifies a sponsoring member.
type SponsorRef struct {
	BioguideID string `json:"bioguideId"`
	FullName   string `json:"fullName"`
	Party      string `json:"party"`
	State      string `json:"state"`
}

// NamedRef is a {name} wrapper used for policy areas and subjects.
type NamedRef struct {
	Name string `json:"name"`
}

// RelatedBillRef identifies a cross-referenced bill.
type RelatedBillRef struct {
	Congress int         `json:"congress"`
	Type     string      `json:"type"`
	Number   json.Number `json:"number"`
}

// RelatedBillsNode tolerates the two upstream shapes for related bills: a
// bare array, or an object with the array under "item".
type RelatedBillsNode struct {
	Items []RelatedBillRef
	URL   string
}

func (n *RelatedBillsNode) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &n.Items)
	}
	var wrapped struct {
		Item []RelatedBillRef `json:"item"`
		URL  string           `json:"url"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	n.Items = wrapped.Item
	n.URL = wrapped.URL
	return nil
}

// DetailPayload is the tagged union over the two shapes the upstream detail
// endpoint returns for its primary field: a single object for modern records,
// or an array of repeated historical entries for the same natural key. The
// shape is resolved exactly once at the ingestion boundary; downstream code
// only ever sees one canonical record.
type DetailPayload struct {
	Single   *BillDetail
	Multiple []BillDetail
}

func (p *DetailPayload) UnmarshalJSON(data []byte) error {
	p.Single = nil
	p.Multiple = nil

	trimmed := firstNonSpace(data)
	switch trimmed {
	case '[':
		return json.Unmarshal(data, &p.Multiple)
	case '{':
		p.Single = &BillDetail{}
		return json.Unmarshal(data, p.Single)
	default:
		return fmt.Errorf("detail payload is neither object nor array")
	}
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

// Resolve collapses the payload to the single authoritative record according
// to the configured historical-selection policy. When multiple historical
// entries exist the count and the chosen entry's update date are logged, so
// selection is auditable rather than silent.
func (p *DetailPayload) Resolve(policy string, key model.BillKey, logger *slog.Logger) (*BillDetail, error) {
	if p.Single != nil {
		return p.Single, nil
	}
	if len(p.Multiple) == 0 {
		return nil, fmt.Errorf("empty detail entry list for %s", key)
	}

	entries := make([]BillDetail, len(p.Multiple))
	copy(entries, p.Multiple)

	var chosen *BillDetail
	switch policy {
	case config.HistoricalPickFirst:
		chosen = &entries[0]
	default:
		// latest_update. ISO date strings sort lexically; a stable sort
		// keeps upstream order among equal dates.
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].UpdateDate > entries[j].UpdateDate
		})
		chosen = &entries[0]
	}

	if len(entries) > 1 {
		logger.Info("multiple historical detail entries found",
			"bill", key.BillNumber(), "congress", key.Congress,
			"entries", len(entries), "policy", policy,
			"chosen_update_date", chosen.UpdateDate)
	}
	return chosen, nil
}
