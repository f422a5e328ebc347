package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jharding/legistrack/internal/congress"
	"github.com/jharding/legistrack/internal/model"
	"github.com/jharding/legistrack/internal/rawstore"
)

// PolicyAreaTagType is the tag category populated from the detail payload.
const PolicyAreaTagType = "Policy Area"

// ProcessResult reports the outcome of one bill's enrichment pass.
type ProcessResult struct {
	BillNumber     string
	Congress       int
	DetailsUpdated bool
	Actions        int
	Cosponsors     int
	Subjects       int
	TextVersions   int
	RelatedBills   int
	// SubErrors counts sub-resource fetches or replacements that failed
	// and left the bill's gap intact.
	SubErrors      int
	Err            error
}

// Failed reports whether the bill ended the pass in a failed state, either
// outright or with one of its sub-resources still missing.
func (r ProcessResult) Failed() bool {
	return r.Err != nil || r.SubErrors > 0
}

// BillProcessor is the detail/enrichment stage: it fetches a bill's detail
// payload and sub-resources, reconciles the historical payload shape, and
// replaces the bill's relational sub-resource rows.
type BillProcessor struct {
	client         *congress.Client
	raw            *rawstore.Store
	bills          billDetailStore
	tags           tagCatalog
	historicalPick string
	logger         *slog.Logger
}

// NewBillProcessor creates a BillProcessor.
func NewBillProcessor(client *congress.Client, raw *rawstore.Store, bills billDetailStore, tags tagCatalog, historicalPick string, logger *slog.Logger) *BillProcessor {
	return &BillProcessor{
		client:         client,
		raw:            raw,
		bills:          bills,
		tags:           tags,
		historicalPick: historicalPick,
		logger:         logger,
	}
}

// detailEnvelope is the detail endpoint's top-level response. The primary
// field is shape-divergent, so it is decoded through the tagged union.
type detailEnvelope struct {
	Bill DetailPayload `json:"bill"`
}

// ProcessOne enriches a single bill. Sub-resource failures do not abort the
// pass, but they are tallied in the result so the run can count the entity
// as failed; only an unusable detail payload stops the pass outright.
func (p *BillProcessor) ProcessOne(ctx context.Context, key model.BillKey) ProcessResult {
	key = model.NewBillKey(key.Congress, key.Type, key.Number)
	result := ProcessResult{BillNumber: key.BillNumber(), Congress: key.Congress}

	detailPath := fmt.Sprintf("bill/%d/%s/%s", key.Congress, strings.ToLower(key.Type), key.Number)
	body, err := p.client.GetRaw(ctx, detailPath, nil)
	if err != nil {
		result.Err = fmt.Errorf("detail fetch for %s: %w", key, err)
		return result
	}
	p.saveRaw(body, key, "details.json")

	var envelope detailEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		result.Err = fmt.Errorf("parse detail for %s: %w", key, err)
		return result
	}

	detail, err := envelope.Bill.Resolve(p.historicalPick, key, p.logger)
	if err != nil {
		result.Err = err
		return result
	}

	// Text versions feed the bill row update, so they are fetched first.
	versions := p.fetchTextVersions(ctx, key, detail, &result)

	if err := p.updateBillRow(ctx, key, detail); err != nil {
		result.Err = err
		return result
	}
	result.DetailsUpdated = true

	if len(versions) > 0 {
		if err := p.bills.UpdateTextVersions(ctx, key.BillNumber(), versions); err != nil {
			p.logger.Error("text version update failed", "bill", key.BillNumber(), "err", err)
			result.SubErrors++
		} else {
			result.TextVersions = len(versions)
		}
	}

	p.enrichActions(ctx, key, detail, &result)
	p.enrichCosponsors(ctx, key, detail, &result)
	p.enrichSubjects(ctx, key, detail, &result)
	p.enrichRelatedBills(ctx, key, detail, &result)
	p.fetchSummaries(ctx, key, detail)
	p.logGaps(key, detail, result)

	return result
}

func (p *BillProcessor) updateBillRow(ctx context.Context, key model.BillKey, detail *BillDetail) error {
	bill := &model.Bill{
		BillNumber:     key.BillNumber(),
		BillType:       key.Type,
		Congress:       key.Congress,
		Title:          detail.Title,
		IntroducedDate: parseUpstreamDate(detail.IntroducedDate),
	}
	if len(detail.Sponsors) > 0 {
		bill.SponsorID = nullString(detail.Sponsors[0].BioguideID)
	}
	if detail.LatestAction != nil {
		bill.Status = detail.LatestAction.Text
		bill.NormalizedStatus = NormalizeStatus(detail.LatestAction.Text)
	} else {
		bill.NormalizedStatus = StatusOther
	}
	if detail.PolicyArea != nil {
		bill.PolicyArea = nullString(detail.PolicyArea.Name)
	}

	if err := p.bills.UpdateDetail(ctx, bill); err != nil {
		return err
	}

	if detail.PolicyArea != nil && detail.PolicyArea.Name != "" {
		if err := p.tagPolicyArea(ctx, bill.ID, detail.PolicyArea.Name); err != nil {
			p.logger.Error("policy area tagging failed",
				"bill", key.BillNumber(), "policy_area", detail.PolicyArea.Name, "err", err)
		}
	}
	return nil
}

func (p *BillProcessor) tagPolicyArea(ctx context.Context, billID int, name string) error {
	typeID, err := p.tags.EnsureTagType(ctx, PolicyAreaTagType)
	if err != nil {
		return err
	}
	tagID, err := p.tags.GetOrCreateTag(ctx, typeID, name)
	if err != nil {
		return err
	}
	return p.bills.AttachTag(ctx, billID, tagID)
}

func (p *BillProcessor) fetchTextVersions(ctx context.Context, key model.BillKey, detail *BillDetail, result *ProcessResult) []model.TextVersion {
	if detail.TextVersions == nil || detail.TextVersions.URL == "" {
		return nil
	}

	payload, err := p.client.Get(ctx, detail.TextVersions.URL, nil)
	if err != nil {
		p.logger.Error("text version fetch failed", "bill", key.BillNumber(), "err", err)
		result.SubErrors++
		return nil
	}
	p.saveRawMap(payload, key, "text.json")

	var versions []model.TextVersion
	if raw, ok := payload["textVersions"]; ok {
		if err := json.Unmarshal(raw, &versions); err != nil {
			p.logger.Error("text version parse failed", "bill", key.BillNumber(), "err", err)
			result.SubErrors++
			return nil
		}
	}
	return ProcessTextVersions(versions, detail.IntroducedDate)
}

// actionItem is the upstream action sub-resource entry.
type actionItem struct {
	ActionDate   string `json:"actionDate"`
	ActionTime   string `json:"actionTime"`
	Text         string `json:"text"`
	Type         string `json:"type"`
	SourceSystem *struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"sourceSystem"`
}

func (p *BillProcessor) enrichActions(ctx context.Context, key model.BillKey, detail *BillDetail, result *ProcessResult) {
	if detail.Actions == nil || detail.Actions.URL == "" {
		return
	}

	items, err := p.client.GetPaginated(ctx, detail.Actions.URL, nil, "actions")
	if err != nil {
		p.logger.Error("action fetch failed", "bill", key.BillNumber(), "err", err)
		result.SubErrors++
		return
	}
	p.saveRaw(marshalItems(items), key, "actions.json")

	actions := make([]model.Action, 0, len(items))
	for _, raw := range items {
		var item actionItem
		if err := json.Unmarshal(raw, &item); err != nil {
			p.logger.Warn("skipping unparseable action", "bill", key.BillNumber(), "err", err)
			continue
		}
		a := model.Action{
			BillNumber: key.BillNumber(),
			ActionDate: parseUpstreamDate(item.ActionDate),
			ActionTime: nullString(item.ActionTime),
			Text:       item.Text,
			Type:       nullString(item.Type),
		}
		if item.SourceSystem != nil {
			a.SourceCode = nullString(strconv.Itoa(item.SourceSystem.Code))
		}
		actions = append(actions, a)
	}

	n, err := p.bills.ReplaceActions(ctx, key.BillNumber(), actions)
	if err != nil {
		p.logger.Error("action replace failed", "bill", key.BillNumber(), "err", err)
		result.SubErrors++
		return
	}
	result.Actions = n
}

// cosponsorItem is the upstream cosponsor sub-resource entry.
type cosponsorItem struct {
	BioguideID      string `json:"bioguideId"`
	FullName        string `json:"fullName"`
	Party           string `json:"party"`
	State           string `json:"state"`
	District        *int   `json:"district"`
	SponsorshipDate string `json:"sponsorshipDate"`
}

func (p *BillProcessor) enrichCosponsors(ctx context.Context, key model.BillKey, detail *BillDetail, result *ProcessResult) {
	if detail.Cosponsors == nil || detail.Cosponsors.URL == "" {
		return
	}

	items, err := p.client.GetPaginated(ctx, detail.Cosponsors.URL, nil, "cosponsors")
	if err != nil {
		p.logger.Error("cosponsor fetch failed", "bill", key.BillNumber(), "err", err)
		result.SubErrors++
		return
	}
	p.saveRaw(marshalItems(items), key, "cosponsors.json")

	cosponsors := make([]model.Cosponsor, 0, len(items))
	for _, raw := range items {
		var item cosponsorItem
		if err := json.Unmarshal(raw, &item); err != nil {
			p.logger.Warn("skipping unparseable cosponsor", "bill", key.BillNumber(), "err", err)
			continue
		}
		if item.BioguideID == "" {
			continue
		}
		cosponsors = append(cosponsors, model.Cosponsor{
			BillNumber: key.BillNumber(),
			BioguideID: item.BioguideID,
			FullName:   nullString(item.FullName),
			Party:      nullString(item.Party),
			State:      nullString(item.State),
			District:   nullInt(item.District),
			DateJoined: parseUpstreamDate(item.SponsorshipDate),
		})
	}

	n, err := p.bills.ReplaceCosponsors(ctx, key.BillNumber(), cosponsors)
	if err != nil {
		p.logger.Error("cosponsor replace failed", "bill", key.BillNumber(), "err", err)
		result.SubErrors++
		return
	}
	result.Cosponsors = n
}

func (p *BillProcessor) enrichSubjects(ctx context.Context, key model.BillKey, detail *BillDetail, result *ProcessResult) {
	if detail.Subjects == nil || detail.Subjects.URL == "" {
		return
	}

	payload, err := p.client.Get(ctx, detail.Subjects.URL, nil)
	if err != nil {
		p.logger.Error("subject fetch failed", "bill", key.BillNumber(), "err", err)
		result.SubErrors++
		return
	}
	p.saveRawMap(payload, key, "subjects.json")

	// Subjects arrive as an object wrapping the list, not a bare array.
	var node struct {
		LegislativeSubjects []NamedRef `json:"legislativeSubjects"`
	}
	if raw, ok := payload["subjects"]; ok {
		if err := json.Unmarshal(raw, &node); err != nil {
			p.logger.Error("subject parse failed", "bill", key.BillNumber(), "err", err)
			result.SubErrors++
			return
		}
	}

	names := make([]string, 0, len(node.LegislativeSubjects))
	for _, s := range node.LegislativeSubjects {
		if s.Name != "" {
			names = append(names, s.Name)
		}
	}
	if len(names) == 0 {
		return
	}

	n, err := p.bills.ReplaceSubjects(ctx, key.BillNumber(), names)
	if err != nil {
		p.logger.Error("subject replace failed", "bill", key.BillNumber(), "err", err)
		result.SubErrors++
		return
	}
	result.Subjects = n
}

func (p *BillProcessor) enrichRelatedBills(ctx context.Context, key model.BillKey, detail *BillDetail, result *ProcessResult) {
	if detail.RelatedBills == nil {
		return
	}

	items := detail.RelatedBills.Items
	if len(items) == 0 && detail.RelatedBills.URL != "" {
		raws, err := p.client.GetPaginated(ctx, detail.RelatedBills.URL, nil, "relatedBills")
		if err != nil {
			p.logger.Error("related bill fetch failed", "bill", key.BillNumber(), "err", err)
			result.SubErrors++
			return
		}
		for _, raw := range raws {
			var ref RelatedBillRef
			if err := json.Unmarshal(raw, &ref); err == nil {
				items = append(items, ref)
			}
		}
	}

	numbers := make([]string, 0, len(items))
	for _, ref := range items {
		if ref.Type == "" || ref.Number.String() == "" {
			continue
		}
		numbers = append(numbers, model.NewBillKey(ref.Congress, ref.Type, ref.Number.String()).BillNumber())
	}
	if len(numbers) == 0 {
		return
	}

	if err := p.bills.UpdateRelatedBills(ctx, key.BillNumber(), numbers); err != nil {
		p.logger.Error("related bill update failed", "bill", key.BillNumber(), "err", err)
		result.SubErrors++
		return
	}
	result.RelatedBills = len(numbers)
}

// fetchSummaries snapshots the upstream summaries sub-resource into the raw
// store for audit and replay. The relational summary column belongs to the
// AI pipeline and is not written here.
func (p *BillProcessor) fetchSummaries(ctx context.Context, key model.BillKey, detail *BillDetail) {
	if detail.Summaries == nil || detail.Summaries.URL == "" {
		return
	}
	payload, err := p.client.Get(ctx, detail.Summaries.URL, nil)
	if err != nil {
		p.logger.Warn("summaries fetch failed", "bill", key.BillNumber(), "err", err)
		return
	}
	p.saveRawMap(payload, key, "summaries.json")
}

// logGaps reports missing sponsor and cosponsor data. For historical
// congresses the gap is expected upstream behavior and logged at debug; for
// modern records it is a true data-quality gap.
func (p *BillProcessor) logGaps(key model.BillKey, detail *BillDetail, result ProcessResult) {
	noSponsor := len(detail.Sponsors) == 0
	noCosponsors := result.Cosponsors == 0
	if !noSponsor && !noCosponsors {
		return
	}

	if model.IsHistoricalCongress(key.Congress) {
		p.logger.Debug("historical record, expected gap",
			"bill", key.BillNumber(), "congress", key.Congress,
			"missing_sponsor", noSponsor, "missing_cosponsors", noCosponsors)
		return
	}
	p.logger.Warn("modern record, true gap",
		"bill", key.BillNumber(), "congress", key.Congress,
		"missing_sponsor", noSponsor, "missing_cosponsors", noCosponsors)
}

func (p *BillProcessor) saveRaw(data []byte, key model.BillKey, name string) {
	if len(data) == 0 {
		return
	}
	_, err := p.raw.SaveBytes(data, "bill", strconv.Itoa(key.Congress), key.Type, key.Number, name)
	if err != nil {
		p.logger.Warn("raw save failed", "bill", key.BillNumber(), "file", name, "err", err)
	}
}

func (p *BillProcessor) saveRawMap(payload map[string]json.RawMessage, key model.BillKey, name string) {
	_, err := p.raw.Save(payload, "bill", strconv.Itoa(key.Congress), key.Type, key.Number, name)
	if err != nil {
		p.logger.Warn("raw save failed", "bill", key.BillNumber(), "file", name, "err", err)
	}
}

func marshalItems(items []json.RawMessage) []byte {
	data, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	return data
}
