package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jharding/legistrack/internal/congress"
	"github.com/jharding/legistrack/internal/model"
	"github.com/jharding/legistrack/internal/rawstore"
	"github.com/jharding/legistrack/internal/store"
)

// EnrichStats tracks member enrichment statistics.
type EnrichStats struct {
	Members        int
	SponsoredLinks int
	CosponsorLinks int
	UnknownBills   int
	Errors         int
}

// MemberEnricher associates members with the legislation they sponsored or
// cosponsored. Only bills already present in the relational store are linked;
// unknown bill numbers are counted, never inserted.
type MemberEnricher struct {
	client  *congress.Client
	raw     *rawstore.Store
	members *store.MemberStore
	bills   *store.BillStore
	logger  *slog.Logger
}

// NewMemberEnricher creates a MemberEnricher.
func NewMemberEnricher(client *congress.Client, raw *rawstore.Store, members *store.MemberStore, bills *store.BillStore, logger *slog.Logger) *MemberEnricher {
	return &MemberEnricher{
		client:  client,
		raw:     raw,
		members: members,
		bills:   bills,
		logger:  logger,
	}
}

// legislationItem is an entry from the sponsored/cosponsored sub-resources.
type legislationItem struct {
	Congress       int         `json:"congress"`
	Type           string      `json:"type"`
	Number         json.Number `json:"number"`
	IntroducedDate string      `json:"introducedDate"`
}

// Run enriches up to limit current members, oldest-touched first.
func (e *MemberEnricher) Run(ctx context.Context, limit int) (*EnrichStats, error) {
	stats := &EnrichStats{}

	known, err := e.bills.AllBillNumbers(ctx)
	if err != nil {
		return stats, err
	}
	e.logger.Info("loaded known bills for linking", "count", len(known))

	ids, err := e.members.CurrentBioguideIDs(ctx, limit)
	if err != nil {
		return stats, err
	}

	for _, bioguideID := range ids {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if err := e.enrichOne(ctx, bioguideID, known, stats); err != nil {
			e.logger.Error("member enrichment failed", "member", bioguideID, "err", err)
			stats.Errors++
			continue
		}
		stats.Members++
	}

	return stats, nil
}

// EnrichOne enriches a single member by bioguide id.
func (e *MemberEnricher) EnrichOne(ctx context.Context, bioguideID string) (*EnrichStats, error) {
	known, err := e.bills.AllBillNumbers(ctx)
	if err != nil {
		return nil, err
	}
	stats := &EnrichStats{}
	if err := e.enrichOne(ctx, bioguideID, known, stats); err != nil {
		return stats, err
	}
	stats.Members = 1
	return stats, nil
}

func (e *MemberEnricher) enrichOne(ctx context.Context, bioguideID string, known map[string]int, stats *EnrichStats) error {
	member, err := e.members.GetByBioguideID(ctx, bioguideID)
	if err != nil {
		return err
	}
	if member == nil {
		return fmt.Errorf("member %s not found", bioguideID)
	}

	sponsored, err := e.fetchLegislation(ctx, bioguideID, "sponsored-legislation", "sponsoredLegislation")
	if err != nil {
		return err
	}
	for _, item := range sponsored {
		billID, ok := e.lookupBill(item, known, stats)
		if !ok {
			continue
		}
		if err := e.members.LinkSponsored(ctx, member.ID, billID, parseUpstreamDate(item.IntroducedDate)); err != nil {
			return err
		}
		stats.SponsoredLinks++
	}

	cosponsored, err := e.fetchLegislation(ctx, bioguideID, "cosponsored-legislation", "cosponsoredLegislation")
	if err != nil {
		return err
	}
	for _, item := range cosponsored {
		billID, ok := e.lookupBill(item, known, stats)
		if !ok {
			continue
		}
		if err := e.members.LinkCosponsored(ctx, member.ID, billID, parseUpstreamDate(item.IntroducedDate)); err != nil {
			return err
		}
		stats.CosponsorLinks++
	}

	return e.members.RefreshCounts(ctx, member.ID)
}

func (e *MemberEnricher) fetchLegislation(ctx context.Context, bioguideID, resource, itemsKey string) ([]legislationItem, error) {
	path := fmt.Sprintf("member/%s/%s", bioguideID, resource)
	raws, err := e.client.GetPaginated(ctx, path, nil, itemsKey)
	if err != nil {
		return nil, fmt.Errorf("%s fetch for %s: %w", resource, bioguideID, err)
	}

	if data := marshalItems(raws); data != nil {
		if _, err := e.raw.SaveBytes(data, "member", bioguideID, resource+".json"); err != nil {
			e.logger.Warn("raw save failed", "member", bioguideID, "file", resource, "err", err)
		}
	}

	items := make([]legislationItem, 0, len(raws))
	for _, raw := range raws {
		var item legislationItem
		if err := json.Unmarshal(raw, &item); err != nil {
			e.logger.Warn("skipping unparseable legislation entry", "member", bioguideID, "err", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (e *MemberEnricher) lookupBill(item legislationItem, known map[string]int, stats *EnrichStats) (int, bool) {
	if item.Type == "" || item.Number.String() == "" {
		return 0, false
	}
	key := model.NewBillKey(item.Congress, item.Type, item.Number.String())
	billID, ok := known[key.BillNumber()]
	if !ok {
		stats.UnknownBills++
		return 0, false
	}
	return billID, true
}

// PrintSummary logs the run's statistics.
func (e *MemberEnricher) PrintSummary(stats *EnrichStats) {
	e.logger.Info("member enrichment summary",
		"members", stats.Members,
		"sponsored_links", stats.SponsoredLinks,
		"cosponsored_links", stats.CosponsorLinks,
		"unknown_bills", stats.UnknownBills,
		"errors", stats.Errors)
}
