package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jharding/legistrack/internal/congress"
	"github.com/jharding/legistrack/internal/model"
	"github.com/jharding/legistrack/internal/rawstore"
	"github.com/jharding/legistrack/internal/store"
)

// MemberFetcher is the member list synchronization stage.
type MemberFetcher struct {
	client   *congress.Client
	raw      *rawstore.Store
	members  *store.MemberStore
	sync     *store.SyncStore
	lookback time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewMemberFetcher creates a MemberFetcher.
func NewMemberFetcher(client *congress.Client, raw *rawstore.Store, members *store.MemberStore, sync *store.SyncStore, lookbackDays int, logger *slog.Logger) *MemberFetcher {
	return &MemberFetcher{
		client:   client,
		raw:      raw,
		members:  members,
		sync:     sync,
		lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		logger:   logger,
		now:      time.Now,
	}
}

// memberListItem is the upstream member list entry. Terms arrive wrapped in
// an {item: [...]} envelope.
type memberListItem struct {
	BioguideID      string `json:"bioguideId"`
	Name            string `json:"name"`
	DirectOrderName string `json:"directOrderName"`
	PartyName       string `json:"partyName"`
	State           string `json:"state"`
	District        *int   `json:"district"`
	UpdateDate      string `json:"updateDate"`
	Depiction       *struct {
		ImageURL string `json:"imageUrl"`
	} `json:"depiction"`
	Terms struct {
		Item []memberTermItem `json:"item"`
	} `json:"terms"`
}

type memberTermItem struct {
	Congress  *int   `json:"congress"`
	Chamber   string `json:"chamber"`
	PartyName string `json:"partyName"`
	State     string `json:"stateName"`
	District  *int   `json:"district"`
	StartYear *int   `json:"startYear"`
	EndYear   *int   `json:"endYear"`
}

// Run performs one synchronization pass over the member list endpoint.
func (f *MemberFetcher) Run(ctx context.Context, opts FetchOptions) (*FetchStats, error) {
	stats := &FetchStats{}
	runID := uuid.NewString()

	window, err := resolveWindow(ctx, f.sync, EndpointMembers, opts, f.lookback)
	if err != nil {
		return stats, err
	}
	if err := f.sync.SetStatus(ctx, EndpointMembers, model.SyncInProgress, 0, runID, nil); err != nil {
		return stats, err
	}

	f.logger.Info("starting member fetch",
		"run_id", runID, "from", formatWindow(window.from), "full", window.full)

	items, err := f.client.GetPaginated(ctx, "member", window.params(), "members")
	if err != nil {
		f.sync.SetStatus(ctx, EndpointMembers, model.SyncFailed, 0, runID, err)
		return stats, fmt.Errorf("member list fetch failed: %w", err)
	}

	stats.Total = len(items)
	f.logger.Info("fetched member list", "count", stats.Total)

	for _, raw := range items {
		select {
		case <-ctx.Done():
			f.sync.SetStatus(ctx, EndpointMembers, model.SyncFailed, 0, runID, ctx.Err())
			return stats, ctx.Err()
		default:
		}

		if err := f.processOne(ctx, raw, stats); err != nil {
			f.logger.Error("member upsert failed", "err", err)
			stats.Errors++
		}
		if opts.Limit > 0 && stats.Inserted+stats.Updated >= opts.Limit {
			break
		}
	}

	if err := f.sync.SetStatus(ctx, EndpointMembers, model.SyncSuccess, stats.Total, runID, nil); err != nil {
		return stats, err
	}
	return stats, nil
}

func (f *MemberFetcher) processOne(ctx context.Context, raw json.RawMessage, stats *FetchStats) error {
	var item memberListItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return fmt.Errorf("parse member list entry: %w", err)
	}
	if item.BioguideID == "" {
		stats.Skipped++
		f.logger.Warn("member list entry missing bioguide id")
		return nil
	}

	// Archived before the skip decision so every upstream response
	// survives in the raw store.
	if _, err := f.raw.Save(json.RawMessage(raw), "member", item.BioguideID, "list.json"); err != nil {
		f.logger.Warn("raw save failed", "member", item.BioguideID, "err", err)
	}

	updateDate := parseUpstreamTime(item.UpdateDate)
	stored, found, err := f.members.LastUpdated(ctx, item.BioguideID)
	if err != nil {
		return err
	}
	if found && !updateDate.IsZero() && !stored.Before(updateDate) {
		stats.Skipped++
		return nil
	}

	first, last := splitMemberName(item.Name)
	fullName := item.DirectOrderName
	if fullName == "" {
		fullName = strings.TrimSpace(first + " " + last)
	}
	if fullName == "" {
		fullName = item.Name
	}

	member := &model.Member{
		BioguideID: item.BioguideID,
		FirstName:  nullString(first),
		LastName:   nullString(last),
		FullName:   fullName,
		Party:      nullString(item.PartyName),
		State:      nullString(item.State),
		District:   nullInt(item.District),
	}
	if item.Depiction != nil {
		member.PhotoURL = nullString(item.Depiction.ImageURL)
	}

	// Chamber and currency come from the latest term.
	if n := len(item.Terms.Item); n > 0 {
		latest := item.Terms.Item[n-1]
		member.Chamber = nullString(latest.Chamber)
		member.CurrentMember = latest.EndYear == nil || *latest.EndYear >= f.now().Year()
	}

	if updateDate.IsZero() {
		updateDate = f.now().UTC()
	}
	created, err := f.members.Upsert(ctx, member, updateDate)
	if err != nil {
		return err
	}

	terms := make([]model.MemberTerm, 0, len(item.Terms.Item))
	for _, t := range item.Terms.Item {
		terms = append(terms, model.MemberTerm{
			MemberID:  member.ID,
			Congress:  nullInt(t.Congress),
			Chamber:   nullString(t.Chamber),
			Party:     nullString(t.PartyName),
			State:     nullString(t.State),
			District:  nullInt(t.District),
			StartYear: nullInt(t.StartYear),
			EndYear:   nullInt(t.EndYear),
		})
	}
	if len(terms) > 0 {
		if err := f.members.ReplaceTerms(ctx, member.ID, terms); err != nil {
			return err
		}
	}

	if created {
		stats.Inserted++
	} else {
		stats.Updated++
	}
	return nil
}

// PrintSummary logs the run's statistics.
func (f *MemberFetcher) PrintSummary(stats *FetchStats) {
	f.logger.Info("member fetch summary",
		"total", stats.Total,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"errors", stats.Errors)
}

// splitMemberName splits the upstream "Last, First M." inverted form.
func splitMemberName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	parts := strings.SplitN(name, ",", 2)
	if len(parts) == 1 {
		return "", strings.TrimSpace(parts[0])
	}
	last = strings.TrimSpace(parts[0])
	rest := strings.Fields(strings.TrimSpace(parts[1]))
	if len(rest) > 0 {
		first = rest[0]
	}
	return first, last
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
