package service

import (
	"context"
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

// CommitteeFetcher is the committee list synchronization stage. Committees
// form a two-level hierarchy; subcommittees arrive nested under their parent
// and are flattened with a parent reference.
type CommitteeFetcher struct {
	client     *congress.Client
	raw        *rawstore.Store
	committees *store.CommitteeStore
	sync       *store.SyncStore
	lookback   time.Duration
	logger     *slog.Logger
}

// NewCommitteeFetcher creates a CommitteeFetcher.
func NewCommitteeFetcher(client *congress.Client, raw *rawstore.Store, committees *store.CommitteeStore, sync *store.SyncStore, lookbackDays int, logger *slog.Logger) *CommitteeFetcher {
	return &CommitteeFetcher{
		client:     client,
		raw:        raw,
		committees: committees,
		sync:       sync,
		lookback:   time.Duration(lookbackDays) * 24 * time.Hour,
		logger:     logger,
	}
}

// committeeListItem is the upstream committee list entry.
type committeeListItem struct {
	SystemCode    string `json:"systemCode"`
	Name          string `json:"name"`
	Chamber       string `json:"chamber"`
	CommitteeType string `json:"committeeTypeCode"`
	UpdateDate    string `json:"updateDate"`
	Parent        *struct {
		SystemCode string `json:"systemCode"`
	} `json:"parent"`
	Subcommittees []committeeListItem `json:"subcommittees"`
}

// Run performs one synchronization pass over the committee list endpoint.
func (f *CommitteeFetcher) Run(ctx context.Context, opts FetchOptions) (*FetchStats, error) {
	stats := &FetchStats{}
	runID := uuid.NewString()

	window, err := resolveWindow(ctx, f.sync, EndpointCommittees, opts, f.lookback)
	if err != nil {
		return stats, err
	}
	if err := f.sync.SetStatus(ctx, EndpointCommittees, model.SyncInProgress, 0, runID, nil); err != nil {
		return stats, err
	}

	f.logger.Info("starting committee fetch",
		"run_id", runID, "from", formatWindow(window.from), "full", window.full)

	items, err := f.client.GetPaginated(ctx, "committee", window.params(), "committees")
	if err != nil {
		f.sync.SetStatus(ctx, EndpointCommittees, model.SyncFailed, 0, runID, err)
		return stats, fmt.Errorf("committee list fetch failed: %w", err)
	}

	f.logger.Info("fetched committee list", "count", len(items))

	for _, raw := range items {
		select {
		case <-ctx.Done():
			f.sync.SetStatus(ctx, EndpointCommittees, model.SyncFailed, 0, runID, ctx.Err())
			return stats, ctx.Err()
		default:
		}

		var item committeeListItem
		if err := json.Unmarshal(raw, &item); err != nil {
			f.logger.Error("committee parse failed", "err", err)
			stats.Errors++
			continue
		}

		if _, err := f.raw.Save(json.RawMessage(raw), "committee", item.SystemCode, "list.json"); err != nil {
			f.logger.Warn("raw save failed", "committee", item.SystemCode, "err", err)
		}

		f.upsertTree(ctx, item, "", stats)
	}

	if err := f.sync.SetStatus(ctx, EndpointCommittees, model.SyncSuccess, stats.Total, runID, nil); err != nil {
		return stats, err
	}
	return stats, nil
}

// upsertTree flattens one committee and its subcommittees, threading the
// parent system code through the recursion.
func (f *CommitteeFetcher) upsertTree(ctx context.Context, item committeeListItem, parentCode string, stats *FetchStats) {
	stats.Total++

	if item.SystemCode == "" {
		stats.Skipped++
		f.logger.Warn("committee entry missing system code", "name", item.Name)
		return
	}

	if parentCode == "" && item.Parent != nil {
		parentCode = item.Parent.SystemCode
	}

	c := &model.Committee{
		SystemCode:     item.SystemCode,
		Name:           item.Name,
		NormalizedName: normalizeCommitteeName(item.Name),
		Chamber:        nullString(item.Chamber),
		TypeCode:       nullString(item.CommitteeType),
		ParentCode:     nullString(parentCode),
	}

	updateDate := parseUpstreamTime(item.UpdateDate)
	if updateDate.IsZero() {
		updateDate = time.Now().UTC()
	}

	created, err := f.committees.Upsert(ctx, c, updateDate)
	if err != nil {
		f.logger.Error("committee upsert failed", "committee", item.SystemCode, "err", err)
		stats.Errors++
		return
	}
	if created {
		stats.Inserted++
	} else {
		stats.Updated++
	}

	for _, sub := range item.Subcommittees {
		f.upsertTree(ctx, sub, item.SystemCode, stats)
	}
}

// PrintSummary logs the run's statistics.
func (f *CommitteeFetcher) PrintSummary(stats *FetchStats) {
	f.logger.Info("committee fetch summary",
		"total", stats.Total,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"errors", stats.Errors)
}

// normalizeCommitteeName lowercases and strips the generic prefix so
// "Committee on Armed Services" and "Armed Services" compare equal.
func normalizeCommitteeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	for _, prefix := range []string{"committee on ", "subcommittee on "} {
		s = strings.TrimPrefix(s, prefix)
	}
	return s
}
