package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jharding/legistrack/internal/congress"
	"github.com/jharding/legistrack/internal/model"
	"github.com/jharding/legistrack/internal/rawstore"
)

// Sync endpoint names, one logical row each in the sync status table.
const (
	EndpointBills      = "bills"
	EndpointMembers    = "members"
	EndpointCommittees = "committees"
)

const upstreamTimeLayout = "2006-01-02T15:04:05Z"

// FetchStats tracks per-run fetch statistics.
type FetchStats struct {
	Total      int
	Inserted   int
	Updated    int
	Skipped    int
	Historical int
	Errors     int
}

// FetchOptions bound a fetch run. Zero values mean "use the sync watermark".
type FetchOptions struct {
	ForceFull bool
	StartDate time.Time
	EndDate   time.Time
	Congress  int
	Limit     int
}

// BillFetcher is the bill list synchronization stage: paginated retrieval,
// raw persistence, and idempotent per-record upsert.
type BillFetcher struct {
	client   *congress.Client
	raw      *rawstore.Store
	bills    billUpsertStore
	sync     syncTracker
	lookback time.Duration
	logger   *slog.Logger
}

// NewBillFetcher creates a BillFetcher.
func NewBillFetcher(client *congress.Client, raw *rawstore.Store, bills billUpsertStore, sync syncTracker, lookbackDays int, logger *slog.Logger) *BillFetcher {
	return &BillFetcher{
		client:   client,
		raw:      raw,
		bills:    bills,
		sync:     sync,
		lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		logger:   logger,
	}
}

// billListItem is the upstream bill list entry.
type billListItem struct {
	Congress      int           `json:"congress"`
	Type          string        `json:"type"`
	Number        json.Number   `json:"number"`
	Title         string        `json:"title"`
	OriginChamber string        `json:"originChamber"`
	UpdateDate    string        `json:"updateDate"`
	LatestAction  *LatestAction `json:"latestAction"`
}

// Run performs one synchronization pass over the bill list endpoint.
// Record-level failures are logged and counted; only run-level failures
// (unreachable upstream, sync bookkeeping errors) return an error.
func (f *BillFetcher) Run(ctx context.Context, opts FetchOptions) (*FetchStats, error) {
	stats := &FetchStats{}
	runID := uuid.NewString()

	window, err := resolveWindow(ctx, f.sync, EndpointBills, opts, f.lookback)
	if err != nil {
		return stats, err
	}
	if err := f.sync.SetStatus(ctx, EndpointBills, model.SyncInProgress, 0, runID, nil); err != nil {
		return stats, err
	}

	f.logger.Info("starting bill fetch",
		"run_id", runID, "from", formatWindow(window.from), "to", formatWindow(window.to),
		"congress", opts.Congress, "full", window.full)

	path := "bill"
	if opts.Congress > 0 {
		path = "bill/" + strconv.Itoa(opts.Congress)
	}
	items, err := f.client.GetPaginated(ctx, path, window.params(), "bills")
	if err != nil {
		f.sync.SetStatus(ctx, EndpointBills, model.SyncFailed, 0, runID, err)
		return stats, fmt.Errorf("bill list fetch failed: %w", err)
	}

	stats.Total = len(items)
	f.logger.Info("fetched bill list", "count", stats.Total)

	for _, raw := range items {
		select {
		case <-ctx.Done():
			f.sync.SetStatus(ctx, EndpointBills, model.SyncFailed, 0, runID, ctx.Err())
			return stats, ctx.Err()
		default:
		}

		if err := f.processOne(ctx, raw, stats); err != nil {
			f.logger.Error("bill upsert failed", "err", err)
			stats.Errors++
		}
		if opts.Limit > 0 && stats.Inserted+stats.Updated >= opts.Limit {
			break
		}
	}

	if err := f.sync.SetStatus(ctx, EndpointBills, model.SyncSuccess, stats.Total, runID, nil); err != nil {
		return stats, err
	}
	return stats, nil
}

func (f *BillFetcher) processOne(ctx context.Context, raw json.RawMessage, stats *FetchStats) error {
	var item billListItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return fmt.Errorf("parse bill list entry: %w", err)
	}

	key := model.NewBillKey(item.Congress, item.Type, item.Number.String())
	if key.Type == "" || key.Number == "" {
		return fmt.Errorf("bill list entry missing type or number")
	}
	if model.IsHistoricalCongress(key.Congress) {
		stats.Historical++
	}

	updateDate := parseUpstreamTime(item.UpdateDate)

	// Archive the record before the skip decision so every upstream
	// response survives in the raw store, skipped or not.
	if _, err := f.raw.Save(json.RawMessage(raw), "bill",
		strconv.Itoa(key.Congress), key.Type, key.Number, "list.json"); err != nil {
		f.logger.Warn("raw save failed", "bill", key.BillNumber(), "err", err)
	}

	// Idempotent skip: nothing to do when the stored record is as new as
	// the incoming one.
	stored, found, err := f.bills.LastUpdated(ctx, key.BillNumber())
	if err != nil {
		return err
	}
	if found && !updateDate.IsZero() && !stored.Before(updateDate) {
		stats.Skipped++
		return nil
	}

	bill := &model.Bill{
		BillNumber: key.BillNumber(),
		BillType:   key.Type,
		Congress:   key.Congress,
		Title:      item.Title,
	}
	if item.LatestAction != nil {
		bill.Status = item.LatestAction.Text
		bill.NormalizedStatus = NormalizeStatus(item.LatestAction.Text)
		bill.LatestActionDate = parseUpstreamDate(item.LatestAction.ActionDate)
	} else {
		bill.NormalizedStatus = StatusOther
	}

	if updateDate.IsZero() {
		updateDate = time.Now().UTC()
	}
	created, err := f.bills.Upsert(ctx, bill, updateDate)
	if err != nil {
		return err
	}
	if created {
		stats.Inserted++
	} else {
		stats.Updated++
	}
	return nil
}

// PrintSummary logs the run's statistics.
func (f *BillFetcher) PrintSummary(stats *FetchStats) {
	f.logger.Info("bill fetch summary",
		"total", stats.Total,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"historical", stats.Historical,
		"errors", stats.Errors)
}

// syncWindow is the resolved incremental-fetch bound for one run.
type syncWindow struct {
	from time.Time
	to   time.Time
	full bool
}

func (w syncWindow) params() url.Values {
	params := url.Values{}
	params.Set("sort", "updateDate asc")
	if !w.from.IsZero() {
		params.Set("fromDateTime", w.from.UTC().Format(upstreamTimeLayout))
	}
	if !w.to.IsZero() {
		params.Set("toDateTime", w.to.UTC().Format(upstreamTimeLayout))
	}
	return params
}

// resolveWindow decides the fetch bound. Explicit dates win, then force-full,
// then the last successful watermark minus the look-back margin. A row left
// at in_progress by a crashed run never contributes a bound.
func resolveWindow(ctx context.Context, sync syncTracker, endpoint string, opts FetchOptions, lookback time.Duration) (syncWindow, error) {
	if !opts.StartDate.IsZero() || !opts.EndDate.IsZero() {
		return syncWindow{from: opts.StartDate, to: opts.EndDate}, nil
	}
	if opts.ForceFull {
		return syncWindow{full: true}, nil
	}

	last, err := sync.LastSuccessfulSync(ctx, endpoint)
	if err != nil {
		return syncWindow{}, err
	}
	if last.IsZero() {
		return syncWindow{full: true}, nil
	}
	return syncWindow{from: last.Add(-lookback)}, nil
}

func formatWindow(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(upstreamTimeLayout)
}

// parseUpstreamTime accepts the two timestamp shapes the upstream emits:
// date-only and RFC 3339 style with a trailing Z.
func parseUpstreamTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{upstreamTimeLayout, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseUpstreamDate parses a date-only field into a nullable time.
func parseUpstreamDate(s string) sql.NullTime {
	t := parseUpstreamTime(s)
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// nullString wraps a possibly-empty string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// IsUpstreamUnavailable reports whether err is the client's retry-exhaustion
// error, which stages treat as non-fatal for individual entities.
func IsUpstreamUnavailable(err error) bool {
	var ue *congress.UnavailableError
	return errors.As(err, &ue)
}
