package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jharding/legistrack/internal/model"
	"github.com/jharding/legistrack/internal/store"
)

// Missing-data categories produced by validation and accepted by backfill.
const (
	CategoryActions      = "actions"
	CategoryCosponsors   = "cosponsors"
	CategorySubjects     = "subjects"
	CategoryTextVersions = "text_versions"
	CategorySummaries    = "summaries"
)

// AllCategories lists every category in report order.
var AllCategories = []string{
	CategoryActions,
	CategoryCosponsors,
	CategorySubjects,
	CategoryTextVersions,
	CategorySummaries,
}

// BackfillCategories lists the categories re-driving enrichment can close.
// Summaries are reported but excluded: they are written only by the
// summarize pipeline.
var BackfillCategories = []string{
	CategoryActions,
	CategoryCosponsors,
	CategorySubjects,
	CategoryTextVersions,
}

// CategoryReport separates a category's worklist into modern true gaps and
// historical expected gaps.
type CategoryReport struct {
	Modern     []store.BillRef
	Historical []store.BillRef
}

// Total returns the category's full worklist size.
func (r CategoryReport) Total() int { return len(r.Modern) + len(r.Historical) }

// ValidationReport groups missing-data findings by category.
type ValidationReport struct {
	Categories map[string]CategoryReport
}

// BatchStats tracks one backfill run.
type BatchStats struct {
	Worklist  int
	Processed int
	Succeeded int
	Failed    int
	DryRun    bool
}

// BackfillOptions tune a backfill run.
type BackfillOptions struct {
	Limit     int
	BatchSize int
	Workers   int
	DryRun    bool
	// IncludeHistorical adds historical expected gaps to the worklist;
	// by default only modern true gaps are backfilled.
	IncludeHistorical bool
}

// BillEnricher is the enrichment entry point the batch stage drives. It is
// an interface so tests can substitute a fake.
type BillEnricher interface {
	ProcessOne(ctx context.Context, key model.BillKey) ProcessResult
}

// BatchProcessor audits the relational store for bills missing expected
// sub-resources and re-drives the enrichment stage over the findings.
type BatchProcessor struct {
	bills     *store.BillStore
	processor BillEnricher
	logger    *slog.Logger
}

// NewBatchProcessor creates a BatchProcessor.
func NewBatchProcessor(bills *store.BillStore, processor BillEnricher, logger *slog.Logger) *BatchProcessor {
	return &BatchProcessor{bills: bills, processor: processor, logger: logger}
}

// Validate scans the store and returns the categorized missing-data report.
func (b *BatchProcessor) Validate(ctx context.Context, limit int) (*ValidationReport, error) {
	if limit <= 0 {
		limit = 1000
	}

	report := &ValidationReport{Categories: make(map[string]CategoryReport)}
	for _, category := range AllCategories {
		refs, err := b.worklist(ctx, category, limit)
		if err != nil {
			return nil, err
		}
		report.Categories[category] = splitHistorical(refs)
	}
	return report, nil
}

// Backfill re-drives enrichment over one category's worklist. Workers are
// bounded and tunable down to 1 for strictly sequential operation under
// rate-limit pressure; the worklist is unique by bill number, so no two
// workers ever share a natural key.
func (b *BatchProcessor) Backfill(ctx context.Context, category string, opts BackfillOptions) (*BatchStats, error) {
	stats := &BatchStats{DryRun: opts.DryRun}

	if category == CategorySummaries {
		return stats, fmt.Errorf("summaries are written by the summarize pipeline; run summarize instead")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	refs, err := b.worklist(ctx, category, limit)
	if err != nil {
		return stats, err
	}

	split := splitHistorical(refs)
	work := split.Modern
	if opts.IncludeHistorical {
		work = append(work, split.Historical...)
	}
	stats.Worklist = len(work)

	b.logger.Info("backfill worklist",
		"category", category, "total", len(work),
		"modern", len(split.Modern), "historical", len(split.Historical),
		"dry_run", opts.DryRun)

	if opts.DryRun || len(work) == 0 {
		return stats, nil
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = len(work)
	}

	for start := 0; start < len(work); start += batchSize {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		end := start + batchSize
		if end > len(work) {
			end = len(work)
		}
		b.runBatch(ctx, work[start:end], workers, stats)
		b.logger.Info("batch complete",
			"category", category, "processed", stats.Processed, "of", len(work))
	}

	return stats, nil
}

func (b *BatchProcessor) runBatch(ctx context.Context, refs []store.BillRef, workers int, stats *BatchStats) {
	jobs := make(chan store.BillRef)
	results := make(chan ProcessResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range jobs {
				results <- b.processRef(ctx, ref)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	go func() {
		defer close(jobs)
		for _, ref := range refs {
			select {
			case <-ctx.Done():
				return
			case jobs <- ref:
			}
		}
	}()

	for result := range results {
		stats.Processed++
		if result.Failed() {
			stats.Failed++
			b.logger.Error("backfill entity failed",
				"bill", result.BillNumber, "congress", result.Congress,
				"sub_errors", result.SubErrors, "err", result.Err)
			continue
		}
		stats.Succeeded++
	}
}

func (b *BatchProcessor) processRef(ctx context.Context, ref store.BillRef) ProcessResult {
	billType, number, err := model.ParseBillNumber(ref.BillNumber)
	if err != nil {
		return ProcessResult{BillNumber: ref.BillNumber, Congress: ref.Congress, Err: err}
	}
	return b.processor.ProcessOne(ctx, model.NewBillKey(ref.Congress, billType, number))
}

func (b *BatchProcessor) worklist(ctx context.Context, category string, limit int) ([]store.BillRef, error) {
	switch category {
	case CategoryActions:
		return b.bills.MissingActions(ctx, limit)
	case CategoryCosponsors:
		return b.bills.MissingCosponsors(ctx, limit)
	case CategorySubjects:
		return b.bills.MissingSubjects(ctx, limit)
	case CategoryTextVersions:
		return b.bills.MissingTextVersions(ctx, limit)
	case CategorySummaries:
		return b.bills.MissingSummaries(ctx, limit)
	default:
		return nil, fmt.Errorf("unknown category %q", category)
	}
}

// splitHistorical partitions a worklist into modern and historical refs,
// each sorted for a stable report.
func splitHistorical(refs []store.BillRef) CategoryReport {
	var report CategoryReport
	for _, ref := range refs {
		if model.IsHistoricalCongress(ref.Congress) {
			report.Historical = append(report.Historical, ref)
		} else {
			report.Modern = append(report.Modern, ref)
		}
	}
	sortRefs(report.Modern)
	sortRefs(report.Historical)
	return report
}

func sortRefs(refs []store.BillRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Congress != refs[j].Congress {
			return refs[i].Congress > refs[j].Congress
		}
		return refs[i].BillNumber < refs[j].BillNumber
	})
}

// PrintReport logs the validation findings by category.
func (b *BatchProcessor) PrintReport(report *ValidationReport) {
	for _, category := range AllCategories {
		cat := report.Categories[category]
		b.logger.Info("validation category",
			"category", category,
			"total", cat.Total(),
			"modern_gaps", len(cat.Modern),
			"historical_expected", len(cat.Historical))
	}
}
