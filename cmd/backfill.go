package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/jharding/legistrack/internal/service"
	"github.com/jharding/legistrack/internal/store"
)

var (
	backfillMissing    string
	backfillLimit      int
	backfillBatchSize  int
	backfillWorkers    int
	backfillDryRun     bool
	backfillHistorical bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Audit the store for missing data and re-drive enrichment",
	Long: `Without --missing, backfill only audits: it reports bills missing
actions, cosponsors, subjects, text versions, or summaries, split into
modern true gaps and expected gaps on historical records.

With --missing, the worklist for that category is re-driven through the
enrichment stage using a bounded worker pool.

Examples:
  # Report only
  legistrack backfill

  # Re-fetch actions for bills missing them, four at a time
  legistrack backfill --missing actions --workers 4

  # Strictly sequential under rate-limit pressure
  legistrack backfill --missing all --workers 1`,
	Run: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)

	backfillCmd.Flags().StringVar(&backfillMissing, "missing", "", "Category to backfill (actions, cosponsors, subjects, text_versions, all); summaries come from the summarize command")
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 0, "Cap the worklist size (0 = no cap)")
	backfillCmd.Flags().IntVar(&backfillBatchSize, "batch-size", 0, "Entities per batch (0 = config default)")
	backfillCmd.Flags().IntVar(&backfillWorkers, "workers", 0, "Parallel workers, 1 for strictly sequential (0 = config default)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Report the worklist without fetching or writing")
	backfillCmd.Flags().BoolVar(&backfillHistorical, "include-historical", false, "Also backfill expected gaps on historical records")
}

func runBackfill(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.Close()

	ctx, cancel := signalContext(rt.logger)
	defer cancel()

	bills := store.NewBillStore(rt.db)
	tags := store.NewTagStore(rt.db)
	processor := service.NewBillProcessor(rt.client, rt.raw, bills, tags, rt.cfg.Enrich.HistoricalPick, rt.logger)
	batch := service.NewBatchProcessor(bills, processor, rt.logger)

	if backfillMissing == "" {
		report, err := batch.Validate(ctx, backfillLimit)
		if err != nil {
			log.Fatalf("Validation failed: %v", err)
		}
		batch.PrintReport(report)
		return
	}

	opts := service.BackfillOptions{
		Limit:             backfillLimit,
		BatchSize:         backfillBatchSize,
		Workers:           backfillWorkers,
		DryRun:            backfillDryRun,
		IncludeHistorical: backfillHistorical,
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = rt.cfg.Enrich.BatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = rt.cfg.Enrich.MaxWorkers
	}

	categories := []string{backfillMissing}
	if backfillMissing == "all" {
		categories = service.BackfillCategories
	}

	failed := false
	for _, category := range categories {
		stats, err := batch.Backfill(ctx, category, opts)
		if err != nil {
			rt.logger.Error("backfill failed", "category", category, "err", err)
			failed = true
			continue
		}
		rt.logger.Info("backfill complete", "category", category,
			"worklist", stats.Worklist, "processed", stats.Processed,
			"succeeded", stats.Succeeded, "failed", stats.Failed, "dryRun", stats.DryRun)
		if stats.Failed > 0 {
			failed = true
		}
	}

	if failed || ctx.Err() != nil {
		os.Exit(1)
	}
}
