package cmd

import (
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jharding/legistrack/internal/service"
	"github.com/jharding/legistrack/internal/store"
)

var (
	fetchForceFull bool
	fetchStartDate string
	fetchEndDate   string
	fetchCongress  int
	fetchLimit     int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [bills|members|committees|all]",
	Short: "Incrementally sync list data from the Congress.gov API",
	Long:  `Fetch walks the upstream list endpoint for the chosen entity and
upserts every record updated since the last successful sync, minus a
lookback window. Raw pages are archived before any relational write.

Examples:
  # Incremental sync of bills since the last successful run
  legistrack fetch bills

  # Re-fetch everything for one congress
  legistrack fetch bills --force-full --congress 117

  # Explicit window
  legistrack fetch members --start-date 2025-01-01 --end-date 2025-02-01`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"bills", "members", "committees", "all"},
	Run:       runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().BoolVar(&fetchForceFull, "force-full", false, "Ignore the sync watermark and fetch everything")
	fetchCmd.Flags().StringVar(&fetchStartDate, "start-date", "", "Window start (YYYY-MM-DD), overrides the watermark")
	fetchCmd.Flags().StringVar(&fetchEndDate, "end-date", "", "Window end (YYYY-MM-DD)")
	fetchCmd.Flags().IntVar(&fetchCongress, "congress", 0, "Restrict bill fetch to one congress")
	fetchCmd.Flags().IntVar(&fetchLimit, "limit", 0, "Stop after this many records (0 = no limit)")
}

func runFetch(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.Close()

	ctx, cancel := signalContext(rt.logger)
	defer cancel()

	if err := rt.client.Health(ctx); err != nil {
		log.Fatalf("Upstream health check failed: %v", err)
	}

	opts := service.FetchOptions{
		ForceFull: fetchForceFull,
		Congress:  fetchCongress,
		Limit:     fetchLimit,
	}
	opts.StartDate = parseDateFlag("start-date", fetchStartDate)
	opts.EndDate = parseDateFlag("end-date", fetchEndDate)

	syncStore := store.NewSyncStore(rt.db)
	lookback := rt.cfg.Sync.LookbackDays

	failed := false
	entity := args[0]

	if entity == "bills" || entity == "all" {
		fetcher := service.NewBillFetcher(rt.client, rt.raw, store.NewBillStore(rt.db), syncStore, lookback, rt.logger)
		stats, err := fetcher.Run(ctx, opts)
		if stats != nil {
			fetcher.PrintSummary(stats)
		}
		if err != nil {
			rt.logger.Error("bill fetch failed", "err", err)
			failed = true
		}
	}
	if entity == "members" || entity == "all" {
		fetcher := service.NewMemberFetcher(rt.client, rt.raw, store.NewMemberStore(rt.db), syncStore, lookback, rt.logger)
		stats, err := fetcher.Run(ctx, opts)
		if stats != nil {
			fetcher.PrintSummary(stats)
		}
		if err != nil {
			rt.logger.Error("member fetch failed", "err", err)
			failed = true
		}
	}
	if entity == "committees" || entity == "all" {
		fetcher := service.NewCommitteeFetcher(rt.client, rt.raw, store.NewCommitteeStore(rt.db), syncStore, lookback, rt.logger)
		stats, err := fetcher.Run(ctx, opts)
		if stats != nil {
			fetcher.PrintSummary(stats)
		}
		if err != nil {
			rt.logger.Error("committee fetch failed", "err", err)
			failed = true
		}
	}

	if removed, err := rt.raw.Cleanup(); err != nil {
		rt.logger.Warn("raw store cleanup failed", "err", err)
	} else if removed > 0 {
		rt.logger.Info("raw store cleanup", "removed", removed)
	}

	if failed || ctx.Err() != nil {
		os.Exit(1)
	}
}

func parseDateFlag(name, value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		log.Fatalf("Invalid --%s %q: expected YYYY-MM-DD", name, value)
	}
	return t
}
