package cmd

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/jharding/legistrack/internal/model"
	"github.com/jharding/legistrack/internal/service"
	"github.com/jharding/legistrack/internal/store"
)

var (
	enrichLimit  int
	enrichBill   string
	enrichMember string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [bills|members]",
	Short: "Fetch per-entity detail and sub-resources",
	Long: `Enrich bills resolves each bill's detail payload and its actions,
cosponsors, subjects, text versions, and related bills. Enrich members
links sponsored and cosponsored legislation to bills already in the store.

Examples:
  # Enrich the most recently updated bills
  legistrack enrich bills --limit 100

  # Enrich a single bill
  legistrack enrich bills --bill HR21

  # Link legislation for all current members
  legistrack enrich members`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"bills", "members"},
	Run:       runEnrich,
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "Process at most this many entities (0 = no limit)")
	enrichCmd.Flags().StringVar(&enrichBill, "bill", "", "Enrich a single bill, e.g. HR21")
	enrichCmd.Flags().StringVar(&enrichMember, "member", "", "Enrich a single member by bioguide id")
}

func runEnrich(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.Close()

	ctx, cancel := signalContext(rt.logger)
	defer cancel()

	switch args[0] {
	case "bills":
		runEnrichBills(ctx, rt)
	case "members":
		runEnrichMembers(ctx, rt)
	}
}

func runEnrichBills(ctx context.Context, rt *runtime) {
	bills := store.NewBillStore(rt.db)
	tags := store.NewTagStore(rt.db)
	processor := service.NewBillProcessor(rt.client, rt.raw, bills, tags, rt.cfg.Enrich.HistoricalPick, rt.logger)

	var refs []store.BillRef
	if enrichBill != "" {
		bill, err := bills.GetByNumber(ctx, enrichBill)
		if err != nil {
			log.Fatalf("Failed to load bill %s: %v", enrichBill, err)
		}
		if bill == nil {
			log.Fatalf("Bill %s is not in the store; run fetch first", enrichBill)
		}
		refs = []store.BillRef{{BillNumber: bill.BillNumber, Congress: bill.Congress}}
	} else {
		var err error
		refs, err = bills.RecentlyUpdated(ctx, enrichLimit)
		if err != nil {
			log.Fatalf("Failed to load worklist: %v", err)
		}
	}

	var succeeded, failed int
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		billType, number, err := model.ParseBillNumber(ref.BillNumber)
		if err != nil {
			rt.logger.Error("bad bill number in store", "bill", ref.BillNumber, "err", err)
			failed++
			continue
		}
		result := processor.ProcessOne(ctx, model.NewBillKey(ref.Congress, billType, number))
		if result.Failed() {
			rt.logger.Error("enrichment failed", "bill", ref.BillNumber,
				"sub_errors", result.SubErrors, "err", result.Err)
			failed++
			continue
		}
		succeeded++
	}

	rt.logger.Info("bill enrichment complete",
		"worklist", len(refs), "succeeded", succeeded, "failed", failed)
	if failed > 0 || ctx.Err() != nil {
		os.Exit(1)
	}
}

func runEnrichMembers(ctx context.Context, rt *runtime) {
	members := store.NewMemberStore(rt.db)
	bills := store.NewBillStore(rt.db)
	enricher := service.NewMemberEnricher(rt.client, rt.raw, members, bills, rt.logger)

	var stats *service.EnrichStats
	var err error
	if enrichMember != "" {
		stats, err = enricher.EnrichOne(ctx, enrichMember)
	} else {
		stats, err = enricher.Run(ctx, enrichLimit)
	}
	if stats != nil {
		enricher.PrintSummary(stats)
	}
	if err != nil {
		rt.logger.Error("member enrichment failed", "err", err)
		os.Exit(1)
	}
	if stats != nil && stats.Errors > 0 {
		os.Exit(1)
	}
}
