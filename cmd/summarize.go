package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/jharding/legistrack/internal/ai"
	"github.com/jharding/legistrack/internal/store"
)

var summarizeLimit int

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Generate AI summaries and tags for bills missing them",
	Long: `Summarize drives each bill missing a summary through the AI
pipeline: resolve its text link, download and parse the bill XML, call
the configured provider for a structured summary and tag set, validate
the tags against the stored vocabulary, and commit the results in one
transaction.

The provider is selected by ai.provider in config ("anthropic" or
"openai"); the matching API key comes from the environment.

Examples:
  legistrack summarize --limit 25`,
	Run: runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)

	summarizeCmd.Flags().IntVar(&summarizeLimit, "limit", 0, "Summarize at most this many bills (0 = no limit)")
}

func runSummarize(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.Close()

	ctx, cancel := signalContext(rt.logger)
	defer cancel()

	processor, err := ai.NewProcessor(rt.cfg.AI)
	if err != nil {
		log.Fatalf("AI provider setup failed: %v", err)
	}

	bills := store.NewBillStore(rt.db)
	tags := store.NewTagStore(rt.db)
	pipeline := ai.NewPipeline(bills, tags, rt.client, rt.raw, processor, rt.cfg.AI, rt.logger)

	stats, err := pipeline.Run(ctx, summarizeLimit)
	if stats != nil {
		stats.PrintSummary(rt.logger)
	}
	if err != nil {
		rt.logger.Error("summarization run failed", "err", err)
		os.Exit(1)
	}
	if stats != nil && stats.Failed > 0 {
		os.Exit(1)
	}
}
