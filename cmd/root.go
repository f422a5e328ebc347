// Package cmd wires the pipeline stages into a cobra command tree. Each
// stage is a batch process: it connects, runs, prints its summary, and
// exits non-zero when the run itself failed.
package cmd

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jharding/legistrack/internal/config"
	"github.com/jharding/legistrack/internal/congress"
	"github.com/jharding/legistrack/internal/logging"
	"github.com/jharding/legistrack/internal/rawstore"
	"github.com/jharding/legistrack/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "legistrack",
	Short: "Incremental sync and AI enrichment for congressional data",
	Long:  `legistrack keeps a local PostgreSQL mirror of bills, members, and
committees from the Congress.gov API, enriches bills with their
sub-resources, and generates AI summaries and tags from bill text.

Each subcommand is one pipeline stage and can be run independently:

  legistrack fetch bills       # incremental list sync
  legistrack enrich bills      # per-bill detail and sub-resources
  legistrack backfill          # audit and re-drive missing data
  legistrack summarize         # AI summaries and tags
  legistrack serve             # JSON read API`,
}

// Execute runs the command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runtime holds the shared dependencies every stage needs.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sql.DB
	client *congress.Client
	raw    *rawstore.Store
}

func newRuntime() *runtime {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	db, err := store.NewDB(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	return &runtime{
		cfg:    cfg,
		logger: logger,
		db:     db,
		client: congress.NewClient(cfg.API, logger),
		raw:    rawstore.New(cfg.Raw.Dir, cfg.Raw.RetentionDays, logger),
	}
}

func (r *runtime) Close() {
	r.db.Close()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received interrupt signal, shutting down")
		cancel()
	}()

	return ctx, cancel
}
