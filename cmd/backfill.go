package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dispatchlab/fieldops/config"
	coremetrics "github.com/dispatchlab/fieldops/core/metrics"
	"github.com/dispatchlab/fieldops/core/runstore"
	"github.com/dispatchlab/fieldops/infra/logger"
	_ "github.com/dispatchlab/fieldops/infra/metrics"
	infrarunstore "github.com/dispatchlab/fieldops/infra/runstore"
	"github.com/dispatchlab/fieldops/jobs/kpibackfill"
)

var (
	backfillTenant string
	backfillSince  time.Duration
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Replay stored run history into the configured metrics sinks",
	RunE:  runBackfill,
}

func init() {
	backfillCmd.Flags().StringVar(&backfillTenant, "tenant", "", "only replay runs of this tenant")
	backfillCmd.Flags().DurationVar(&backfillSince, "since", 0, "only replay runs started within this window, 0 replays everything")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New("backfill-command")

	if cfg.RunStore.Backend != "sqlite" {
		return fmt.Errorf("backfill needs the sqlite run store, backend is %q", cfg.RunStore.Backend)
	}
	store, err := infrarunstore.NewSQLiteStore(cfg.RunStore.Path)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logg.Errorf("close run store: %v", err)
		}
	}()

	sink, err := coremetrics.NewRunSink(cfg.Metrics.Sinks)
	if err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}

	q := runstore.Query{TenantID: backfillTenant}
	if backfillSince > 0 {
		q.Start = time.Now().Add(-backfillSince)
	}
	recs, err := store.List(ctx, q)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	n, err := kpibackfill.Backfill(sink, recs)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "backfilled %d of %d runs\n", n, len(recs))
	return nil
}
