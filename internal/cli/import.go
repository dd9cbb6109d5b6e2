package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/creetelo/bmsync/internal/importer"
	"github.com/creetelo/bmsync/internal/planmap"
)

func newImportCmd() *cobra.Command {
	var (
		comparisonFlag string
		batchSize      int
		entryDelay     time.Duration
		batchDelay     time.Duration
		dryRun         bool
		skipExisting   bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a comparison's pending users into Baremetrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			comparisonID, err := a.resolveComparison(ctx, comparisonFlag)
			if err != nil {
				return err
			}

			opts := importer.Options{
				SourceID:     a.sourceID,
				BatchSize:    batchSize,
				EntryDelay:   entryDelay,
				BatchDelay:   batchDelay,
				StaleAfter:   a.cfg.StaleAfter(),
				DryRun:       dryRun,
				SkipExisting: skipExisting,
			}
			if opts.BatchSize == 0 {
				opts.BatchSize = a.cfg.Import.BatchSize
			}
			if opts.EntryDelay == 0 {
				opts.EntryDelay = a.cfg.EntryDelay()
			}
			if opts.BatchDelay == 0 {
				opts.BatchDelay = a.cfg.BatchDelay()
			}

			driver := importer.New(a.ledger, a.billing, planmap.Default(), a.lockFactory(), opts)
			summary, err := driver.Run(ctx, comparisonID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Processed: %d\n", summary.Processed)
			fmt.Fprintf(out, "Imported:  %s\n", color.GreenString("%d", summary.Imported))
			fmt.Fprintf(out, "Failed:    %s\n", color.RedString("%d", summary.Failed))
			if summary.Skipped > 0 {
				fmt.Fprintf(out, "Skipped:   %d\n", summary.Skipped)
			}
			if summary.RateLimited > 0 {
				fmt.Fprintf(out, "%s\n", color.YellowString(
					"%d failures were rate-limit responses; consider raising --entry-delay/--batch-delay",
					summary.RateLimited))
			}
			// Partial per-entry failures still exit 0; the ledger holds the
			// detail and `bmsync reset` re-queues them.
			return nil
		},
	}

	cmd.Flags().StringVar(&comparisonFlag, "comparison", "", "comparison ID (defaults to the most recent)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "entries per chunk (defaults to import.batch_size)")
	cmd.Flags().DurationVar(&entryDelay, "entry-delay", 0, "pause between entries (defaults to import.entry_delay_ms)")
	cmd.Flags().DurationVar(&batchDelay, "batch-delay", 0, "pause between chunks (defaults to import.batch_delay_seconds)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log intended actions without touching Baremetrics or the ledger")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "link entries whose email already exists in Baremetrics instead of creating")
	return cmd
}
