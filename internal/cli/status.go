package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/creetelo/bmsync/internal/domain"
	"github.com/creetelo/bmsync/internal/report"
)

func newStatusCmd() *cobra.Command {
	var (
		comparisonFlag string
		statusFilter   string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a comparison's ledger entries and per-status counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			comparisonID, err := a.resolveComparison(ctx, comparisonFlag)
			if err != nil {
				return err
			}

			counts, err := a.ledger.CountsByStatus(ctx, comparisonID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Comparison %s\n", comparisonID)
			var done, remaining int
			for _, s := range []domain.ImportStatus{domain.ImportPending, domain.ImportImporting, domain.ImportImported, domain.ImportFailed} {
				if s.IsTerminal() {
					done += counts[s]
				} else {
					remaining += counts[s]
				}
				if counts[s] > 0 {
					fmt.Fprintf(out, "  %-10s %d\n", s, counts[s])
				}
			}
			fmt.Fprintf(out, "Done %d, remaining %d\n\n", done, remaining)

			entries, err := a.ledger.ListByComparison(ctx, comparisonID, domain.ImportStatus(statusFilter))
			if err != nil {
				return err
			}
			return report.EntriesTable(out, entries)
		},
	}

	cmd.Flags().StringVar(&comparisonFlag, "comparison", "", "comparison ID (defaults to the most recent)")
	cmd.Flags().StringVar(&statusFilter, "status", "", "filter entries by status (pending, importing, imported, failed)")
	return cmd
}
