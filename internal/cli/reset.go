package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var (
		comparisonFlag string
		stale          bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Re-queue a comparison's failed entries (and optionally stale importing ones)",
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

			n, err := a.ledger.ResetFailed(ctx, comparisonID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed entries to pending\n", n)

			if stale {
				n, err := a.ledger.ResetStaleImporting(ctx, comparisonID, a.cfg.StaleAfter())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d stale importing entries to pending\n", n)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&comparisonFlag, "comparison", "", "comparison ID (defaults to the most recent)")
	cmd.Flags().BoolVar(&stale, "stale", false, "also reset importing entries older than the staleness window")
	return cmd
}
