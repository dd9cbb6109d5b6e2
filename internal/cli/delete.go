package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/creetelo/bmsync/internal/domain"
	"github.com/creetelo/bmsync/internal/pkg/logger"
)

func newDeleteCmd() *cobra.Command {
	var (
		comparisonFlag string
		entryDelay     time.Duration
		dryRun         bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Roll back a comparison's imported customers from Baremetrics",
		Long: `Delete walks every imported entry of a comparison, removes the customer's
subscriptions and then the customer from Baremetrics, and marks the ledger
entry failed with a rollback note so a later import can recreate it.`,
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

			lock := a.lockFactory()("import:" + comparisonID)
			acquired, err := lock.Acquire(ctx)
			if err != nil {
				return fmt.Errorf("acquire run lock: %w", err)
			}
			if !acquired {
				return fmt.Errorf("another run holds the lock for comparison %s", comparisonID)
			}
			defer lock.Release(ctx)

			entries, err := a.ledger.ListByComparison(ctx, comparisonID, domain.ImportImported)
			if err != nil {
				return err
			}

			if entryDelay == 0 {
				entryDelay = a.cfg.EntryDelay()
			}

			out := cmd.OutOrStdout()
			var deleted, failed int
			for i, e := range entries {
				if err := ctx.Err(); err != nil {
					return err
				}
				if e.BaremetricsCustomerID == nil {
					continue
				}
				oid := *e.BaremetricsCustomerID

				if dryRun {
					fmt.Fprintf(out, "[dry-run] would delete customer %s (%s)\n", oid, logger.RedactEmail(e.Email))
					continue
				}

				if err := a.deleteCustomer(ctx, oid); err != nil {
					logger.Error("rollback failed", "entry", e.ID, "customer", oid, "error", err)
					failed++
					continue
				}
				if err := a.ledger.ClearCustomer(ctx, e.ID, "rolled back by delete command"); err != nil {
					logger.Error("clear ledger entry", "entry", e.ID, "error", err)
					failed++
					continue
				}
				deleted++

				if i < len(entries)-1 {
					time.Sleep(entryDelay)
				}
			}

			fmt.Fprintf(out, "Deleted: %s\n", color.GreenString("%d", deleted))
			if failed > 0 {
				fmt.Fprintf(out, "Failed:  %s\n", color.RedString("%d", failed))
			}
			if dryRun {
				fmt.Fprintf(out, "%d entries would be rolled back\n", len(entries))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&comparisonFlag, "comparison", "", "comparison ID (defaults to the most recent)")
	cmd.Flags().DurationVar(&entryDelay, "entry-delay", 0, "pause between deletes (defaults to import.entry_delay_ms)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the customers that would be deleted without deleting them")
	return cmd
}

// deleteCustomer removes the customer's subscriptions first so Baremetrics
// accepts the customer delete.
func (a *app) deleteCustomer(ctx context.Context, oid string) error {
	subs, err := a.billing.ListSubscriptions(ctx, a.sourceID, oid)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	for _, s := range subs {
		if err := a.billing.DeleteSubscription(ctx, a.sourceID, s.OID); err != nil {
			return fmt.Errorf("delete subscription %s: %w", s.OID, err)
		}
	}
	if err := a.billing.DeleteCustomer(ctx, a.sourceID, oid); err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	return nil
}
