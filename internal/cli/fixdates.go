package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/creetelo/bmsync/internal/domain"
	"github.com/creetelo/bmsync/internal/ghl"
	"github.com/creetelo/bmsync/internal/pkg/logger"
)

func newFixDatesCmd() *cobra.Command {
	var (
		comparisonFlag string
		entryDelay     time.Duration
		dryRun         bool
	)

	cmd := &cobra.Command{
		Use:   "fix-dates",
		Short: "Repair Baremetrics subscription start dates from GHL records",
		Long: `fix-dates re-derives each imported customer's origination date from their
GoHighLevel subscription (falling back to the contact's creation date) and
rewrites the Baremetrics subscription's started_at when they disagree.`,
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

			entries, err := a.ledger.ListByComparison(ctx, comparisonID, domain.ImportImported)
			if err != nil {
				return err
			}

			if entryDelay == 0 {
				entryDelay = a.cfg.EntryDelay()
			}

			out := cmd.OutOrStdout()
			var fixed, unchanged, failed int
			for i, e := range entries {
				if err := ctx.Err(); err != nil {
					return err
				}
				if e.BaremetricsCustomerID == nil {
					continue
				}

				changed, err := a.fixEntryDates(ctx, out, e, dryRun)
				if err != nil {
					logger.Error("fix dates", "entry", e.ID, "error", err)
					failed++
				} else if changed {
					fixed++
				} else {
					unchanged++
				}

				if i < len(entries)-1 {
					time.Sleep(entryDelay)
				}
			}

			verb := "Fixed"
			if dryRun {
				verb = "Would fix"
			}
			fmt.Fprintf(out, "%s:    %s\n", verb, color.GreenString("%d", fixed))
			fmt.Fprintf(out, "Unchanged: %d\n", unchanged)
			if failed > 0 {
				fmt.Fprintf(out, "Failed:    %s\n", color.RedString("%d", failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&comparisonFlag, "comparison", "", "comparison ID (defaults to the most recent)")
	cmd.Flags().DurationVar(&entryDelay, "entry-delay", 0, "pause between entries (defaults to import.entry_delay_ms)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the dates that would change without updating Baremetrics")
	return cmd
}

// fixEntryDates reconciles one entry's Baremetrics subscription start with
// the GHL origination date. Returns whether an update was (or would be) made.
func (a *app) fixEntryDates(ctx context.Context, out io.Writer, e *domain.ImportLedgerEntry, dryRun bool) (bool, error) {
	want, err := a.ghlOrigination(ctx, e)
	if err != nil {
		return false, err
	}
	if want == nil {
		return false, nil
	}
	clamped := domain.ClampStart(*want, time.Now())

	subs, err := a.billing.ListSubscriptions(ctx, a.sourceID, *e.BaremetricsCustomerID)
	if err != nil {
		return false, fmt.Errorf("list subscriptions: %w", err)
	}

	var changed bool
	for _, s := range subs {
		if s.StartedAt == clamped.Unix() {
			continue
		}
		if dryRun {
			fmt.Fprintf(out, "[dry-run] %s: subscription %s started_at %s -> %s\n",
				logger.RedactEmail(e.Email), s.OID,
				time.Unix(s.StartedAt, 0).UTC().Format("2006-01-02"),
				clamped.UTC().Format("2006-01-02"))
			changed = true
			continue
		}
		if _, err := a.billing.UpdateSubscription(ctx, a.sourceID, s.OID, map[string]interface{}{
			"started_at": clamped.Unix(),
		}); err != nil {
			return changed, fmt.Errorf("update subscription %s: %w", s.OID, err)
		}
		logger.Info("subscription start date repaired",
			"entry", e.ID, "subscription", s.OID, "started_at", clamped.UTC().Format(time.RFC3339))
		changed = true
	}
	return changed, nil
}

// ghlOrigination returns the best origination date GHL knows for the entry:
// the contact's subscription start when present, else the earliest payment,
// else the contact's creation date, else nil.
func (a *app) ghlOrigination(ctx context.Context, e *domain.ImportLedgerEntry) (*time.Time, error) {
	if e.GHLContactID != "" {
		sub, err := a.ghl.GetSubscriptionStatus(ctx, e.GHLContactID)
		if err != nil {
			return nil, fmt.Errorf("ghl subscription: %w", err)
		}
		if sub != nil {
			if t := sub.StartedAt(); t != nil {
				return t, nil
			}
		}
		payments, err := a.ghl.GetPayments(ctx, e.GHLContactID)
		if err != nil {
			return nil, fmt.Errorf("ghl payments: %w", err)
		}
		if t := earliestPayment(payments); t != nil {
			return t, nil
		}
	}
	contacts, err := a.ghl.GetContactByEmail(ctx, e.Email, true)
	if err != nil {
		return nil, fmt.Errorf("ghl contact lookup: %w", err)
	}
	for _, c := range contacts {
		if t := c.AddedAt(); t != nil {
			return t, nil
		}
	}
	return nil, nil
}

func earliestPayment(payments []ghl.Payment) *time.Time {
	var earliest *time.Time
	for _, p := range payments {
		t := p.PaidAt()
		if t == nil {
			continue
		}
		if earliest == nil || t.Before(*earliest) {
			earliest = t
		}
	}
	return earliest
}
