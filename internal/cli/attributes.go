package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/creetelo/bmsync/internal/domain"
	"github.com/creetelo/bmsync/internal/pkg/logger"
)

func newAttributesCmd() *cobra.Command {
	var (
		comparisonFlag string
		entryDelay     time.Duration
		dryRun         bool
		ghlTag         string
	)

	cmd := &cobra.Command{
		Use:   "attributes",
		Short: "Push GHL contact metadata onto imported Baremetrics customers",
		Long: `attributes annotates every imported customer with custom attributes from
the ledger: the GHL contact ID, the contact's tags, and the import timestamp.
Useful for tracing a Baremetrics customer back to its CRM record.

With --ghl-tag the source contact is stamped too, so the sync state is
visible from the CRM side.`,
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
			var updated, failed int
			for i, e := range entries {
				if err := ctx.Err(); err != nil {
					return err
				}
				if e.BaremetricsCustomerID == nil {
					continue
				}

				attrs := map[string]string{
					"ghl_contact_id": e.GHLContactID,
					"ghl_tags":       strings.Join(e.Tags, ","),
				}
				if e.ImportedAt != nil {
					attrs["imported_at"] = e.ImportedAt.UTC().Format(time.RFC3339)
				}

				if dryRun {
					fmt.Fprintf(out, "[dry-run] would annotate %s (%s)\n",
						*e.BaremetricsCustomerID, logger.RedactEmail(e.Email))
					updated++
					continue
				}

				ok, err := a.billing.UpdateCustomerAttributes(ctx, *e.BaremetricsCustomerID, attrs)
				if err != nil || !ok {
					logger.Error("update attributes", "entry", e.ID, "customer", *e.BaremetricsCustomerID, "error", err)
					failed++
				} else {
					updated++
					if ghlTag != "" && e.GHLContactID != "" && !hasString(e.Tags, ghlTag) {
						if err := a.ghl.UpdateContact(ctx, e.GHLContactID, map[string]interface{}{
							"tags": append(e.Tags, ghlTag),
						}); err != nil {
							logger.Error("tag ghl contact", "entry", e.ID, "contact", e.GHLContactID, "error", err)
						}
					}
				}

				if i < len(entries)-1 {
					time.Sleep(entryDelay)
				}
			}

			verb := "Updated"
			if dryRun {
				verb = "Would update"
			}
			fmt.Fprintf(out, "%s: %s\n", verb, color.GreenString("%d", updated))
			if failed > 0 {
				fmt.Fprintf(out, "Failed:  %s\n", color.RedString("%d", failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&comparisonFlag, "comparison", "", "comparison ID (defaults to the most recent)")
	cmd.Flags().DurationVar(&entryDelay, "entry-delay", 0, "pause between entries (defaults to import.entry_delay_ms)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the customers that would be annotated without calling Baremetrics")
	cmd.Flags().StringVar(&ghlTag, "ghl-tag", "", "also add this tag to the source GHL contact after annotating")
	return cmd
}

func hasString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
