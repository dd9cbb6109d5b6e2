package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/creetelo/bmsync/internal/baremetrics"
	"github.com/creetelo/bmsync/internal/pkg/logger"
	"github.com/creetelo/bmsync/internal/planmap"
)

func newPlansCmd() *cobra.Command {
	var ensure bool

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "List Baremetrics plans and create the ones imports depend on",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			existing, err := a.billing.ListPlans(ctx, a.sourceID)
			if err != nil {
				return err
			}
			byOID := make(map[string]baremetrics.Plan, len(existing))
			for _, p := range existing {
				byOID[p.OID] = p
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "OID\tNAME\tINTERVAL\tAMOUNT\tCURRENCY")
			for _, p := range existing {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", p.OID, p.Name, p.Interval, p.Amount, p.Currency)
			}
			w.Flush()

			if !ensure {
				return nil
			}

			var created int
			for _, want := range planmap.Default().Plans() {
				if _, ok := byOID[want.OID]; ok {
					continue
				}
				_, err := a.billing.CreatePlan(ctx, a.sourceID, baremetrics.Plan{
					OID:           want.OID,
					Name:          want.Name,
					Interval:      string(want.Interval),
					IntervalCount: 1,
					Amount:        want.Amount,
					Currency:      want.Currency,
				})
				if err != nil {
					return fmt.Errorf("create plan %s: %w", want.OID, err)
				}
				logger.Info("plan created", "plan", want.OID)
				created++
			}
			if created > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", color.GreenString("%d plan(s) created", created))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "all mapped plans already exist")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ensure, "ensure", false, "create any mapped plan missing from the source")
	return cmd
}
