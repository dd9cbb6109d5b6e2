package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/creetelo/bmsync/internal/baremetrics"
	"github.com/creetelo/bmsync/internal/domain"
	"github.com/creetelo/bmsync/internal/ghl"
	"github.com/creetelo/bmsync/internal/pkg/logger"
	"github.com/creetelo/bmsync/internal/reconcile"
	"github.com/creetelo/bmsync/internal/report"
)

func newCompareCmd() *cobra.Command {
	var (
		tags        []string
		excludeTags []string
		limit       int
		formatFlag  string
		outputDir   string
		save        bool
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "List users present in GHL but absent from Baremetrics (and vice versa)",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(formatFlag)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			ghlCollector := ghl.NewCollector(a.ghl, a.cfg.GHL.PageSize, a.cfg.PageDelayGHL())
			users, err := ghlCollector.FetchByTags(ctx, tags, excludeTags, limit)
			if err != nil {
				return fmt.Errorf("fetch GHL contacts: %w", err)
			}

			bmCollector := baremetrics.NewCollector(a.billing, a.sourceID, a.cfg.PageDelayBaremetrics())
			customers, err := bmCollector.FetchAllCustomers(ctx, 0)
			if err != nil {
				return fmt.Errorf("fetch Baremetrics customers: %w", err)
			}

			result := reconcile.Reconcile(users, customers)
			if result.InvalidEmails > 0 {
				logger.Warn("entries with invalid emails classified by best-effort key",
					"count", result.InvalidEmails)
			}

			rep := &report.ComparisonReport{
				GeneratedAt:  time.Now(),
				Tags:         tags,
				ExcludeTags:  excludeTags,
				TotalGHL:     len(users),
				TotalBM:      len(customers),
				Common:       result.Common,
				MissingFromB: result.MissingFromB,
				MissingFromA: result.MissingFromA,
			}

			if err := rep.Render(cmd.OutOrStdout(), format); err != nil {
				return err
			}

			dir := outputDir
			if dir == "" {
				dir = a.cfg.Report.OutputDir
			}
			path, err := rep.Save(dir, format)
			if err != nil {
				return err
			}
			logger.Info("snapshot saved", "path", path)

			if !save {
				return nil
			}
			return saveComparison(cmd, a, rep)
		},
	}

	cmd.Flags().StringSliceVar(&tags, "tags", nil, "GHL tags to fetch (required)")
	cmd.Flags().StringSliceVar(&excludeTags, "exclude-tags", nil, "drop contacts carrying any of these tags")
	cmd.Flags().IntVar(&limit, "limit", 0, "max contacts to fetch per side (0 = all)")
	cmd.Flags().StringVar(&formatFlag, "format", "table", "output format: table, json or csv")
	cmd.Flags().StringVar(&outputDir, "output", "", "snapshot directory (defaults to report.output_dir)")
	cmd.Flags().BoolVar(&save, "save", false, "persist the comparison and its missing users as pending ledger entries")
	cmd.MarkFlagRequired("tags")
	return cmd
}

// saveComparison persists a comparison record plus one pending ledger entry
// per user missing from Baremetrics. Read-only comparisons never do this;
// the ledger is only ever written when the operator asks for it.
func saveComparison(cmd *cobra.Command, a *app, rep *report.ComparisonReport) error {
	ctx := cmd.Context()
	comparison := &domain.Comparison{
		Tags:         rep.Tags,
		ExcludeTags:  rep.ExcludeTags,
		TotalGHL:     rep.TotalGHL,
		TotalBM:      rep.TotalBM,
		TotalMissing: len(rep.MissingFromB),
	}
	if err := a.comparisons.Create(ctx, comparison); err != nil {
		return err
	}

	entries := make([]*domain.ImportLedgerEntry, 0, len(rep.MissingFromB))
	for _, u := range rep.MissingFromB {
		entries = append(entries, &domain.ImportLedgerEntry{
			ComparisonID: comparison.ID,
			Email:        u.Email,
			Name:         u.DisplayName,
			Company:      u.CompanyName,
			Phone:        u.Phone,
			Tags:         u.Tags,
			GHLContactID: u.ExternalID,
		})
	}
	if err := a.ledger.CreateBatch(ctx, entries); err != nil {
		return fmt.Errorf("persist ledger entries: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved comparison %s with %d pending entries\n",
		comparison.ID, len(entries))
	return nil
}
