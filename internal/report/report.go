// Package report renders comparison results for the operator: console
// tables, JSON, or CSV, plus timestamped snapshot files on disk.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/creetelo/bmsync/internal/domain"
)

// Format selects the output rendering.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown format %q (want table, json or csv)", s)
}

// ComparisonReport is one reconciliation run's renderable result.
type ComparisonReport struct {
	GeneratedAt  time.Time                `json:"generated_at"`
	Tags         []string                 `json:"tags"`
	ExcludeTags  []string                 `json:"exclude_tags,omitempty"`
	TotalGHL     int                      `json:"total_ghl"`
	TotalBM      int                      `json:"total_baremetrics"`
	Common       []domain.DirectoryUser   `json:"common"`
	MissingFromB []domain.DirectoryUser   `json:"missing_from_baremetrics"`
	MissingFromA []domain.BillingCustomer `json:"missing_from_ghl"`
}

// Render writes the report to w in the given format.
func (r *ComparisonReport) Render(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatCSV:
		return r.renderCSV(w)
	default:
		return r.renderTable(w)
	}
}

func (r *ComparisonReport) renderTable(w io.Writer) error {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "Comparison %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Tags: %s\n", strings.Join(r.Tags, ", "))
	fmt.Fprintf(w, "GHL contacts: %d   Baremetrics customers: %d\n", r.TotalGHL, r.TotalBM)
	fmt.Fprintf(w, "Common: %d   Missing from Baremetrics: %s   Missing from GHL: %d\n\n",
		len(r.Common),
		color.RedString("%d", len(r.MissingFromB)),
		len(r.MissingFromA))

	if len(r.MissingFromB) > 0 {
		bold.Fprintln(w, "Missing from Baremetrics:")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "EMAIL\tNAME\tTAGS\tGHL ID")
		for _, u := range r.MissingFromB {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.Email, u.DisplayName, strings.Join(u.Tags, "|"), u.ExternalID)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	if len(r.MissingFromA) > 0 {
		bold.Fprintln(w, "Missing from GHL:")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "EMAIL\tNAME\tOID")
		for _, c := range r.MissingFromA {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Email, c.DisplayName, c.OID)
		}
		return tw.Flush()
	}
	return nil
}

func (r *ComparisonReport) renderCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"classification", "email", "name", "tags", "external_id"}); err != nil {
		return err
	}
	for _, u := range r.MissingFromB {
		if err := cw.Write([]string{"missing_from_baremetrics", u.Email, u.DisplayName, strings.Join(u.Tags, "|"), u.ExternalID}); err != nil {
			return err
		}
	}
	for _, u := range r.Common {
		if err := cw.Write([]string{"common", u.Email, u.DisplayName, strings.Join(u.Tags, "|"), u.ExternalID}); err != nil {
			return err
		}
	}
	for _, c := range r.MissingFromA {
		if err := cw.Write([]string{"missing_from_ghl", c.Email, c.DisplayName, "", c.OID}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save writes the report as a timestamped snapshot under dir, creating the
// directory when needed, and returns the file path.
func (r *ComparisonReport) Save(dir string, format Format) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	ext := string(format)
	if format == FormatTable {
		ext = "txt"
	}
	path := filepath.Join(dir, fmt.Sprintf("comparison_%s.%s", r.GeneratedAt.Format("20060102_150405"), ext))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	if err := r.Render(f, format); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// EntriesTable renders ledger entries as a console table, colorizing the
// status column so failed rows stand out.
func EntriesTable(w io.Writer, entries []*domain.ImportLedgerEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tSTATUS\tCUSTOMER\tREASON")
	for _, e := range entries {
		customer := ""
		if e.BaremetricsCustomerID != nil {
			customer = *e.BaremetricsCustomerID
		}
		reason := ""
		if e.FailureReason != nil {
			reason = *e.FailureReason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Email, colorStatus(e.ImportStatus), customer, reason)
	}
	return tw.Flush()
}

func colorStatus(s domain.ImportStatus) string {
	switch s {
	case domain.ImportImported:
		return color.GreenString(string(s))
	case domain.ImportFailed:
		return color.RedString(string(s))
	case domain.ImportImporting:
		return color.YellowString(string(s))
	}
	return string(s)
}
