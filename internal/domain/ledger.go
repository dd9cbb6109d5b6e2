package domain

import "time"

// ImportStatus enumerates the lifecycle states of a ledger entry.
type ImportStatus string

const (
	ImportPending   ImportStatus = "pending"
	ImportImporting ImportStatus = "importing"
	ImportImported  ImportStatus = "imported"
	ImportFailed    ImportStatus = "failed"
)

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Operator resets (failed -> pending) and rollbacks
// (imported -> failed) are legal; everything else follows the forward path
// pending -> importing -> imported|failed.
func (s ImportStatus) CanTransition(next ImportStatus) bool {
	switch s {
	case ImportPending:
		return next == ImportImporting
	case ImportImporting:
		return next == ImportImported || next == ImportFailed || next == ImportPending
	case ImportFailed:
		return next == ImportPending
	case ImportImported:
		return next == ImportFailed
	}
	return false
}

// IsTerminal returns true if the status ends an import attempt. Both states
// are re-enterable via explicit operator commands.
func (s ImportStatus) IsTerminal() bool {
	return s == ImportImported || s == ImportFailed
}

// ImportLedgerEntry is the one entity owned by this system: a candidate user
// captured by a comparison run, tracked through the import lifecycle.
type ImportLedgerEntry struct {
	ID                    string       `json:"id" db:"id"`
	ComparisonID          string       `json:"comparison_id" db:"comparison_id"`
	Email                 string       `json:"email" db:"email"`
	Name                  string       `json:"name" db:"name"`
	Company               string       `json:"company" db:"company"`
	Phone                 string       `json:"phone" db:"phone"`
	Tags                  []string     `json:"tags" db:"tags"`
	GHLContactID          string       `json:"ghl_contact_id" db:"ghl_contact_id"`
	ImportStatus          ImportStatus `json:"import_status" db:"import_status"`
	BaremetricsCustomerID *string      `json:"baremetrics_customer_id" db:"baremetrics_customer_id"`
	ImportedAt            *time.Time   `json:"imported_at" db:"imported_at"`
	FailureReason         *string      `json:"failure_reason" db:"failure_reason"`
	CreatedAt             time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at" db:"updated_at"`
}

// Comparison groups the ledger entries produced by one reconciliation run,
// so "import everything still pending for run X" is a scoped operation.
type Comparison struct {
	ID           string    `json:"id" db:"id"`
	Tags         []string  `json:"tags" db:"tags"`
	ExcludeTags  []string  `json:"exclude_tags" db:"exclude_tags"`
	TotalGHL     int       `json:"total_ghl" db:"total_ghl"`
	TotalBM      int       `json:"total_bm" db:"total_bm"`
	TotalMissing int       `json:"total_missing" db:"total_missing"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
