// Package postgres implements the import ledger and comparison stores
// against PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/creetelo/bmsync/internal/domain"
)

// ErrNotFound is returned when a row lookup or a guarded status transition
// matches nothing.
var ErrNotFound = errors.New("postgres: not found")

// LedgerRepo stores ImportLedgerEntry rows.
type LedgerRepo struct{ db *sql.DB }

// NewLedgerRepo creates a Postgres-backed ledger repository.
func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

const ledgerColumns = `id, comparison_id, email, name, company, phone, tags, ghl_contact_id,
	import_status, baremetrics_customer_id, imported_at, failure_reason, created_at, updated_at`

// Create inserts a new entry in `pending` status.
func (r *LedgerRepo) Create(ctx context.Context, e *domain.ImportLedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ImportStatus == "" {
		e.ImportStatus = domain.ImportPending
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_ledger (id, comparison_id, email, name, company, phone, tags, ghl_contact_id, import_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`, e.ID, e.ComparisonID, e.Email, e.Name, e.Company, e.Phone, pq.Array(e.Tags), e.GHLContactID, e.ImportStatus)
	if err != nil {
		return fmt.Errorf("create ledger entry: %w", err)
	}
	return nil
}

// CreateBatch inserts a set of entries in one transaction, so a comparison
// save is all-or-nothing.
func (r *LedgerRepo) CreateBatch(ctx context.Context, entries []*domain.ImportLedgerEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.ImportStatus == "" {
			e.ImportStatus = domain.ImportPending
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO import_ledger (id, comparison_id, email, name, company, phone, tags, ghl_contact_id, import_status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		`, e.ID, e.ComparisonID, e.Email, e.Name, e.Company, e.Phone, pq.Array(e.Tags), e.GHLContactID, e.ImportStatus); err != nil {
			return fmt.Errorf("insert ledger entry %s: %w", e.Email, err)
		}
	}
	return tx.Commit()
}

// GetByID fetches one entry.
func (r *LedgerRepo) GetByID(ctx context.Context, id string) (*domain.ImportLedgerEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM import_ledger WHERE id = $1`, id)
	return scanEntry(row)
}

// ListByComparison returns a comparison's entries, optionally filtered by
// status (empty status means all). The (comparison_id, import_status) index
// keeps the pending-rows query cheap.
func (r *LedgerRepo) ListByComparison(ctx context.Context, comparisonID string, status domain.ImportStatus) ([]*domain.ImportLedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM import_ledger WHERE comparison_id = $1`
	args := []interface{}{comparisonID}
	if status != "" {
		query += ` AND import_status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.ImportLedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkImporting claims a pending entry before any external call is made.
// The pending guard makes the claim atomic: a row already claimed by
// another run comes back ErrNotFound instead of being processed twice.
func (r *LedgerRepo) MarkImporting(ctx context.Context, id string) error {
	return r.transition(ctx, id, `
		UPDATE import_ledger SET import_status = $2, updated_at = NOW()
		WHERE id = $1 AND import_status = $3
	`, domain.ImportImporting, domain.ImportPending)
}

// MarkImported records a successful external create. Only a claimed
// (importing) row can complete; anything else comes back ErrNotFound.
func (r *LedgerRepo) MarkImported(ctx context.Context, id, customerOID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE import_ledger
		SET import_status = $2, baremetrics_customer_id = $3, imported_at = NOW(),
		    failure_reason = NULL, updated_at = NOW()
		WHERE id = $1 AND import_status = ANY($4)
	`, id, domain.ImportImported, customerOID, legalSources(domain.ImportImported))
	if err != nil {
		return fmt.Errorf("mark imported: %w", err)
	}
	return requireRow(res)
}

// MarkFailed records a per-entry failure with its reason.
func (r *LedgerRepo) MarkFailed(ctx context.Context, id, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE import_ledger
		SET import_status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1 AND import_status = ANY($4)
	`, id, domain.ImportFailed, reason, legalSources(domain.ImportFailed))
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireRow(res)
}

// MarkPending resets an entry for retry, clearing its failure reason.
func (r *LedgerRepo) MarkPending(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE import_ledger
		SET import_status = $2, failure_reason = NULL, updated_at = NOW()
		WHERE id = $1 AND import_status = ANY($3)
	`, id, domain.ImportPending, legalSources(domain.ImportPending))
	if err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}
	return requireRow(res)
}

// ClearCustomer rolls back an imported entry after its remote records were
// deleted: status goes to failed with the rollback reason and the stored
// customer oid is cleared. Only imported rows are eligible; a mid-flight
// importing row must not be rolled back under a live run.
func (r *LedgerRepo) ClearCustomer(ctx context.Context, id, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE import_ledger
		SET import_status = $2, baremetrics_customer_id = NULL, imported_at = NULL,
		    failure_reason = $3, updated_at = NOW()
		WHERE id = $1 AND import_status = $4
	`, id, domain.ImportFailed, reason, domain.ImportImported)
	if err != nil {
		return fmt.Errorf("clear customer: %w", err)
	}
	return requireRow(res)
}

// ResetFailed moves a comparison's failed entries back to pending, returning
// how many were reset.
func (r *LedgerRepo) ResetFailed(ctx context.Context, comparisonID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE import_ledger
		SET import_status = $2, failure_reason = NULL, updated_at = NOW()
		WHERE comparison_id = $1 AND import_status = $3
	`, comparisonID, domain.ImportPending, domain.ImportFailed)
	if err != nil {
		return 0, fmt.Errorf("reset failed entries: %w", err)
	}
	return res.RowsAffected()
}

// ResetStaleImporting resets rows stuck in `importing` longer than
// staleAfter, the leftovers of a crashed run. Fresh `importing` rows are
// left alone; they may belong to a live run.
func (r *LedgerRepo) ResetStaleImporting(ctx context.Context, comparisonID string, staleAfter time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE import_ledger
		SET import_status = $2, updated_at = NOW()
		WHERE comparison_id = $1 AND import_status = $3
		  AND updated_at < NOW() - $4 * INTERVAL '1 second'
	`, comparisonID, domain.ImportPending, domain.ImportImporting, int64(staleAfter.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("reset stale importing entries: %w", err)
	}
	return res.RowsAffected()
}

// CountsByStatus returns the per-status entry counts for a comparison.
func (r *LedgerRepo) CountsByStatus(ctx context.Context, comparisonID string) (map[domain.ImportStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT import_status, COUNT(*) FROM import_ledger
		WHERE comparison_id = $1 GROUP BY import_status
	`, comparisonID)
	if err != nil {
		return nil, fmt.Errorf("count ledger entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ImportStatus]int)
	for rows.Next() {
		var status domain.ImportStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// legalSources returns the statuses the domain state machine allows to move
// to next, so every guarded update enforces the same lifecycle.
func legalSources(next domain.ImportStatus) pq.StringArray {
	all := []domain.ImportStatus{
		domain.ImportPending, domain.ImportImporting,
		domain.ImportImported, domain.ImportFailed,
	}
	var from pq.StringArray
	for _, s := range all {
		if s.CanTransition(next) {
			from = append(from, string(s))
		}
	}
	return from
}

func (r *LedgerRepo) transition(ctx context.Context, id, query string, next, current domain.ImportStatus) error {
	res, err := r.db.ExecContext(ctx, query, id, next, current)
	if err != nil {
		return fmt.Errorf("transition to %s: %w", next, err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*domain.ImportLedgerEntry, error) {
	var e domain.ImportLedgerEntry
	var tags pq.StringArray
	err := row.Scan(
		&e.ID, &e.ComparisonID, &e.Email, &e.Name, &e.Company, &e.Phone, &tags,
		&e.GHLContactID, &e.ImportStatus, &e.BaremetricsCustomerID, &e.ImportedAt,
		&e.FailureReason, &e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}
	e.Tags = tags
	return &e, nil
}
