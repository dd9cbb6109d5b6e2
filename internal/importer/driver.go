// Package importer turns a comparison's pending ledger entries into
// Baremetrics customer + subscription pairs. The driver is deliberately
// serial: the remote API throttles bursts, so all "concurrency control" here
// is pacing, not parallelism. One bad record never halts the batch; failures
// are recorded on the entry and the driver moves on.
package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/creetelo/bmsync/internal/baremetrics"
	"github.com/creetelo/bmsync/internal/domain"
	"github.com/creetelo/bmsync/internal/identity"
	"github.com/creetelo/bmsync/internal/pkg/logger"
	"github.com/creetelo/bmsync/internal/pkg/runlock"
	"github.com/creetelo/bmsync/internal/planmap"
	"github.com/creetelo/bmsync/internal/repository/postgres"
)

// Ledger is the slice of the ledger repository the driver needs.
type Ledger interface {
	ListByComparison(ctx context.Context, comparisonID string, status domain.ImportStatus) ([]*domain.ImportLedgerEntry, error)
	MarkImporting(ctx context.Context, id string) error
	MarkImported(ctx context.Context, id, customerOID string) error
	MarkFailed(ctx context.Context, id, reason string) error
	ResetStaleImporting(ctx context.Context, comparisonID string, staleAfter time.Duration) (int64, error)
}

// Billing is the slice of the Baremetrics client the driver needs.
type Billing interface {
	CreateCustomer(ctx context.Context, sourceID string, payload baremetrics.CustomerPayload) (*baremetrics.Customer, error)
	CreateSubscription(ctx context.Context, sourceID string, payload baremetrics.SubscriptionPayload) (*domain.Subscription, error)
	FindCustomerByEmail(ctx context.Context, sourceID, email string) (*baremetrics.Customer, error)
}

// LockFactory builds the advisory lock guarding one comparison's run.
type LockFactory func(key string) runlock.RunLock

// Options tune a batch run.
type Options struct {
	SourceID     string
	BatchSize    int
	EntryDelay   time.Duration
	BatchDelay   time.Duration
	StaleAfter   time.Duration
	DryRun       bool
	SkipExisting bool
}

// Summary aggregates the outcome of one run. RateLimited counts the subset
// of failures that were 429/5xx responses, a signal to raise the delays.
type Summary struct {
	Processed   int
	Imported    int
	Failed      int
	Skipped     int
	RateLimited int
}

// Driver runs batch imports.
type Driver struct {
	ledger  Ledger
	billing Billing
	plans   *planmap.Table
	lockFor LockFactory
	opts    Options

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a driver.
func New(ledger Ledger, billing Billing, plans *planmap.Table, lockFor LockFactory, opts Options) *Driver {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Minute
	}
	return &Driver{
		ledger:  ledger,
		billing: billing,
		plans:   plans,
		lockFor: lockFor,
		opts:    opts,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// Run imports every pending entry of the comparison. Per-entry failures are
// recorded on the ledger and counted; only setup problems (lock held,
// ledger unreachable) return an error.
func (d *Driver) Run(ctx context.Context, comparisonID string) (*Summary, error) {
	lock := d.lockFor("import:" + comparisonID)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("another import run already holds the lock for comparison %s", comparisonID)
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("failed to release run lock", "comparison", comparisonID, "error", err.Error())
		}
	}()

	// Rows stuck in `importing` are the droppings of a crashed run; anything
	// older than the staleness window goes back to pending so this run picks
	// it up. Dry runs must not touch the ledger at all.
	if !d.opts.DryRun {
		reset, err := d.ledger.ResetStaleImporting(ctx, comparisonID, d.opts.StaleAfter)
		if err != nil {
			return nil, fmt.Errorf("reset stale importing entries: %w", err)
		}
		if reset > 0 {
			logger.Warn("reset stale importing entries from a previous run",
				"comparison", comparisonID, "count", reset)
		}
	}

	entries, err := d.ledger.ListByComparison(ctx, comparisonID, domain.ImportPending)
	if err != nil {
		return nil, fmt.Errorf("list pending entries: %w", err)
	}

	summary := &Summary{}
	logger.Info("starting import run",
		"comparison", comparisonID,
		"pending", len(entries),
		"batch_size", d.opts.BatchSize,
		"dry_run", d.opts.DryRun)

	for start := 0; start < len(entries); start += d.opts.BatchSize {
		end := start + d.opts.BatchSize
		if end > len(entries) {
			end = len(entries)
		}

		for _, entry := range entries[start:end] {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			d.importEntry(ctx, entry, summary)
			summary.Processed++
			if d.opts.EntryDelay > 0 {
				d.sleep(d.opts.EntryDelay)
			}
		}

		// Coarser pacing between chunks: chunk-sized bursts trigger remote
		// throttling even when per-entry pacing is respected.
		if end < len(entries) {
			if err := lock.Extend(ctx); err != nil {
				logger.Warn("failed to extend run lock",
					"comparison", comparisonID, "error", err.Error())
			}
			if d.opts.BatchDelay > 0 {
				d.sleep(d.opts.BatchDelay)
			}
		}
	}

	logger.Info("import run complete",
		"comparison", comparisonID,
		"processed", summary.Processed,
		"imported", summary.Imported,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"rate_limited", summary.RateLimited)
	return summary, nil
}

func (d *Driver) importEntry(ctx context.Context, entry *domain.ImportLedgerEntry, summary *Summary) {
	email, ok := identity.Normalize(entry.Email)
	plan := d.plans.Derive(entry.Tags)
	startedAt := d.subscriptionStart(entry)

	if d.opts.DryRun {
		logger.Info("dry-run: would import entry",
			"entry", entry.ID,
			"email", email,
			"plan", plan.OID,
			"started_at", startedAt.Format(time.RFC3339),
			"email_valid", ok)
		return
	}

	// Claim before any external call. A crash from here on leaves the row
	// visibly `importing` instead of silently lost.
	if err := d.ledger.MarkImporting(ctx, entry.ID); err != nil {
		if err == postgres.ErrNotFound {
			logger.Warn("entry no longer pending, skipping", "entry", entry.ID)
			summary.Skipped++
			return
		}
		// The row is still pending; failed is not a legal step from there.
		// Count it and leave the row for the next run.
		logger.Error("failed to claim entry, leaving it pending",
			"entry", entry.ID, "email", entry.Email, "error", err.Error())
		summary.Failed++
		return
	}

	if !ok {
		d.fail(ctx, entry, summary, fmt.Errorf("invalid email %q", entry.Email))
		return
	}

	if d.opts.SkipExisting {
		existing, err := d.billing.FindCustomerByEmail(ctx, d.opts.SourceID, email)
		if err != nil {
			d.fail(ctx, entry, summary, fmt.Errorf("pre-check existing customer: %w", err))
			return
		}
		if existing != nil {
			if err := d.ledger.MarkImported(ctx, entry.ID, existing.OID); err != nil {
				logger.Error("failed to record skip-existing result", "entry", entry.ID, "error", err.Error())
			}
			logger.Info("customer already exists, linked instead of creating",
				"entry", entry.ID, "email", email, "customer", existing.OID)
			summary.Skipped++
			return
		}
	}

	customer, err := d.billing.CreateCustomer(ctx, d.opts.SourceID, baremetrics.CustomerPayload{
		Email: email,
		Name:  entry.Name,
		Notes: d.customerNotes(entry),
	})
	if err != nil {
		d.fail(ctx, entry, summary, fmt.Errorf("create customer: %w", err))
		return
	}

	_, err = d.billing.CreateSubscription(ctx, d.opts.SourceID, baremetrics.SubscriptionPayload{
		CustomerOID: customer.OID,
		PlanOID:     plan.OID,
		StartedAt:   startedAt.Unix(),
	})
	if err != nil {
		d.fail(ctx, entry, summary, fmt.Errorf("create subscription for customer %s: %w", customer.OID, err))
		return
	}

	if err := d.ledger.MarkImported(ctx, entry.ID, customer.OID); err != nil {
		logger.Error("import succeeded remotely but marking the ledger failed",
			"entry", entry.ID, "customer", customer.OID, "error", err.Error())
		summary.Failed++
		return
	}

	logger.Info("imported entry",
		"entry", entry.ID, "email", email, "customer", customer.OID, "plan", plan.OID)
	summary.Imported++
}

// subscriptionStart derives the effective start date: the previous import
// timestamp when re-importing, else the entry's original creation time,
// else now. Future dates are clamped to now so the customer does not show
// up as not-yet-started.
func (d *Driver) subscriptionStart(entry *domain.ImportLedgerEntry) time.Time {
	now := d.now()
	started := now
	switch {
	case entry.ImportedAt != nil:
		started = *entry.ImportedAt
	case !entry.CreatedAt.IsZero():
		started = entry.CreatedAt
	}
	clamped := domain.ClampStart(started, now)
	if !clamped.Equal(started) {
		logger.Warn("future-dated subscription start clamped to now",
			"entry", entry.ID, "original", started.Format(time.RFC3339))
	}
	return clamped
}

func (d *Driver) customerNotes(entry *domain.ImportLedgerEntry) string {
	return fmt.Sprintf("Imported from GHL (tags: %s) at %s",
		strings.Join(entry.Tags, ", "), d.now().UTC().Format(time.RFC3339))
}

func (d *Driver) fail(ctx context.Context, entry *domain.ImportLedgerEntry, summary *Summary, cause error) {
	if baremetrics.IsRateLimited(cause) {
		summary.RateLimited++
	}
	logger.Error("entry import failed",
		"entry", entry.ID, "email", entry.Email, "error", cause.Error())
	if err := d.ledger.MarkFailed(ctx, entry.ID, cause.Error()); err != nil {
		logger.Error("failed to record failure on ledger", "entry", entry.ID, "error", err.Error())
	}
	summary.Failed++
}
