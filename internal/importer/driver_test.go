package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creetelo/bmsync/internal/baremetrics"
	"github.com/creetelo/bmsync/internal/domain"
	"github.com/creetelo/bmsync/internal/pkg/runlock"
	"github.com/creetelo/bmsync/internal/planmap"
	"github.com/creetelo/bmsync/internal/repository/postgres"
)

// fakeLedger is an in-memory ledger good enough for driver behavior tests.
type fakeLedger struct {
	entries     map[string]*domain.ImportLedgerEntry
	order       []string
	staleReset  int64
	claimErr    error
	failedCalls int
}

func newFakeLedger(entries ...*domain.ImportLedgerEntry) *fakeLedger {
	l := &fakeLedger{entries: make(map[string]*domain.ImportLedgerEntry)}
	for _, e := range entries {
		l.entries[e.ID] = e
		l.order = append(l.order, e.ID)
	}
	return l
}

func (l *fakeLedger) ListByComparison(ctx context.Context, comparisonID string, status domain.ImportStatus) ([]*domain.ImportLedgerEntry, error) {
	var out []*domain.ImportLedgerEntry
	for _, id := range l.order {
		e := l.entries[id]
		if e.ComparisonID == comparisonID && (status == "" || e.ImportStatus == status) {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (l *fakeLedger) MarkImporting(ctx context.Context, id string) error {
	if l.claimErr != nil {
		return l.claimErr
	}
	e, ok := l.entries[id]
	if !ok || e.ImportStatus != domain.ImportPending {
		return postgres.ErrNotFound
	}
	e.ImportStatus = domain.ImportImporting
	return nil
}

func (l *fakeLedger) MarkImported(ctx context.Context, id, customerOID string) error {
	e := l.entries[id]
	e.ImportStatus = domain.ImportImported
	e.BaremetricsCustomerID = &customerOID
	now := time.Now()
	e.ImportedAt = &now
	return nil
}

func (l *fakeLedger) MarkFailed(ctx context.Context, id, reason string) error {
	l.failedCalls++
	e := l.entries[id]
	e.ImportStatus = domain.ImportFailed
	e.FailureReason = &reason
	return nil
}

func (l *fakeLedger) ResetStaleImporting(ctx context.Context, comparisonID string, staleAfter time.Duration) (int64, error) {
	return l.staleReset, nil
}

// fakeBilling counts calls and fails on configured emails.
type fakeBilling struct {
	customers     int
	subscriptions int
	failEmails    map[string]error
	failSubs      map[string]error
	existing      map[string]string // email -> oid
	lastSub       baremetrics.SubscriptionPayload
}

func (b *fakeBilling) CreateCustomer(ctx context.Context, sourceID string, payload baremetrics.CustomerPayload) (*baremetrics.Customer, error) {
	if err, ok := b.failEmails[payload.Email]; ok {
		return nil, err
	}
	b.customers++
	return &baremetrics.Customer{OID: "cus_" + payload.Email, Email: payload.Email}, nil
}

func (b *fakeBilling) CreateSubscription(ctx context.Context, sourceID string, payload baremetrics.SubscriptionPayload) (*domain.Subscription, error) {
	if err, ok := b.failSubs[payload.CustomerOID]; ok {
		return nil, err
	}
	b.subscriptions++
	b.lastSub = payload
	return &domain.Subscription{OID: "sub_1", CustomerOID: payload.CustomerOID, PlanOID: payload.PlanOID, StartedAt: payload.StartedAt}, nil
}

func (b *fakeBilling) FindCustomerByEmail(ctx context.Context, sourceID, email string) (*baremetrics.Customer, error) {
	if oid, ok := b.existing[email]; ok {
		return &baremetrics.Customer{OID: oid, Email: email}, nil
	}
	return nil, nil
}

type fakeLock struct {
	available bool
	acquired  bool
	released  bool
	extends   int
}

func (l *fakeLock) Acquire(ctx context.Context) (bool, error) {
	if !l.available {
		return false, nil
	}
	l.acquired = true
	return true, nil
}

func (l *fakeLock) Extend(ctx context.Context) error {
	l.extends++
	return nil
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.released = true
	return nil
}

func entry(id, email string, tags ...string) *domain.ImportLedgerEntry {
	return &domain.ImportLedgerEntry{
		ID:           id,
		ComparisonID: "comp-1",
		Email:        email,
		Name:         "User " + id,
		Tags:         tags,
		ImportStatus: domain.ImportPending,
		CreatedAt:    time.Now().Add(-24 * time.Hour),
	}
}

func newDriver(ledger Ledger, billing Billing, lock runlock.RunLock, opts Options) *Driver {
	if opts.SourceID == "" {
		opts.SourceID = "src_1"
	}
	d := New(ledger, billing, planmap.Default(), func(string) runlock.RunLock { return lock }, opts)
	d.sleep = func(time.Duration) {}
	return d
}

func TestRunImportsPendingEntries(t *testing.T) {
	ledger := newFakeLedger(
		entry("e1", "a@x.com", "creetelo_mensual"),
		entry("e2", "b@x.com", "creetelo_anual"),
	)
	billing := &fakeBilling{}
	lock := &fakeLock{available: true}

	summary, err := newDriver(ledger, billing, lock, Options{}).Run(context.Background(), "comp-1")

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Imported)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, billing.customers)
	assert.Equal(t, 2, billing.subscriptions)
	assert.Equal(t, domain.ImportImported, ledger.entries["e1"].ImportStatus)
	assert.NotNil(t, ledger.entries["e1"].BaremetricsCustomerID)
	assert.True(t, lock.released)
}

func TestRunFailureIsolation(t *testing.T) {
	// e1's create fails; e2 must still be attempted.
	ledger := newFakeLedger(
		entry("e1", "a@x.com", "creetelo_mensual"),
		entry("e2", "b@x.com", "creetelo_mensual"),
	)
	billing := &fakeBilling{failEmails: map[string]error{
		"a@x.com": &baremetrics.APIError{StatusCode: 422, Body: "duplicate"},
	}}
	lock := &fakeLock{available: true}

	summary, err := newDriver(ledger, billing, lock, Options{}).Run(context.Background(), "comp-1")

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, domain.ImportFailed, ledger.entries["e1"].ImportStatus)
	require.NotNil(t, ledger.entries["e1"].FailureReason)
	assert.NotEmpty(t, *ledger.entries["e1"].FailureReason)
	assert.Equal(t, domain.ImportImported, ledger.entries["e2"].ImportStatus)
}

func TestRunRateLimitedTalliedSeparately(t *testing.T) {
	ledger := newFakeLedger(entry("e1", "a@x.com", "creetelo_mensual"))
	billing := &fakeBilling{failEmails: map[string]error{
		"a@x.com": &baremetrics.APIError{StatusCode: 429, Body: "slow down"},
	}}
	lock := &fakeLock{available: true}

	summary, err := newDriver(ledger, billing, lock, Options{}).Run(context.Background(), "comp-1")

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.RateLimited)
}

func TestRunFutureStartDateClamped(t *testing.T) {
	e := entry("e1", "a@x.com", "creetelo_anual")
	e.CreatedAt = time.Now().Add(48 * time.Hour)
	ledger := newFakeLedger(e)
	billing := &fakeBilling{}
	lock := &fakeLock{available: true}

	fixedNow := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	d := newDriver(ledger, billing, lock, Options{})
	d.now = func() time.Time { return fixedNow }

	_, err := d.Run(context.Background(), "comp-1")

	require.NoError(t, err)
	assert.Equal(t, fixedNow.Unix(), billing.lastSub.StartedAt)
}

func TestRunPastStartDatePreserved(t *testing.T) {
	origin := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	e := entry("e1", "a@x.com", "creetelo_anual")
	e.CreatedAt = origin
	ledger := newFakeLedger(e)
	billing := &fakeBilling{}
	lock := &fakeLock{available: true}

	_, err := newDriver(ledger, billing, lock, Options{}).Run(context.Background(), "comp-1")

	require.NoError(t, err)
	assert.Equal(t, origin.Unix(), billing.lastSub.StartedAt)
}

func TestRunDryRunMakesNoMutations(t *testing.T) {
	ledger := newFakeLedger(
		entry("e1", "a@x.com", "creetelo_mensual"),
		entry("e2", "b@x.com", "creetelo_anual"),
	)
	billing := &fakeBilling{}
	lock := &fakeLock{available: true}

	summary, err := newDriver(ledger, billing, lock, Options{DryRun: true}).Run(context.Background(), "comp-1")

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, summary.Imported)
	assert.Equal(t, 0, billing.customers)
	assert.Equal(t, 0, billing.subscriptions)
	assert.Equal(t, domain.ImportPending, ledger.entries["e1"].ImportStatus)
	assert.Equal(t, domain.ImportPending, ledger.entries["e2"].ImportStatus)
}

func TestRunIdempotentSecondRunProcessesNothing(t *testing.T) {
	ledger := newFakeLedger(
		entry("e1", "a@x.com", "creetelo_mensual"),
		entry("e2", "b@x.com", "creetelo_mensual"),
	)
	billing := &fakeBilling{}
	lock := &fakeLock{available: true}
	d := newDriver(ledger, billing, lock, Options{})

	first, err := d.Run(context.Background(), "comp-1")
	require.NoError(t, err)
	require.Equal(t, 2, first.Imported)

	second, err := d.Run(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 2, billing.customers, "no duplicate customers created")
}

func TestRunInvalidEmailFailsEntry(t *testing.T) {
	ledger := newFakeLedger(entry("e1", "not-an-email", "creetelo_mensual"))
	billing := &fakeBilling{}
	lock := &fakeLock{available: true}

	summary, err := newDriver(ledger, billing, lock, Options{}).Run(context.Background(), "comp-1")

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, billing.customers)
	require.NotNil(t, ledger.entries["e1"].FailureReason)
	assert.Contains(t, *ledger.entries["e1"].FailureReason, "invalid email")
}

func TestRunSkipExistingLinksInsteadOfCreating(t *testing.T) {
	ledger := newFakeLedger(entry("e1", "a@x.com", "creetelo_mensual"))
	billing := &fakeBilling{existing: map[string]string{"a@x.com": "cus_prior"}}
	lock := &fakeLock{available: true}

	summary, err := newDriver(ledger, billing, lock, Options{SkipExisting: true}).Run(context.Background(), "comp-1")

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, billing.customers)
	assert.Equal(t, domain.ImportImported, ledger.entries["e1"].ImportStatus)
	require.NotNil(t, ledger.entries["e1"].BaremetricsCustomerID)
	assert.Equal(t, "cus_prior", *ledger.entries["e1"].BaremetricsCustomerID)
}

func TestRunLockHeldIsSetupError(t *testing.T) {
	ledger := newFakeLedger(entry("e1", "a@x.com"))
	billing := &fakeBilling{}
	lock := &fakeLock{available: false}

	_, err := newDriver(ledger, billing, lock, Options{}).Run(context.Background(), "comp-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "holds the lock")
	assert.Equal(t, 0, billing.customers)
}

func TestRunPacingSleeps(t *testing.T) {
	ledger := newFakeLedger(
		entry("e1", "a@x.com"), entry("e2", "b@x.com"), entry("e3", "c@x.com"),
	)
	billing := &fakeBilling{}
	lock := &fakeLock{available: true}

	var entrySleeps, batchSleeps int
	entryDelay := 10 * time.Millisecond
	batchDelay := 100 * time.Millisecond
	d := New(ledger, billing, planmap.Default(), func(string) runlock.RunLock { return lock }, Options{
		SourceID:   "src_1",
		BatchSize:  2,
		EntryDelay: entryDelay,
		BatchDelay: batchDelay,
	})
	d.sleep = func(dur time.Duration) {
		switch dur {
		case entryDelay:
			entrySleeps++
		case batchDelay:
			batchSleeps++
		}
	}

	_, err := d.Run(context.Background(), "comp-1")

	require.NoError(t, err)
	assert.Equal(t, 3, entrySleeps, "one pacing sleep per entry")
	assert.Equal(t, 1, batchSleeps, "one chunk-boundary sleep between the two chunks")
}

func TestRunClaimErrorLeavesRowPending(t *testing.T) {
	// A claim failure that is not "already claimed" means the ledger itself
	// misbehaved; the row is still pending, and pending -> failed is not a
	// legal step, so no failure must be written.
	ledger := newFakeLedger(entry("e1", "a@x.com", "creetelo_mensual"))
	ledger.claimErr = errors.New("connection reset")
	billing := &fakeBilling{}
	lock := &fakeLock{available: true}

	summary, err := newDriver(ledger, billing, lock, Options{}).Run(context.Background(), "comp-1")

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, ledger.failedCalls, "MarkFailed must not run on an unclaimed row")
	assert.Equal(t, domain.ImportPending, ledger.entries["e1"].ImportStatus)
	assert.Equal(t, 0, billing.customers)
}

func TestRunExtendsLockBetweenChunks(t *testing.T) {
	ledger := newFakeLedger(
		entry("e1", "a@x.com"), entry("e2", "b@x.com"), entry("e3", "c@x.com"),
	)
	billing := &fakeBilling{}
	lock := &fakeLock{available: true}

	_, err := newDriver(ledger, billing, lock, Options{BatchSize: 2}).Run(context.Background(), "comp-1")

	require.NoError(t, err)
	assert.Equal(t, 1, lock.extends, "one lease renewal per chunk boundary")
}

func TestRunSubscriptionFailureRecordsCustomerOID(t *testing.T) {
	ledger := newFakeLedger(entry("e1", "a@x.com", "creetelo_mensual"))
	billing := &fakeBilling{failSubs: map[string]error{
		"cus_a@x.com": errors.New("boom"),
	}}
	lock := &fakeLock{available: true}

	summary, err := newDriver(ledger, billing, lock, Options{}).Run(context.Background(), "comp-1")

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	require.NotNil(t, ledger.entries["e1"].FailureReason)
	assert.Contains(t, *ledger.entries["e1"].FailureReason, fmt.Sprintf("customer %s", "cus_a@x.com"))
}
