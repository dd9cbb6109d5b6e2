package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creetelo/bmsync/internal/domain"
)

func newLedgerMock(t *testing.T) (*LedgerRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLedgerRepo(db), mock
}

func TestCreateAssignsIDAndPendingStatus(t *testing.T) {
	repo, mock := newLedgerMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO import_ledger")).
		WithArgs(sqlmock.AnyArg(), "comp-1", "a@x.com", "Ana", "", "", pq.Array([]string{"creetelo_mensual"}), "c1", string(domain.ImportPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &domain.ImportLedgerEntry{
		ComparisonID: "comp-1",
		Email:        "a@x.com",
		Name:         "Ana",
		Tags:         []string{"creetelo_mensual"},
		GHLContactID: "c1",
	}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, domain.ImportPending, entry.ImportStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkImportingClaimsOnlyPending(t *testing.T) {
	repo, mock := newLedgerMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE import_ledger SET import_status =")).
		WithArgs("entry-1", string(domain.ImportImporting), string(domain.ImportPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkImporting(context.Background(), "entry-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkImportingAlreadyClaimed(t *testing.T) {
	repo, mock := newLedgerMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE import_ledger SET import_status =")).
		WithArgs("entry-1", string(domain.ImportImporting), string(domain.ImportPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkImporting(context.Background(), "entry-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkImportedStoresCustomerOID(t *testing.T) {
	repo, mock := newLedgerMock(t)

	mock.ExpectExec(regexp.QuoteMeta("baremetrics_customer_id = $3")).
		WithArgs("entry-1", string(domain.ImportImported), "cus_99", pq.StringArray{"importing"}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkImported(context.Background(), "entry-1", "cus_99"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkImportedRejectsUnclaimedRow(t *testing.T) {
	repo, mock := newLedgerMock(t)

	// A row still pending (or already terminal) matches no legal source
	// status, so the update touches nothing.
	mock.ExpectExec(regexp.QuoteMeta("import_status = ANY($4)")).
		WithArgs("entry-1", string(domain.ImportImported), "cus_99", pq.StringArray{"importing"}).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkImported(context.Background(), "entry-1", "cus_99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkFailedStoresReason(t *testing.T) {
	repo, mock := newLedgerMock(t)

	mock.ExpectExec(regexp.QuoteMeta("failure_reason = $3")).
		WithArgs("entry-1", string(domain.ImportFailed), "create customer: 422", pq.StringArray{"importing", "imported"}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), "entry-1", "create customer: 422"))
}

func TestResetFailedReturnsCount(t *testing.T) {
	repo, mock := newLedgerMock(t)

	mock.ExpectExec(regexp.QuoteMeta("WHERE comparison_id = $1 AND import_status = $3")).
		WithArgs("comp-1", string(domain.ImportPending), string(domain.ImportFailed)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.ResetFailed(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestResetStaleImporting(t *testing.T) {
	repo, mock := newLedgerMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INTERVAL '1 second'")).
		WithArgs("comp-1", string(domain.ImportPending), string(domain.ImportImporting), int64(1800)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ResetStaleImporting(context.Background(), "comp-1", 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestListByComparisonFiltersStatus(t *testing.T) {
	repo, mock := newLedgerMock(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "comparison_id", "email", "name", "company", "phone", "tags", "ghl_contact_id",
		"import_status", "baremetrics_customer_id", "imported_at", "failure_reason", "created_at", "updated_at",
	}).AddRow("entry-1", "comp-1", "a@x.com", "Ana", "", "", pq.Array([]string{"creetelo_anual"}), "c1",
		string(domain.ImportPending), nil, nil, nil, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("AND import_status = $2")).
		WithArgs("comp-1", string(domain.ImportPending)).
		WillReturnRows(rows)

	entries, err := repo.ListByComparison(context.Background(), "comp-1", domain.ImportPending)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a@x.com", entries[0].Email)
	assert.Equal(t, []string{"creetelo_anual"}, entries[0].Tags)
}

func TestClearCustomerRollback(t *testing.T) {
	repo, mock := newLedgerMock(t)

	mock.ExpectExec(regexp.QuoteMeta("baremetrics_customer_id = NULL")).
		WithArgs("entry-1", string(domain.ImportFailed), "rolled back by operator", string(domain.ImportImported)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ClearCustomer(context.Background(), "entry-1", "rolled back by operator"))
}

func TestCountsByStatus(t *testing.T) {
	repo, mock := newLedgerMock(t)

	rows := sqlmock.NewRows([]string{"import_status", "count"}).
		AddRow(string(domain.ImportImported), 7).
		AddRow(string(domain.ImportFailed), 2)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY import_status")).
		WithArgs("comp-1").
		WillReturnRows(rows)

	counts, err := repo.CountsByStatus(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, 7, counts[domain.ImportImported])
	assert.Equal(t, 2, counts[domain.ImportFailed])
}
