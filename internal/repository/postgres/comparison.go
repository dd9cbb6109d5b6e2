package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/creetelo/bmsync/internal/domain"
)

// ComparisonRepo stores comparison runs.
type ComparisonRepo struct{ db *sql.DB }

// NewComparisonRepo creates a Postgres-backed comparison repository.
func NewComparisonRepo(db *sql.DB) *ComparisonRepo { return &ComparisonRepo{db: db} }

// Create inserts a comparison record.
func (r *ComparisonRepo) Create(ctx context.Context, c *domain.Comparison) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO comparisons (id, tags, exclude_tags, total_ghl, total_bm, total_missing, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, c.ID, pq.Array(c.Tags), pq.Array(c.ExcludeTags), c.TotalGHL, c.TotalBM, c.TotalMissing)
	if err != nil {
		return fmt.Errorf("create comparison: %w", err)
	}
	return nil
}

// GetByID fetches one comparison.
func (r *ComparisonRepo) GetByID(ctx context.Context, id string) (*domain.Comparison, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tags, exclude_tags, total_ghl, total_bm, total_missing, created_at
		FROM comparisons WHERE id = $1
	`, id)
	return scanComparison(row)
}

// Latest returns the most recently created comparison, ErrNotFound when the
// table is empty. Commands default to it when --comparison is omitted.
func (r *ComparisonRepo) Latest(ctx context.Context) (*domain.Comparison, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tags, exclude_tags, total_ghl, total_bm, total_missing, created_at
		FROM comparisons ORDER BY created_at DESC LIMIT 1
	`)
	return scanComparison(row)
}

// List returns the newest comparisons, up to limit.
func (r *ComparisonRepo) List(ctx context.Context, limit int) ([]*domain.Comparison, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tags, exclude_tags, total_ghl, total_bm, total_missing, created_at
		FROM comparisons ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list comparisons: %w", err)
	}
	defer rows.Close()

	var comparisons []*domain.Comparison
	for rows.Next() {
		c, err := scanComparison(rows)
		if err != nil {
			return nil, err
		}
		comparisons = append(comparisons, c)
	}
	return comparisons, rows.Err()
}

func scanComparison(row rowScanner) (*domain.Comparison, error) {
	var c domain.Comparison
	var tags, excludeTags pq.StringArray
	err := row.Scan(&c.ID, &tags, &excludeTags, &c.TotalGHL, &c.TotalBM, &c.TotalMissing, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan comparison: %w", err)
	}
	c.Tags = tags
	c.ExcludeTags = excludeTags
	return &c, nil
}
