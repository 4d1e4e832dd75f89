package store

import (
	"context"

	"github.com/kiwix/mirrors-qa/internal/models"
)

// GetRegion fetches a Region by code. Returns NotFound if absent.
func (q *Queries) GetRegion(ctx context.Context, code string) (*models.Region, error) {
	ctx, span := startSpan(ctx, "store.GetRegion")
	defer span.End()

	var r models.Region
	err := q.db.QueryRowContext(ctx, `SELECT code, name FROM regions WHERE code = $1`, code).
		Scan(&r.Code, &r.Name)
	if err != nil {
		return nil, translateError(err, "region")
	}
	return &r, nil
}

// CreateRegion inserts a Region idempotently by code.
func (q *Queries) CreateRegion(ctx context.Context, r models.Region) error {
	ctx, span := startSpan(ctx, "store.CreateRegion")
	defer span.End()

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO regions (code, name) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
	`, r.Code, r.Name)
	if err != nil {
		return translateError(err, "region")
	}
	return nil
}
