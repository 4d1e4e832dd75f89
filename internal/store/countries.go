package store

import (
	"context"

	"github.com/kiwix/mirrors-qa/internal/models"
)

// GetCountry fetches a Country by its lowercase ISO code. Returns NotFound
// if absent.
func (q *Queries) GetCountry(ctx context.Context, code string) (*models.Country, error) {
	ctx, span := startSpan(ctx, "store.GetCountry")
	defer span.End()

	var c models.Country
	err := q.db.QueryRowContext(ctx, `SELECT code, name, region_code FROM countries WHERE code = $1`, code).
		Scan(&c.Code, &c.Name, &c.RegionCode)
	if err != nil {
		return nil, translateError(err, "country")
	}
	return &c, nil
}

// CreateCountry inserts a Country idempotently by code; re-running with the
// same code updates name/region_code in place.
func (q *Queries) CreateCountry(ctx context.Context, c models.Country) error {
	ctx, span := startSpan(ctx, "store.CreateCountry")
	defer span.End()

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO countries (code, name, region_code) VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, region_code = EXCLUDED.region_code
	`, c.Code, c.Name, c.RegionCode)
	if err != nil {
		return translateError(err, "country")
	}
	return nil
}

// ListCountries returns every known Country, ordered by code.
func (q *Queries) ListCountries(ctx context.Context) ([]models.Country, error) {
	ctx, span := startSpan(ctx, "store.ListCountries")
	defer span.End()

	rows, err := q.db.QueryContext(ctx, `SELECT code, name, region_code FROM countries ORDER BY code`)
	if err != nil {
		return nil, translateError(err, "country")
	}
	defer rows.Close()

	var out []models.Country
	for rows.Next() {
		var c models.Country
		if err := rows.Scan(&c.Code, &c.Name, &c.RegionCode); err != nil {
			return nil, translateError(err, "country")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
