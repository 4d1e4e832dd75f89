package store

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/kiwix/mirrors-qa/internal/models"
)

func scanMirror(row *sql.Row) (*models.Mirror, error) {
	var m models.Mirror
	var otherCountries []string
	err := row.Scan(
		&m.ID, &m.BaseURL, &m.Enabled, &m.CountryCode, &m.RegionCode,
		&m.ASN, &m.Score, &m.Latitude, &m.Longitude,
		&m.CountryOnly, &m.RegionOnly, &m.ASOnly, pq.Array(&otherCountries),
	)
	if err != nil {
		return nil, err
	}
	m.OtherCountries = otherCountries
	return &m, nil
}

const mirrorColumns = `id, base_url, enabled, country_code, region_code, asn, score, latitude, longitude, country_only, region_only, as_only, other_countries`

// GetMirrorByID fetches a Mirror by hostname. Returns NotFound if absent.
func (q *Queries) GetMirrorByID(ctx context.Context, id string) (*models.Mirror, error) {
	ctx, span := startSpan(ctx, "store.GetMirrorByID")
	defer span.End()

	row := q.db.QueryRowContext(ctx, `SELECT `+mirrorColumns+` FROM mirrors WHERE id = $1`, id)
	m, err := scanMirror(row)
	if err != nil {
		return nil, translateError(err, "mirror")
	}
	return m, nil
}

// GetOrInsertMirror inserts m if absent, keyed by id; returns the stored row
// either way. Used by the reconciler for the "fresh \ db" bucket.
func (q *Queries) GetOrInsertMirror(ctx context.Context, m models.Mirror) (*models.Mirror, error) {
	ctx, span := startSpan(ctx, "store.GetOrInsertMirror")
	defer span.End()

	row := q.db.QueryRowContext(ctx, `
		INSERT INTO mirrors (`+mirrorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET base_url = mirrors.base_url
		RETURNING `+mirrorColumns,
		m.ID, m.BaseURL, m.Enabled, m.CountryCode, m.RegionCode,
		m.ASN, m.Score, m.Latitude, m.Longitude,
		m.CountryOnly, m.RegionOnly, m.ASOnly, pq.Array(m.OtherCountries),
	)
	out, err := scanMirror(row)
	if err != nil {
		return nil, translateError(err, "mirror")
	}
	return out, nil
}

// ListEnabledMirrors returns every Mirror with enabled = true.
func (q *Queries) ListEnabledMirrors(ctx context.Context) ([]models.Mirror, error) {
	ctx, span := startSpan(ctx, "store.ListEnabledMirrors")
	defer span.End()

	rows, err := q.db.QueryContext(ctx, `SELECT `+mirrorColumns+` FROM mirrors WHERE enabled = true ORDER BY id`)
	if err != nil {
		return nil, translateError(err, "mirror")
	}
	defer rows.Close()

	var out []models.Mirror
	for rows.Next() {
		var m models.Mirror
		var otherCountries []string
		if err := rows.Scan(
			&m.ID, &m.BaseURL, &m.Enabled, &m.CountryCode, &m.RegionCode,
			&m.ASN, &m.Score, &m.Latitude, &m.Longitude,
			&m.CountryOnly, &m.RegionOnly, &m.ASOnly, pq.Array(&otherCountries),
		); err != nil {
			return nil, translateError(err, "mirror")
		}
		m.OtherCountries = otherCountries
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListAllMirrors returns every Mirror regardless of enabled state, used by
// the reconciler to compute the "db \ fresh" bucket.
func (q *Queries) ListAllMirrors(ctx context.Context) ([]models.Mirror, error) {
	ctx, span := startSpan(ctx, "store.ListAllMirrors")
	defer span.End()

	rows, err := q.db.QueryContext(ctx, `SELECT `+mirrorColumns+` FROM mirrors ORDER BY id`)
	if err != nil {
		return nil, translateError(err, "mirror")
	}
	defer rows.Close()

	var out []models.Mirror
	for rows.Next() {
		var m models.Mirror
		var otherCountries []string
		if err := rows.Scan(
			&m.ID, &m.BaseURL, &m.Enabled, &m.CountryCode, &m.RegionCode,
			&m.ASN, &m.Score, &m.Latitude, &m.Longitude,
			&m.CountryOnly, &m.RegionOnly, &m.ASOnly, pq.Array(&otherCountries),
		); err != nil {
			return nil, translateError(err, "mirror")
		}
		m.OtherCountries = otherCountries
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetMirrorEnabled flips a Mirror's enabled flag.
func (q *Queries) SetMirrorEnabled(ctx context.Context, id string, enabled bool) error {
	ctx, span := startSpan(ctx, "store.SetMirrorEnabled")
	defer span.End()

	res, err := q.db.ExecContext(ctx, `UPDATE mirrors SET enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return translateError(err, "mirror")
	}
	return checkAffected(res, "mirror")
}

// SetMirrorCountry attaches (or clears, if code is nil) a Mirror's country.
func (q *Queries) SetMirrorCountry(ctx context.Context, id string, countryCode *string) error {
	ctx, span := startSpan(ctx, "store.SetMirrorCountry")
	defer span.End()

	res, err := q.db.ExecContext(ctx, `UPDATE mirrors SET country_code = $2 WHERE id = $1`, id, countryCode)
	if err != nil {
		return translateError(err, "mirror")
	}
	return checkAffected(res, "mirror")
}

// SetMirrorRegion attaches (or clears) a Mirror's region.
func (q *Queries) SetMirrorRegion(ctx context.Context, id string, regionCode *string) error {
	ctx, span := startSpan(ctx, "store.SetMirrorRegion")
	defer span.End()

	res, err := q.db.ExecContext(ctx, `UPDATE mirrors SET region_code = $2 WHERE id = $1`, id, regionCode)
	if err != nil {
		return translateError(err, "mirror")
	}
	return checkAffected(res, "mirror")
}

// SetMirrorOtherCountries replaces the flattened country set a mirror also
// serves (derived from its declared regions).
func (q *Queries) SetMirrorOtherCountries(ctx context.Context, id string, countryCodes []string) error {
	ctx, span := startSpan(ctx, "store.SetMirrorOtherCountries")
	defer span.End()

	res, err := q.db.ExecContext(ctx, `UPDATE mirrors SET other_countries = $2 WHERE id = $1`, id, pq.Array(countryCodes))
	if err != nil {
		return translateError(err, "mirror")
	}
	return checkAffected(res, "mirror")
}

func checkAffected(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return translateError(err, resource)
	}
	if n == 0 {
		return translateError(sql.ErrNoRows, resource)
	}
	return nil
}
