package store

import (
	"context"
	"sort"

	"github.com/kiwix/mirrors-qa/internal/models"
)

// GetWorker fetches a Worker and its assigned countries. Returns NotFound if
// absent.
func (q *Queries) GetWorker(ctx context.Context, id string) (*models.Worker, error) {
	ctx, span := startSpan(ctx, "store.GetWorker")
	defer span.End()

	var w models.Worker
	err := q.db.QueryRowContext(ctx, `
		SELECT id, pubkey_pem, pubkey_fingerprint, last_seen_on FROM workers WHERE id = $1
	`, id).Scan(&w.ID, &w.PubkeyPEM, &w.PubkeyFingerprint, &w.LastSeenOn)
	if err != nil {
		return nil, translateError(err, "worker")
	}

	countries, err := q.listWorkerCountries(ctx, id)
	if err != nil {
		return nil, err
	}
	w.Countries = countries
	return &w, nil
}

func (q *Queries) listWorkerCountries(ctx context.Context, workerID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT country_code FROM worker_countries WHERE worker_id = $1 ORDER BY country_code
	`, workerID)
	if err != nil {
		return nil, translateError(err, "worker")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, translateError(err, "worker")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateWorker registers a new Worker identity keyed by id. Conflicts if the
// id is already registered.
func (q *Queries) CreateWorker(ctx context.Context, id, pubkeyPEM, fingerprint string) (*models.Worker, error) {
	ctx, span := startSpan(ctx, "store.CreateWorker")
	defer span.End()

	var w models.Worker
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO workers (id, pubkey_pem, pubkey_fingerprint, last_seen_on)
		VALUES ($1, $2, $3, 'epoch')
		RETURNING id, pubkey_pem, pubkey_fingerprint, last_seen_on
	`, id, pubkeyPEM, fingerprint).Scan(&w.ID, &w.PubkeyPEM, &w.PubkeyFingerprint, &w.LastSeenOn)
	if err != nil {
		return nil, translateError(err, "worker")
	}
	return &w, nil
}

// TouchWorker bumps a Worker's last_seen_on to now, called on every
// successful authentication.
func (q *Queries) TouchWorker(ctx context.Context, id string) error {
	ctx, span := startSpan(ctx, "store.TouchWorker")
	defer span.End()

	res, err := q.db.ExecContext(ctx, `UPDATE workers SET last_seen_on = now() WHERE id = $1`, id)
	if err != nil {
		return translateError(err, "worker")
	}
	return checkAffected(res, "worker")
}

// SetWorkerCountries atomically replaces the set of countries a Worker
// measures from.
func (q *Queries) SetWorkerCountries(ctx context.Context, workerID string, countryCodes []string) error {
	ctx, span := startSpan(ctx, "store.SetWorkerCountries")
	defer span.End()

	if _, err := q.db.ExecContext(ctx, `DELETE FROM worker_countries WHERE worker_id = $1`, workerID); err != nil {
		return translateError(err, "worker")
	}
	for _, code := range countryCodes {
		if _, err := q.db.ExecContext(ctx, `
			INSERT INTO worker_countries (worker_id, country_code) VALUES ($1, $2)
		`, workerID, code); err != nil {
			return translateError(err, "worker")
		}
	}
	return nil
}

// GetIdleWorkers returns every Worker whose last_seen_on is older than
// olderThanInterval (a Postgres interval literal, e.g. "10 minutes"), i.e.
// candidates for the scheduler's fan-out step. A worker that never reported
// has last_seen_on treated as the epoch and is always included.
func (q *Queries) GetIdleWorkers(ctx context.Context, olderThanInterval string) ([]models.Worker, error) {
	ctx, span := startSpan(ctx, "store.GetIdleWorkers")
	defer span.End()

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, pubkey_pem, pubkey_fingerprint, last_seen_on
		FROM workers w
		WHERE w.last_seen_on < now() - $1::interval
		ORDER BY id
	`, olderThanInterval)
	if err != nil {
		return nil, translateError(err, "worker")
	}
	defer rows.Close()

	var ids []string
	workersByID := map[string]*models.Worker{}
	for rows.Next() {
		var w models.Worker
		if err := rows.Scan(&w.ID, &w.PubkeyPEM, &w.PubkeyFingerprint, &w.LastSeenOn); err != nil {
			return nil, translateError(err, "worker")
		}
		workersByID[w.ID] = &w
		ids = append(ids, w.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "worker")
	}

	sort.Strings(ids)
	out := make([]models.Worker, 0, len(ids))
	for _, id := range ids {
		w := workersByID[id]
		countries, err := q.listWorkerCountries(ctx, id)
		if err != nil {
			return nil, err
		}
		w.Countries = countries
		out = append(out, *w)
	}
	return out, nil
}
