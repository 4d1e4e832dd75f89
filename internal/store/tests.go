package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
	"github.com/kiwix/mirrors-qa/internal/models"
)

const testColumns = `id, requested_on, started_on, status, worker_id, mirror_url, country_code, ip_address, asn, isp, city, latency_ms, download_size_bytes, duration_s, speed_bps, error`

func scanTest(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.Test, error) {
	var t models.Test
	err := scanner.Scan(
		&t.ID, &t.RequestedOn, &t.StartedOn, &t.Status, &t.WorkerID, &t.MirrorURL, &t.CountryCode,
		&t.IPAddress, &t.ASN, &t.ISP, &t.City, &t.LatencyMS, &t.DownloadSizeBytes, &t.DurationS, &t.SpeedBPS, &t.Error,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTest fetches a Test by id. Returns NotFound if absent.
func (q *Queries) GetTest(ctx context.Context, id string) (*models.Test, error) {
	ctx, span := startSpan(ctx, "store.GetTest")
	defer span.End()

	row := q.db.QueryRowContext(ctx, `SELECT `+testColumns+` FROM tests WHERE id = $1`, id)
	t, err := scanTest(row)
	if err != nil {
		return nil, translateError(err, "test")
	}
	return t, nil
}

// CreateTest inserts a new PENDING Test, server-generating its id.
func (q *Queries) CreateTest(ctx context.Context, workerID, mirrorURL, countryCode string) (*models.Test, error) {
	ctx, span := startSpan(ctx, "store.CreateTest")
	defer span.End()

	row := q.db.QueryRowContext(ctx, `
		INSERT INTO tests (id, requested_on, status, worker_id, mirror_url, country_code)
		VALUES ($1, now(), 'PENDING', $2, $3, $4)
		RETURNING `+testColumns,
		uuid.NewString(), workerID, mirrorURL, countryCode,
	)
	t, err := scanTest(row)
	if err != nil {
		return nil, translateError(err, "test")
	}
	return t, nil
}

var testSortColumns = map[string]string{
	"requested_on": "requested_on",
	"started_on":   "started_on",
	"status":       "status",
	"worker_id":    "worker_id",
	"country_code": "country_code",
	"city":         "city",
}

// ListTests returns Tests matching filter, paginated and sorted per page.
// Default sort is requested_on asc, used as a stable tiebreaker even when
// the caller picks a different sort column.
func (q *Queries) ListTests(ctx context.Context, filter models.TestFilter, page models.Page) ([]models.Test, models.PageMetadata, error) {
	ctx, span := startSpan(ctx, "store.ListTests")
	defer span.End()

	var where []string
	var args []interface{}
	argN := func() int { return len(args) + 1 }

	if filter.WorkerID != nil {
		args = append(args, *filter.WorkerID)
		where = append(where, fmt.Sprintf("worker_id = $%d", argN()-1))
	}
	if filter.CountryCode != nil {
		args = append(args, *filter.CountryCode)
		where = append(where, fmt.Sprintf("country_code = $%d", argN()-1))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			args = append(args, s)
			placeholders[i] = fmt.Sprintf("$%d", argN()-1)
		}
		where = append(where, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := `SELECT count(*) FROM tests ` + whereClause
	if err := q.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, models.PageMetadata{}, translateError(err, "test")
	}
	if total == 0 {
		return nil, models.PageMetadata{TotalRecords: 0, PageSize: 0}, nil
	}

	sortCol, ok := testSortColumns[page.SortBy]
	if !ok {
		sortCol = "requested_on"
	}
	order := "asc"
	if strings.EqualFold(page.Order, "desc") {
		order = "desc"
	}
	orderClause := fmt.Sprintf("ORDER BY %s %s, requested_on asc", sortCol, order)
	if sortCol == "requested_on" {
		orderClause = fmt.Sprintf("ORDER BY requested_on %s", order)
	}

	pageSize := page.PageSize
	pageNum := page.PageNum
	if pageNum < 1 {
		pageNum = 1
	}
	offset := (pageNum - 1) * pageSize

	args = append(args, pageSize, offset)
	query := fmt.Sprintf(`SELECT %s FROM tests %s %s LIMIT $%d OFFSET $%d`,
		testColumns, whereClause, orderClause, len(args)-1, len(args))

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.PageMetadata{}, translateError(err, "test")
	}
	defer rows.Close()

	var out []models.Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, models.PageMetadata{}, translateError(err, "test")
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, models.PageMetadata{}, translateError(err, "test")
	}

	lastPage := (total + pageSize - 1) / pageSize
	meta := models.PageMetadata{
		TotalRecords: total,
		PageSize:     pageSize,
		CurrentPage:  pageNum,
		FirstPage:    1,
		LastPage:     lastPage,
	}
	return out, meta, nil
}

// UpdateTest applies a partial update to a Test. Callers enforce the
// ownership check (token subject == worker_id) before calling this; the
// store layer only applies the write.
func (q *Queries) UpdateTest(ctx context.Context, id string, u models.TestUpdate) (*models.Test, error) {
	ctx, span := startSpan(ctx, "store.UpdateTest")
	defer span.End()

	var sets []string
	var args []interface{}
	add := func(col string, val interface{}) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.StartedOn != nil {
		add("started_on", *u.StartedOn)
	}
	if u.Error != nil {
		add("error", *u.Error)
	}
	if u.ISP != nil {
		add("isp", *u.ISP)
	}
	if u.IPAddress != nil {
		add("ip_address", *u.IPAddress)
	}
	if u.ASN != nil {
		add("asn", *u.ASN)
	}
	if u.City != nil {
		add("city", *u.City)
	}
	if u.LatencyMS != nil {
		add("latency_ms", *u.LatencyMS)
	}
	if u.DownloadSizeBytes != nil {
		add("download_size_bytes", *u.DownloadSizeBytes)
	}
	if u.DurationS != nil {
		add("duration_s", *u.DurationS)
	}
	if u.SpeedBPS != nil {
		add("speed_bps", *u.SpeedBPS)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}

	if len(sets) == 0 {
		return q.GetTest(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE tests SET %s WHERE id = $%d AND status = 'PENDING' RETURNING %s`,
		strings.Join(sets, ", "), len(args), testColumns)

	row := q.db.QueryRowContext(ctx, query, args...)
	t, err := scanTest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := q.GetTest(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, apperrors.NewConflict("test is already in a terminal state")
		}
		return nil, translateError(err, "test")
	}
	return t, nil
}

// CountPendingTestsForWorker counts PENDING Tests owned by workerID, used by
// the scheduler to skip a worker already holding unclaimed work.
func (q *Queries) CountPendingTestsForWorker(ctx context.Context, workerID string) (int, error) {
	ctx, span := startSpan(ctx, "store.CountPendingTestsForWorker")
	defer span.End()

	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT count(*) FROM tests WHERE worker_id = $1 AND status = 'PENDING'
	`, workerID).Scan(&n)
	if err != nil {
		return 0, translateError(err, "test")
	}
	return n, nil
}

// ExpireTests transitions every PENDING Test with requested_on older than
// olderThan (expressed as a Postgres interval literal, e.g. "24 hours") to
// MISSED, returning the ids newly transitioned for logging.
func (q *Queries) ExpireTests(ctx context.Context, olderThanInterval string) ([]string, error) {
	ctx, span := startSpan(ctx, "store.ExpireTests")
	defer span.End()

	rows, err := q.db.QueryContext(ctx, `
		UPDATE tests SET status = 'MISSED'
		WHERE status = 'PENDING' AND requested_on < now() - $1::interval
		RETURNING id
	`, olderThanInterval)
	if err != nil {
		return nil, translateError(err, "test")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translateError(err, "test")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HasRecentSuccess reports whether any SUCCEEDED Test was requested within
// sinceInterval (a Postgres interval literal, e.g. "6 hours"), the signal
// behind GET /health-check's receiving_tests flag. Tests record no completion
// time, so the window is measured from requested_on, not from when the Test
// reached SUCCEEDED.
func (q *Queries) HasRecentSuccess(ctx context.Context, sinceInterval string) (bool, error) {
	ctx, span := startSpan(ctx, "store.HasRecentSuccess")
	defer span.End()

	var exists bool
	err := q.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM tests
			WHERE status = 'SUCCEEDED' AND requested_on > now() - $1::interval
		)
	`, sinceInterval).Scan(&exists)
	if err != nil {
		return false, translateError(err, "test")
	}
	return exists, nil
}
