package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
	"github.com/kiwix/mirrors-qa/internal/models"
)

func testRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "requested_on", "started_on", "status", "worker_id", "mirror_url", "country_code",
		"ip_address", "asn", "isp", "city", "latency_ms", "download_size_bytes", "duration_s", "speed_bps", "error",
	})
}

func TestCreateTest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	now := time.Now()
	rows := testRows().AddRow(
		"11111111-1111-1111-1111-111111111111", now, nil, models.TestPending, "worker-1",
		"https://mirror.example.org", "fr", nil, nil, nil, nil, nil, nil, nil, nil, nil,
	)
	mock.ExpectQuery("INSERT INTO tests").WillReturnRows(rows)

	test, err := q.CreateTest(context.Background(), "worker-1", "https://mirror.example.org", "fr")
	require.NoError(t, err)
	assert.Equal(t, models.TestPending, test.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTests_EmptyReturnsZeroMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tests").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	out, meta, err := q.ListTests(context.Background(), models.TestFilter{}, models.Page{PageSize: 50, PageNum: 1})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, models.PageMetadata{TotalRecords: 0, PageSize: 0}, meta)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTests_FiltersAndPaginates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	workerID := "worker-1"
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tests WHERE worker_id").
		WithArgs(workerID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	now := time.Now()
	rows := testRows().AddRow(
		"11111111-1111-1111-1111-111111111111", now, nil, models.TestPending, workerID,
		"https://mirror.example.org", "fr", nil, nil, nil, nil, nil, nil, nil, nil, nil,
	)
	mock.ExpectQuery("SELECT.+FROM tests WHERE worker_id").
		WithArgs(workerID, 50, 0).
		WillReturnRows(rows)

	out, meta, err := q.ListTests(context.Background(),
		models.TestFilter{WorkerID: &workerID},
		models.Page{PageSize: 50, PageNum: 1})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, meta.TotalRecords)
	assert.Equal(t, 1, meta.FirstPage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTest_PartialUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	status := models.TestSucceeded
	speed := 1024.0
	now := time.Now()
	rows := testRows().AddRow(
		"11111111-1111-1111-1111-111111111111", now, &now, status, "worker-1",
		"https://mirror.example.org", "fr", nil, nil, nil, nil, nil, nil, nil, &speed, nil,
	)
	mock.ExpectQuery("UPDATE tests SET").WillReturnRows(rows)

	out, err := q.UpdateTest(context.Background(), "11111111-1111-1111-1111-111111111111", models.TestUpdate{
		Status:   &status,
		SpeedBPS: &speed,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TestSucceeded, out.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTest_RejectsAlreadyTerminal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	status := models.TestSucceeded
	id := "11111111-1111-1111-1111-111111111111"

	mock.ExpectQuery("UPDATE tests SET").WillReturnError(sql.ErrNoRows)

	now := time.Now()
	rows := testRows().AddRow(
		id, now, &now, models.TestMissed, "worker-1",
		"https://mirror.example.org", "fr", nil, nil, nil, nil, nil, nil, nil, nil, nil,
	)
	mock.ExpectQuery("SELECT .* FROM tests WHERE id").WithArgs(id).WillReturnRows(rows)

	_, err = q.UpdateTest(context.Background(), id, models.TestUpdate{Status: &status})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ConflictError))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountPendingTestsForWorker(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tests WHERE worker_id").
		WithArgs("worker-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := q.CountPendingTestsForWorker(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireTests_ReturnsNewlyMissedIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	mock.ExpectQuery("UPDATE tests SET status = 'MISSED'").
		WithArgs("24 hours").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t1").AddRow("t2"))

	ids, err := q.ExpireTests(context.Background(), "24 hours")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
