package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWorker_WithCountries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	now := time.Now()
	mock.ExpectQuery("SELECT id, pubkey_pem, pubkey_fingerprint, last_seen_on FROM workers").
		WithArgs("worker-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "pubkey_pem", "pubkey_fingerprint", "last_seen_on"}).
			AddRow("worker-1", "-----BEGIN PUBLIC KEY-----", "ab:cd:ef", now))
	mock.ExpectQuery("SELECT country_code FROM worker_countries").
		WithArgs("worker-1").
		WillReturnRows(sqlmock.NewRows([]string{"country_code"}).AddRow("fr").AddRow("ng"))

	w, err := q.GetWorker(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fr", "ng"}, w.Countries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetWorkerCountries_ReplacesAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	mock.ExpectExec("DELETE FROM worker_countries").
		WithArgs("worker-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO worker_countries").
		WithArgs("worker-1", "fr").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO worker_countries").
		WithArgs("worker-1", "ng").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = q.SetWorkerCountries(context.Background(), "worker-1", []string{"fr", "ng"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetIdleWorkers_FiltersByLastSeen(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	now := time.Now()
	mock.ExpectQuery("SELECT id, pubkey_pem, pubkey_fingerprint, last_seen_on").
		WithArgs("10 minutes").
		WillReturnRows(sqlmock.NewRows([]string{"id", "pubkey_pem", "pubkey_fingerprint", "last_seen_on"}).
			AddRow("worker-1", "pem", "fp", now))
	mock.ExpectQuery("SELECT country_code FROM worker_countries").
		WithArgs("worker-1").
		WillReturnRows(sqlmock.NewRows([]string{"country_code"}).AddRow("ng"))

	out, err := q.GetIdleWorkers(context.Background(), "10 minutes")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"ng"}, out[0].Countries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchWorker_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	mock.ExpectExec("UPDATE workers SET last_seen_on").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = q.TouchWorker(context.Background(), "ghost")
	require.Error(t, err)
}
