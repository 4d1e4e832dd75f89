package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwix/mirrors-qa/internal/config"
)

func testConfig() *config.BackendConfig {
	return &config.BackendConfig{
		ExpireTestsSince: 24 * time.Hour,
		IdleWorkerSince:  time.Hour,
	}
}

func TestTick_NoIdleWorkers_CreatesNothing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE tests SET status = 'MISSED'").
		WithArgs("86400.000000 seconds").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT id, pubkey_pem, pubkey_fingerprint, last_seen_on").
		WithArgs("3600.000000 seconds").
		WillReturnRows(sqlmock.NewRows([]string{"id", "pubkey_pem", "pubkey_fingerprint", "last_seen_on"}))
	mock.ExpectQuery("SELECT .+ FROM mirrors WHERE enabled").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "base_url", "enabled", "country_code", "region_code", "asn", "score",
			"latitude", "longitude", "country_only", "region_only", "as_only", "other_countries",
		}))
	mock.ExpectCommit()

	result, err := Tick(context.Background(), db, testConfig(), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Expired)
	assert.Equal(t, 0, result.Created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTick_SkipsWorkerWithPendingTests(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE tests SET status = 'MISSED'").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT id, pubkey_pem, pubkey_fingerprint, last_seen_on").
		WillReturnRows(sqlmock.NewRows([]string{"id", "pubkey_pem", "pubkey_fingerprint", "last_seen_on"}).
			AddRow("w1", "pem", "fp", now))
	mock.ExpectQuery("SELECT country_code FROM worker_countries").
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows([]string{"country_code"}).AddRow("fr"))
	mock.ExpectQuery("SELECT .+ FROM mirrors WHERE enabled").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "base_url", "enabled", "country_code", "region_code", "asn", "score",
			"latitude", "longitude", "country_only", "region_only", "as_only", "other_countries",
		}))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tests WHERE worker_id").
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectCommit()

	result, err := Tick(context.Background(), db, testConfig(), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	require.NoError(t, mock.ExpectationsWereMet())
}
