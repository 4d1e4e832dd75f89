package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
	"github.com/kiwix/mirrors-qa/internal/models"
)

func mirrorRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "base_url", "enabled", "country_code", "region_code", "asn", "score",
		"latitude", "longitude", "country_only", "region_only", "as_only", "other_countries",
	})
}

func TestGetOrInsertMirror(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	rows := mirrorRows().AddRow("mirror.example.org", "https://mirror.example.org", true,
		nil, nil, nil, nil, nil, nil, false, false, false, pq.Array([]string{}))
	mock.ExpectQuery("INSERT INTO mirrors").WillReturnRows(rows)

	m, err := q.GetOrInsertMirror(context.Background(), models.Mirror{
		ID: "mirror.example.org", BaseURL: "https://mirror.example.org", Enabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "mirror.example.org", m.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetMirrorEnabled_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	mock.ExpectExec("UPDATE mirrors SET enabled").
		WithArgs("missing.example.org", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = q.SetMirrorEnabled(context.Background(), "missing.example.org", false)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.NotFoundError))
}

func TestListEnabledMirrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	rows := mirrorRows().
		AddRow("a.example.org", "https://a.example.org", true, nil, nil, nil, nil, nil, nil, false, false, false, pq.Array([]string{})).
		AddRow("b.example.org", "https://b.example.org", true, nil, nil, nil, nil, nil, nil, false, false, false, pq.Array([]string{"fr"}))
	mock.ExpectQuery("SELECT.+FROM mirrors WHERE enabled = true").WillReturnRows(rows)

	out, err := q.ListEnabledMirrors(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"fr"}, out[1].OtherCountries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMirrorByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	mock.ExpectQuery("SELECT.+FROM mirrors WHERE id").
		WithArgs("missing.example.org").
		WillReturnError(sql.ErrNoRows)

	_, err = q.GetMirrorByID(context.Background(), "missing.example.org")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.NotFoundError))
}
