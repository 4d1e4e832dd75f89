package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
	"github.com/kiwix/mirrors-qa/internal/models"
)

func TestGetRegion_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	mock.ExpectQuery("SELECT code, name FROM regions WHERE code = ").
		WithArgs("zz").
		WillReturnError(sql.ErrNoRows)

	_, err = q.GetRegion(context.Background(), "zz")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.NotFoundError))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRegion_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := New(db)
	mock.ExpectExec("INSERT INTO regions").
		WithArgs("na", "North America").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = q.CreateRegion(context.Background(), models.Region{Code: "na", Name: "North America"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
