package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwix/mirrors-qa/internal/config"
)

func TestHealthHandler_Check_ReceivingTests(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	h := NewHealthHandler(db, &config.BackendConfig{UnhealthyNoTests: 6 * time.Hour})
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health-check", h.Check)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health-check", nil)
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "\"receiving_tests\":true")
}
