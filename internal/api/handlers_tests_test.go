package api

import (
	"database/sql"
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

func TestParsePage_Defaults(t *testing.T) {
	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)
	c.Request = httptest.NewRequest(http.MethodGet, "/tests", nil)

	page, err := parsePage(c, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, 1, page.PageNum)
	assert.Equal(t, "requested_on", page.SortBy)
	assert.Equal(t, "asc", page.Order)
}

func TestParsePage_RejectsOversizedPageSize(t *testing.T) {
	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)
	c.Request = httptest.NewRequest(http.MethodGet, "/tests?page_size=999", nil)

	_, err := parsePage(c, 20)
	require.Error(t, err)
}

func TestParsePage_RejectsUnknownSortBy(t *testing.T) {
	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)
	c.Request = httptest.NewRequest(http.MethodGet, "/tests?sort_by=bogus", nil)

	_, err := parsePage(c, 20)
	require.Error(t, err)
}

var testColumnsForTest = []string{
	"id", "requested_on", "started_on", "status", "worker_id", "mirror_url", "country_code",
	"ip_address", "asn", "isp", "city", "latency_ms", "download_size_bytes", "duration_s", "speed_bps", "error",
}

func TestTestsHandler_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM tests WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	h := NewTestsHandler(db, &config.BackendConfig{MaxPageSize: 20})
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/tests/:id", func(c *gin.Context) {
		h.Get(c)
		if len(c.Errors) > 0 {
			c.String(http.StatusNotFound, "not found")
		}
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tests/missing", nil)
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTestsHandler_Get_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM tests WHERE id").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(testColumnsForTest).
			AddRow("t1", now, nil, "PENDING", "w1", "https://mirror.example/", "fr", nil, nil, nil, nil, nil, nil, nil, nil, nil))

	h := NewTestsHandler(db, &config.BackendConfig{MaxPageSize: 20})
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/tests/:id", h.Get)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tests/t1", nil)
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "\"id\":\"t1\"")
}
