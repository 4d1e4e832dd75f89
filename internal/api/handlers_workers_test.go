package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwix/mirrors-qa/internal/token"
)

func TestWorkersHandler_GetCountries_RejectsWrongSubject(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	h := NewWorkersHandler(db)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/workers/:id/countries", func(c *gin.Context) {
		c.Set(claimsContextKey, &token.Claims{})
		h.GetCountries(c)
		if len(c.Errors) > 0 {
			c.String(http.StatusUnauthorized, "denied")
		}
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/workers/w1/countries", nil)
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWorkersHandler_PutCountries_RejectsUnknownCode(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	h := NewWorkersHandler(db)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.PUT("/workers/:id/countries", func(c *gin.Context) {
		claims := &token.Claims{}
		claims.Subject = "w1"
		c.Set(claimsContextKey, claims)
		h.PutCountries(c)
		if len(c.Errors) > 0 {
			c.String(http.StatusBadRequest, "bad request")
		}
	})

	body := strings.NewReader(`{"country_codes":["zz"]}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/workers/w1/countries", body)
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
