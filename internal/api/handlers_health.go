package api

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kiwix/mirrors-qa/internal/config"
	"github.com/kiwix/mirrors-qa/internal/store"
)

// HealthHandler serves GET /health-check (C4).
type HealthHandler struct {
	db  *sql.DB
	cfg *config.BackendConfig
}

// NewHealthHandler constructs a HealthHandler with explicit dependencies.
func NewHealthHandler(db *sql.DB, cfg *config.BackendConfig) *HealthHandler {
	return &HealthHandler{db: db, cfg: cfg}
}

// Check reports whether at least one SUCCEEDED Test was requested within
// UNHEALTHY_NO_TESTS_DURATION (see store.HasRecentSuccess).
func (h *HealthHandler) Check(c *gin.Context) {
	q := store.New(h.db)
	interval := fmt.Sprintf("%f seconds", h.cfg.UnhealthyNoTests.Seconds())
	receiving, err := q.HasRecentSuccess(c.Request.Context(), interval)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receiving_tests": receiving})
}
