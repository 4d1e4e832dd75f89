// Package api assembles the HTTP surface (C4): authentication handshake,
// Test list/get/patch, Worker countries read/write, and health-check.
package api

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/kiwix/mirrors-qa/internal/api/middleware"
	"github.com/kiwix/mirrors-qa/internal/config"
	"github.com/kiwix/mirrors-qa/internal/metrics"
	"github.com/kiwix/mirrors-qa/internal/token"
)

// SetupRoutes assembles the Gin engine: global middleware chain, then route
// groups delegating to thin, dependency-injected handlers.
func SetupRoutes(db *sql.DB, tokens *token.Service, cfg *config.BackendConfig) *gin.Engine {
	if cfg == nil {
		panic("cfg must not be nil")
	}

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RequestID())
	r.Use(otelgin.Middleware("mirrors-qa-backend"))
	r.Use(middleware.SecurityHeaders())
	r.Use(metrics.GinMiddleware())
	r.Use(middleware.ErrorHandlerMiddleware())

	authHandler := NewAuthHandler(db, tokens, cfg)
	testsHandler := NewTestsHandler(db, cfg)
	workersHandler := NewWorkersHandler(db)
	healthHandler := NewHealthHandler(db, cfg)

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health-check", healthHandler.Check)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.POST("/auth/authenticate", authHandler.Authenticate)

	r.GET("/tests", testsHandler.List)
	r.GET("/tests/:id", testsHandler.Get)
	r.PATCH("/tests/:id", RequireAuth(tokens, db), testsHandler.Patch)

	workers := r.Group("/workers/:id/countries")
	workers.Use(RequireAuth(tokens, db))
	workers.GET("", workersHandler.GetCountries)
	workers.PUT("", workersHandler.PutCountries)

	return r
}
