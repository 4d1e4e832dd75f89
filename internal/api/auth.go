package api

import (
	"database/sql"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
	"github.com/kiwix/mirrors-qa/internal/store"
	"github.com/kiwix/mirrors-qa/internal/token"
)

const claimsContextKey = "auth_claims"

// RequireAuth validates the Authorization: Bearer <token> header against
// tokens, confirms the claimed subject still resolves to an existing Worker
// row (spec.md §4.3: "subject resolves to an existing Worker"), and stores
// the resulting claims on the request context. Missing or invalid tokens, or
// a subject whose Worker has since been deleted, are an Auth error (401).
func RequireAuth(tokens *token.Service, db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			c.Error(apperrors.NewAuth("missing bearer token"))
			c.Abort()
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(header, prefix))
		claims, err := tokens.Validate(raw)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}
		if _, err := store.New(db).GetWorker(c.Request.Context(), claims.Subject); err != nil {
			c.Error(apperrors.NewAuth("worker no longer exists"))
			c.Abort()
			return
		}
		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// claimsFromContext returns the claims RequireAuth attached to c.
func claimsFromContext(c *gin.Context) (*token.Claims, bool) {
	v, ok := c.Get(claimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*token.Claims)
	return claims, ok
}

// requireSubject enforces that the authenticated token's subject equals
// want, the ownership guard from spec.md §4.4 ("Insufficient privileges").
func requireSubject(c *gin.Context, want string) error {
	claims, ok := claimsFromContext(c)
	if !ok || claims.Subject != want {
		return apperrors.NewOwnership()
	}
	return nil
}
