package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders adds baseline security headers to every response. The API
// surface has no browser clients (workers and operator tooling only), so
// this stays to sane defaults rather than a full CSP/CORS policy.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		permissions := strings.Join([]string{
			"camera=()",
			"microphone=()",
			"geolocation=()",
		}, ", ")
		c.Header("Permissions-Policy", permissions)
		c.Next()
	}
}
