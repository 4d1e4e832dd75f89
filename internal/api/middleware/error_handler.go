// Package middleware holds the Gin middleware chain for the API surface
// (C4): request-id correlation, security headers, and the error-translation
// edge that maps the domain error taxonomy onto HTTP status codes.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
)

// ErrorHandler recovers from panics and writes the recovered error as the
// standardized JSON error response. Errors attached to the Gin context via
// c.Error are translated by ErrorHandlerMiddleware; both go through
// handleError, which maps an AppError's Type to an HTTP status code.
func ErrorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		if err, ok := recovered.(error); ok {
			handleError(c, err)
		} else {
			handleError(c, apperrors.NewInternal("internal server error"))
		}
		c.Abort()
	})
}

// HandleError writes err as a JSON error response, for handlers that want to
// short-circuit without routing through c.Error.
func HandleError(c *gin.Context, err error) {
	handleError(c, err)
}

// ErrorHandlerMiddleware runs after handlers, translating any error a
// handler attached via c.Error(err) instead of writing the response itself.
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 && !c.Writer.Written() {
			handleError(c, c.Errors.Last().Err)
		}
	}
}

func handleError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewInternal(err.Error())
	}

	status := statusFor(appErr.Type)
	errBody := gin.H{
		"type":    string(appErr.Type),
		"message": appErr.Message,
	}
	if appErr.Code != "" {
		errBody["code"] = appErr.Code
	}

	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}

	c.JSON(status, gin.H{
		"error":      errBody,
		"request_id": c.GetString("request_id"),
	})
}

// statusFor maps an ErrorType to the HTTP status codes in spec.md §6/§7.
func statusFor(t apperrors.ErrorType) int {
	switch t {
	case apperrors.ValidationError, apperrors.EmptyInputError:
		return http.StatusBadRequest
	case apperrors.AuthError, apperrors.OwnershipError:
		return http.StatusUnauthorized
	case apperrors.NotFoundError:
		return http.StatusNotFound
	case apperrors.ConflictError:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
