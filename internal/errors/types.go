package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an AppError for HTTP translation at the API edge.
type ErrorType string

const (
	// ValidationError covers malformed input: bad base64, bad message format, unknown country code.
	ValidationError ErrorType = "validation"

	// AuthError covers missing/invalid/expired tokens, bad signatures, clock skew, unknown worker.
	AuthError ErrorType = "auth"

	// OwnershipError covers a token subject that does not match the operation's target.
	OwnershipError ErrorType = "ownership"

	// NotFoundError covers unknown resources (Test, Worker, Mirror, Country).
	NotFoundError ErrorType = "not_found"

	// ConflictError covers duplicate primary keys (worker id, country code, mirror id).
	ConflictError ErrorType = "conflict"

	// UpstreamFetchError covers failures fetching the mirror list, geo-IP echo, or measurement object.
	UpstreamFetchError ErrorType = "upstream_fetch"

	// StorageConsistencyError covers FK/unique-constraint violations on internal, non-user-driven paths.
	StorageConsistencyError ErrorType = "storage_consistency"

	// InternalError covers everything else.
	InternalError ErrorType = "internal"

	// EmptyInputError is a Validation-family error raised defensively by the reconciler.
	EmptyInputError ErrorType = "empty_input"
)

// AppError is the structured error every internal operation returns.
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Cause   error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

func New(errorType ErrorType, message string) *AppError {
	return &AppError{Type: errorType, Message: message}
}

func Newf(errorType ErrorType, format string, args ...interface{}) *AppError {
	return &AppError{Type: errorType, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, errorType ErrorType, message string) *AppError {
	return &AppError{Type: errorType, Message: message, Cause: err}
}

func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

func NewValidation(message string) *AppError    { return New(ValidationError, message) }
func NewEmptyInput(message string) *AppError    { return New(EmptyInputError, message) }
func NewAuth(message string) *AppError          { return New(AuthError, message) }
func NewOwnership() *AppError                   { return New(OwnershipError, "insufficient privileges") }
func NewNotFound(resource string) *AppError      { return Newf(NotFoundError, "%s not found", resource) }
func NewConflict(message string) *AppError      { return New(ConflictError, message) }
func NewUpstreamFetch(service string, err error) *AppError {
	return Wrap(err, UpstreamFetchError, fmt.Sprintf("%s fetch failed", service))
}
func NewStorageConsistency(err error) *AppError {
	return Wrap(err, StorageConsistencyError, "storage consistency violation")
}
func NewInternal(message string) *AppError { return New(InternalError, message) }

// IsType reports whether err is an AppError of the given type.
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetType returns the error's type, or InternalError if err is not an AppError.
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return InternalError
}
