package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Pipeline taxonomy
	ErrTypeStructural       ErrorType = "STRUCTURAL"
	ErrTypeType             ErrorType = "TYPE"
	ErrTypeQuality          ErrorType = "QUALITY"
	ErrTypeRange            ErrorType = "RANGE"
	ErrTypeInsufficientData ErrorType = "INSUFFICIENT_DATA"
	ErrTypeComputation      ErrorType = "COMPUTATION"

	// Infrastructure
	ErrTypeParsing    ErrorType = "PARSING"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeConfig     ErrorType = "CONFIG"
	ErrTypeCache      ErrorType = "CACHE"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// TypeOf returns the ErrorType of the first AppError in err's chain
func TypeOf(err error) (ErrorType, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}

// IsType reports whether err carries an AppError of the given type
func IsType(err error, errType ErrorType) bool {
	t, ok := TypeOf(err)
	return ok && t == errType
}

// Helper functions for common error types

// NewStructuralError reports a missing column or a malformed table shape
func NewStructuralError(message string) *AppError {
	return NewAppError(ErrTypeStructural, message, nil)
}

// NewMissingColumnsError lists every absent column at once
func NewMissingColumnsError(columns []string) *AppError {
	return NewAppError(ErrTypeStructural,
		fmt.Sprintf("MissingColumns: %s", strings.Join(columns, ", ")), nil).
		WithContext("missing_columns", columns)
}

// NewColumnTypeError reports a column whose storage type differs from the expectation
func NewColumnTypeError(column, expected, actual string) *AppError {
	return NewAppError(ErrTypeType,
		fmt.Sprintf("column %q has type %s, expected %s", column, actual, expected), nil).
		WithContext("column", column).
		WithContext("expected", expected).
		WithContext("actual", actual)
}

// NewRangeError reports values outside declared bounds
func NewRangeError(column string, invalid int) *AppError {
	return NewAppError(ErrTypeRange,
		fmt.Sprintf("column %q has %d values out of range", column, invalid), nil).
		WithContext("column", column).
		WithContext("invalid_count", invalid)
}

// NewInsufficientDataError reports too few rows, values, columns or groups
func NewInsufficientDataError(message string) *AppError {
	return NewAppError(ErrTypeInsufficientData, message, nil)
}

// NewComputationError reports a computation that has no meaningful result
func NewComputationError(message string, cause error) *AppError {
	return NewAppError(ErrTypeComputation, message, cause)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewCacheError wraps a cache backend failure
func NewCacheError(message string, cause error) *AppError {
	return NewAppError(ErrTypeCache, message, cause)
}

// StatusCode maps an ErrorType to the HTTP status used when it reaches a client
func (t ErrorType) StatusCode() int {
	switch t {
	case ErrTypeStructural, ErrTypeType, ErrTypeRange, ErrTypeQuality, ErrTypeValidation:
		return http.StatusUnprocessableEntity
	case ErrTypeInsufficientData, ErrTypeComputation:
		return http.StatusUnprocessableEntity
	case ErrTypeParsing:
		return http.StatusBadRequest
	case ErrTypeNotFound:
		return http.StatusNotFound
	case ErrTypeCache:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
