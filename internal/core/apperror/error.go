// Package apperror provides structured error handling following RFC 7807 Problem Details.
// Every failure that crosses the core boundary is an *AppError so the surrounding
// application can translate it without string matching.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes grouped by how the caller is expected to react.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"

	// Retryable: the whole unit of work may be re-run.
	CodeContention = "CONTENTION"

	// Configuration errors: missing rule data, never retried.
	CodeUnknownDocumentType = "UNKNOWN_DOCUMENT_TYPE"
	CodeSequenceExhausted   = "SEQUENCE_EXHAUSTED"
	CodeConfiguration       = "CONFIGURATION_ERROR"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Business rule violations (422)
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeInvalidRelease    = "INVALID_RELEASE"

	// State machine misuse (409)
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeAlreadyResolved   = "ALREADY_RESOLVED"

	// Authorization errors (403)
	CodeForbidden = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict            = "CONFLICT"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	CodeIdempotencyMismatch = "IDEMPOTENCY_MISMATCH"
)

// AppError is the standard error type for the engine.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400). Caller's fault, not retried.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInsufficientStock reports that a request exceeds the relevant stock counter.
func NewInsufficientStock(productID, warehouseID string, requested, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id":   productID,
			"warehouse_id": warehouseID,
			"requested":    requested,
			"available":    available,
		},
	}
}

// NewInvalidRelease reports an attempt to release more than is reserved.
func NewInvalidRelease(productID, warehouseID string, requested, reserved string) *AppError {
	return &AppError{
		Code:       CodeInvalidRelease,
		Message:    "Release exceeds reserved quantity",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id":   productID,
			"warehouse_id": warehouseID,
			"requested":    requested,
			"reserved":     reserved,
		},
	}
}

// NewInvalidTransition reports an illegal status change of a document.
func NewInvalidTransition(entity string, from, to string) *AppError {
	return &AppError{
		Code:       CodeInvalidTransition,
		Message:    fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "from": from, "to": to},
	}
}

// NewAlreadyResolved reports a decision on an approval workflow that is already terminal.
func NewAlreadyResolved(approvableID any, status string) *AppError {
	return &AppError{
		Code:       CodeAlreadyResolved,
		Message:    "Approval workflow is already resolved",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"approvable_id": approvableID, "workflow_status": status},
	}
}

// NewContention reports a lock wait timeout, deadlock or serialization failure.
// The whole unit of work is safe to retry.
func NewContention(err error) *AppError {
	return &AppError{
		Code:       CodeContention,
		Message:    "Resource is busy, please retry",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewUnknownDocumentType reports a document type with no prefix mapping.
func NewUnknownDocumentType(documentType string) *AppError {
	return &AppError{
		Code:       CodeUnknownDocumentType,
		Message:    fmt.Sprintf("No numbering rule for document type %q", documentType),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"document_type": documentType},
	}
}

// NewSequenceExhausted reports a counter that outgrew its configured width.
func NewSequenceExhausted(key string, value int64) *AppError {
	return &AppError{
		Code:       CodeSequenceExhausted,
		Message:    "Document sequence exhausted for this period",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"sequence": key, "value": value},
	}
}

// NewConfiguration reports invalid or missing rule data.
func NewConfiguration(message string) *AppError {
	return &AppError{
		Code:       CodeConfiguration,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewIdempotencyConflict reports a key whose first request is still running.
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotencyConflict,
		Message:    "A request with this idempotency key is in progress",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch reports a key reused for a different request.
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotencyMismatch,
		Message:    "Idempotency key was already used for a different request",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsRetryable reports whether the unit of work that produced err may be re-run.
func IsRetryable(err error) bool {
	return HasCode(err, CodeContention)
}
