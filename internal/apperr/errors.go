package apperr

import (
	"fmt"

	"go.uber.org/zap"
)

// DomainError is returned by the reconciliation core. Two DomainErrors match
// under errors.Is when their codes are equal, so callers can test against the
// sentinels below regardless of the detail message.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string { return e.Message }

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

func New(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

const (
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeQueryTooComplex     = "QUERY_TOO_COMPLEX"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeSync                = "SYNC_FAILED"
)

var (
	ErrNotFound            = New(CodeNotFound, "resource not found")
	ErrInvalidInput        = New(CodeInvalidInput, "invalid input")
	ErrInsufficientStock   = New(CodeInsufficientStock, "insufficient stock")
	ErrInvalidTransition   = New(CodeInvalidTransition, "invalid status transition")
	ErrConcurrencyConflict = New(CodeConcurrencyConflict, "document was modified concurrently")
	ErrQueryTooComplex     = New(CodeQueryTooComplex, "query requires an index the store does not have")
	ErrAlreadyExists       = New(CodeAlreadyExists, "resource already exists")
	ErrSync                = New(CodeSync, "subscription failed")
)

func NotFound(kind, id string) error {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", kind, id))
}

func InvalidInput(format string, args ...any) error {
	return New(CodeInvalidInput, fmt.Sprintf(format, args...))
}

func InsufficientStock(productID string, requested, available int) error {
	return New(CodeInsufficientStock,
		fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", productID, requested, available))
}

func InvalidTransition(from, to string) error {
	return New(CodeInvalidTransition, fmt.Sprintf("cannot transition from %s to %s", from, to))
}

func QueryTooComplex(reason string) error {
	return New(CodeQueryTooComplex, "query too complex: "+reason)
}

// Sync wraps a subscription failure; the cause stays reachable via errors.Unwrap.
func Sync(collection string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrSync, collection, cause)
}

// WarnConsistency logs a non-fatal invariant violation observed in stored data.
func WarnConsistency(log *zap.Logger, msg string, fields ...zap.Field) {
	log.Warn(msg, append(fields, zap.String("kind", "consistency_warning"))...)
}
