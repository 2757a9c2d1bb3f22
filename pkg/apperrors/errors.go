package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// Code classifies failures surfaced to callers of the pipeline and tools.
type Code string

const (
	CodeLowConfidence         Code = "extraction_low_confidence"
	CodeValidationRejected    Code = "validation_rejected"
	CodeStoreUnavailable      Code = "store_unavailable"
	CodeStoreConflict         Code = "store_conflict"
	CodeStoreRejected         Code = "store_rejected"
	CodePartialReconciliation Code = "partial_reconciliation"
	CodeNotFound              Code = "not_found"
	CodeInvalidInput          Code = "invalid_input"
	CodeInternal              Code = "internal_error"
)

// Store names used in StoreError and ReconcileError.
const (
	StoreCalendar   = "calendar"
	StoreRelational = "relational"
)

// StoreError is a classified failure from a store adapter. Adapters decide
// retryability from the backend's own error codes; the retry package reads
// it through IsRetryable.
type StoreError struct {
	Store     string
	Op        string
	Retryable bool
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Store, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsRetryable implements retry.RetryableError.
func (e *StoreError) IsRetryable() bool {
	return e.Retryable
}

// ReconcileError reports a record that could not be fully reconciled.
// OtherCommitted tells the caller whether the other store already holds the
// write, in which case manual repair may be needed.
type ReconcileError struct {
	Code            Code   `json:"code"`
	Store           string `json:"store"`
	OtherCommitted  bool   `json:"other_committed"`
	CalendarEventID string `json:"calendar_event_id,omitempty"`
	Key             string `json:"key,omitempty"`
	Err             error  `json:"-"`
}

func (e *ReconcileError) Error() string {
	msg := fmt.Sprintf("%s: %s store failed", e.Code, e.Store)
	if e.OtherCommitted {
		msg += " after the other store committed"
	}
	if e.CalendarEventID != "" {
		msg += fmt.Sprintf(" (calendar event %s)", e.CalendarEventID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err is, or wraps, ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransient reports whether err is a StoreError marked retryable.
func IsTransient(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Retryable
}
