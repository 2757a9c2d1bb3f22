package services

import (
	"context"
	"errors"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/logging"
	"github.com/ekaya-inc/agenda-sync/pkg/validation"
)

// ErrorDetail is the structured form of a failure reported to callers.
type ErrorDetail struct {
	Code            apperrors.Code    `json:"code"`
	Message         string            `json:"message"`
	Reason          validation.Reason `json:"reason,omitempty"`
	Field           string            `json:"field,omitempty"`
	Store           string            `json:"store,omitempty"`
	OtherCommitted  bool              `json:"other_committed,omitempty"`
	CalendarEventID string            `json:"calendar_event_id,omitempty"`
}

// DescribeError classifies err into the error taxonomy. It returns nil for a
// nil error.
func DescribeError(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	d := &ErrorDetail{Message: logging.SanitizeError(err)}

	var rej *validation.Rejection
	var rec *apperrors.ReconcileError
	var se *apperrors.StoreError
	switch {
	case errors.As(err, &rej):
		d.Code = apperrors.CodeValidationRejected
		d.Reason = rej.Code
		d.Field = rej.Field
	case errors.As(err, &rec):
		d.Code = rec.Code
		d.Store = rec.Store
		d.OtherCommitted = rec.OtherCommitted
		d.CalendarEventID = rec.CalendarEventID
		if rec.Code == apperrors.CodeStoreRejected && apperrors.IsNotFound(err) {
			d.Code = apperrors.CodeNotFound
		}
	case apperrors.IsNotFound(err):
		d.Code = apperrors.CodeNotFound
	case errors.Is(err, apperrors.ErrInvalidInput):
		d.Code = apperrors.CodeInvalidInput
	case apperrors.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
		d.Code = apperrors.CodeStoreUnavailable
	case apperrors.IsConflict(err):
		d.Code = apperrors.CodeStoreConflict
	case errors.As(err, &se):
		d.Code = apperrors.CodeStoreRejected
		d.Store = se.Store
	default:
		d.Code = apperrors.CodeInternal
	}
	return d
}
