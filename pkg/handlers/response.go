// Package handlers implements the HTTP routes of agenda-sync.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/services"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// serviceErrorBody is the JSON body of a classified service failure.
type serviceErrorBody struct {
	Error   apperrors.Code        `json:"error"`
	Message string                `json:"message"`
	Details *services.ErrorDetail `json:"details,omitempty"`
}

// WriteServiceError classifies err and writes it with a matching status.
// Internal errors carry no details.
func WriteServiceError(w http.ResponseWriter, err error) error {
	d := services.DescribeError(err)
	status := statusForCode(d.Code)
	body := serviceErrorBody{Error: d.Code, Message: d.Message}
	if d.Code == apperrors.CodeInternal {
		body.Message = "internal server error"
	} else {
		body.Details = d
	}
	return WriteJSON(w, status, body)
}

func statusForCode(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeValidationRejected, apperrors.CodeLowConfidence:
		return http.StatusUnprocessableEntity
	case apperrors.CodeStoreConflict:
		return http.StatusConflict
	case apperrors.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.CodeStoreRejected, apperrors.CodePartialReconciliation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
