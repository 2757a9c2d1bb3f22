package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/services"
)

// ErrorResponse represents a structured error in tool results.
// This is used to return actionable error information to the agent
// as a successful tool result, ensuring error details are visible
// rather than being swallowed by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable/actionable errors that the agent should see and
// can potentially fix (e.g., invalid parameters, event not found).
//
// Do NOT use this for system failures - those should still return Go errors.
//
// Example:
//
//	if eventID == "" {
//	    return NewErrorResult("invalid_parameters", "event_id cannot be empty"), nil
//	}
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
// The details field can contain any additional information that might help
// the agent understand and respond to the error.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// serviceErrorDetails is the details payload of a service failure.
type serviceErrorDetails struct {
	Reason          string `json:"reason,omitempty"`
	Field           string `json:"field,omitempty"`
	Store           string `json:"store,omitempty"`
	OtherCommitted  bool   `json:"other_committed,omitempty"`
	CalendarEventID string `json:"calendar_event_id,omitempty"`
}

// serviceErrorResult converts a service failure into a tool result.
// Classified failures (validation, store, not found) become structured error
// results the agent can act on. Unclassified failures are returned as Go
// errors.
func serviceErrorResult(err error) (*mcp.CallToolResult, error) {
	d := services.DescribeError(err)
	if d.Code == apperrors.CodeInternal {
		return nil, err
	}

	details := serviceErrorDetails{
		Reason:          string(d.Reason),
		Field:           d.Field,
		Store:           d.Store,
		OtherCommitted:  d.OtherCommitted,
		CalendarEventID: d.CalendarEventID,
	}
	if details == (serviceErrorDetails{}) {
		return NewErrorResult(string(d.Code), d.Message), nil
	}
	return NewErrorResultWithDetails(string(d.Code), d.Message, details), nil
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
