package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/auth"
)

// maxLoggedString bounds string arguments in the call log; transcripts can
// be long.
const maxLoggedString = 200

// personalParams are hashed before logging so calls can be correlated
// without writing contact details to the log.
var personalParams = map[string]bool{
	"email": true,
	"phone": true,
}

// ToolCallLogger writes one structured log line per tool call.
type ToolCallLogger struct {
	logger *zap.Logger

	// calls tracks in-flight calls, keyed by request pointer.
	calls sync.Map
}

type inflightCall struct {
	id    string
	start time.Time
}

// NewToolCallLogger creates a ToolCallLogger.
func NewToolCallLogger(logger *zap.Logger) *ToolCallLogger {
	return &ToolCallLogger{logger: logger.Named("tool-calls")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (l *ToolCallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(l.beforeCallTool)
	hooks.AddAfterCallTool(l.afterCallTool)
	hooks.AddOnError(l.onError)
	return hooks
}

func (l *ToolCallLogger) beforeCallTool(_ context.Context, _ any, req *mcplib.CallToolRequest) {
	l.calls.Store(req, inflightCall{id: uuid.NewString(), start: time.Now()})
}

func (l *ToolCallLogger) afterCallTool(ctx context.Context, _ any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	fields := l.baseFields(ctx, req)
	if code := resultErrorCode(result); code != "" {
		l.logger.Info("Tool call returned an error result", append(fields, zap.String("code", code))...)
		return
	}
	l.logger.Info("Tool call completed", fields...)
}

func (l *ToolCallLogger) onError(ctx context.Context, _ any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}
	l.logger.Error("Tool call failed", append(l.baseFields(ctx, req), zap.Error(err))...)
}

func (l *ToolCallLogger) baseFields(ctx context.Context, req *mcplib.CallToolRequest) []zap.Field {
	call := inflightCall{start: time.Now()}
	if v, ok := l.calls.LoadAndDelete(req); ok {
		call = v.(inflightCall)
	}
	fields := []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Duration("elapsed", time.Since(call.start)),
		zap.Any("arguments", sanitizeParams(req.Params.Arguments)),
	}
	if call.id != "" {
		fields = append(fields, zap.String("call_id", call.id))
	}
	if subject := auth.SubjectFromContext(ctx); subject != "" {
		fields = append(fields, zap.String("subject", subject))
	}
	return fields
}

// sanitizeParams prepares tool arguments for logging: contact details are
// hashed, long strings truncated and arrays reduced to their length.
func sanitizeParams(args any) map[string]any {
	params, ok := args.(map[string]any)
	if !ok || len(params) == 0 {
		return nil
	}
	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		sanitized[k] = sanitizeValue(k, v)
	}
	return sanitized
}

func sanitizeValue(key string, value any) any {
	if personalParams[strings.ToLower(key)] {
		return hashValue(value)
	}
	switch val := value.(type) {
	case string:
		if len(val) > maxLoggedString {
			return val[:maxLoggedString] + "...[truncated]"
		}
		return val
	case []any:
		return fmt.Sprintf("[%d items]", len(val))
	case map[string]any:
		return sanitizeParams(val)
	default:
		return value
	}
}

// hashValue returns a SHA-256 prefix of value.
func hashValue(value any) string {
	str, ok := value.(string)
	if !ok {
		str = fmt.Sprintf("%v", value)
	}
	hash := sha256.Sum256([]byte(str))
	return "sha256:" + hex.EncodeToString(hash[:8])
}

// resultErrorCode returns the code of a structured error result, or "".
func resultErrorCode(result *mcplib.CallToolResult) string {
	if result == nil || !result.IsError {
		return ""
	}
	for _, c := range result.Content {
		tc, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		var partial struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal([]byte(tc.Text), &partial); err == nil && partial.Code != "" {
			return partial.Code
		}
		return "error"
	}
	return "error"
}
