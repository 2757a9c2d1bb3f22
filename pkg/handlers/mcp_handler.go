package handlers

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/auth"
	"github.com/ekaya-inc/agenda-sync/pkg/mcp"
	"github.com/ekaya-inc/agenda-sync/pkg/middleware"
)

// maxMCPBodyBytes bounds one JSON-RPC request. Transcripts sent inline to
// process_transcript are the largest payloads.
const maxMCPBodyBytes = 4 << 20

// MCPHandler exposes the agenda tools at /mcp.
type MCPHandler struct {
	httpServer *server.StreamableHTTPServer
	auth       *auth.Middleware
	logger     *zap.Logger
}

func NewMCPHandler(mcpServer *mcp.Server, authMiddleware *auth.Middleware, logger *zap.Logger) *MCPHandler {
	return &MCPHandler{
		httpServer: mcpServer.NewStreamableHTTPServer(),
		auth:       authMiddleware,
		logger:     logger.Named("mcp-http"),
	}
}

// RegisterRoutes registers POST /mcp. Method and size are checked before
// the bearer token.
func (h *MCPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/mcp", h.guard(h.auth.RequireAuth(h.httpServer)))
}

func (h *MCPHandler) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.ContentLength > maxMCPBodyBytes {
			h.logger.Info("Rejected oversized MCP request",
				zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
				zap.Int64("content_length", r.ContentLength))
			_ = ErrorResponse(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body exceeds the MCP size limit")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxMCPBodyBytes)
		next.ServeHTTP(w, r)
	})
}
