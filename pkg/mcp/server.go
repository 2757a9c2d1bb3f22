package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Instructions is sent to clients on initialize.
const Instructions = "Agenda tools for a consulting practice. " +
	"process_transcript and transcribe_audio turn a meeting into client records and calendar events; " +
	"pass dry_run to preview what would be written. " +
	"schedule_event, update_event and cancel_event keep the calendar and the database in step, " +
	"and scheduling the same event again updates it instead of duplicating it. " +
	"Times without a UTC offset are read in the event timezone."

// Server is the agenda MCP endpoint. Tool calls are logged through a
// ToolCallLogger and panics in handlers become error results.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates the server with tool capabilities. Extra options are
// applied after the defaults.
func NewServer(name, version string, logger *zap.Logger, opts ...server.ServerOption) *Server {
	logger = logger.Named("mcp")
	callLog := NewToolCallLogger(logger)

	options := append([]server.ServerOption{
		server.WithToolCapabilities(true),
		server.WithInstructions(Instructions),
		server.WithRecovery(),
		server.WithHooks(callLog.Hooks()),
	}, opts...)

	return &Server{
		mcp:    server.NewMCPServer(name, version, options...),
		logger: logger,
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer serves the tools statelessly: every POST carries
// a complete JSON-RPC exchange and no session is kept between calls.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}
