// Package tools provides the agent-facing MCP tools of agenda-sync.
package tools

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/services"
)

// ToolDeps contains dependencies for the agenda-sync tools.
type ToolDeps struct {
	Pipeline services.PipelineService
	Agenda   services.AgendaService
	Catalog  services.CatalogService
	// DefaultTimezone reads times given without an offset.
	DefaultTimezone string
	Logger          *zap.Logger
}

// RegisterTools registers every agenda-sync tool on s.
func RegisterTools(s *server.MCPServer, deps *ToolDeps) {
	RegisterPipelineTools(s, deps)
	RegisterAgendaTools(s, deps)
	RegisterCatalogTools(s, deps)
}
