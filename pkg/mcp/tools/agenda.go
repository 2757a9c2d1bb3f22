package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// RegisterAgendaTools registers the event and client tools.
func RegisterAgendaTools(s *server.MCPServer, deps *ToolDeps) {
	registerScheduleEventTool(s, deps)
	registerUpdateEventTool(s, deps)
	registerCancelEventTool(s, deps)
	registerListEventsTool(s, deps)
	registerSyncLocalEventsTool(s, deps)
	registerUpsertClientTool(s, deps)
	registerListClientsTool(s, deps)
}

func registerScheduleEventTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"schedule_event",
		mcp.WithDescription(
			"Schedule an event in the calendar and the database. "+
				"Scheduling the same event twice (same summary and start) updates it instead of duplicating it. "+
				"Times without a UTC offset are read in the event timezone. "+
				"The event is linked to a client by client_id, or by company_name/person_name when they match a known client.",
		),
		mcp.WithString("summary", mcp.Required(), mcp.Description("Event title")),
		mcp.WithString("start", mcp.Required(), mcp.Description("Start time, e.g. 2025-11-25T09:30:00-06:00")),
		mcp.WithString("end", mcp.Required(), mcp.Description("End time, after start")),
		mcp.WithString("timezone", mcp.Description("IANA timezone of the event (defaults to the server's)")),
		mcp.WithString("description", mcp.Description("Agenda or notes")),
		mcp.WithString("company_name", mcp.Description("Client company")),
		mcp.WithString("person_name", mcp.Description("Client contact person")),
		mcp.WithNumber("client_id", mcp.Description("Explicit client id; overrides name matching")),
		mcp.WithString("status",
			mcp.Description("Event status (default: confirmed)"),
			mcp.Enum(models.EventStatusConfirmed, models.EventStatusTentative),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summary, err := req.RequireString("summary")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		timezone := getOptionalString(req, "timezone")
		loc := eventLocation(timezone, deps.DefaultTimezone)
		start, err := getOptionalTime(req, "start", loc)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		end, err := getOptionalTime(req, "end", loc)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		clientID, hasClient, err := getOptionalInt(req, "client_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		ev := &models.EventCandidate{
			Summary:     trimString(summary),
			Start:       start,
			End:         end,
			Timezone:    timezone,
			Description: getOptionalString(req, "description"),
			CompanyName: getOptionalString(req, "company_name"),
			PersonName:  getOptionalString(req, "person_name"),
			Status:      getOptionalString(req, "status"),
		}
		if hasClient {
			ev.ClientID = &clientID
		}

		result, err := deps.Agenda.ScheduleEvent(ctx, ev)
		if err != nil {
			deps.Logger.Info("schedule_event failed", zap.String("summary", ev.Summary), zap.Error(err))
			return serviceErrorResult(err)
		}
		return jsonResult(result)
	})
}

func registerUpdateEventTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"update_event",
		mcp.WithDescription(
			"Update an existing event by event_id. Only the given fields change; the rest, "+
				"including the client link, keep their stored values. "+
				"Moving the start without an end keeps the event's duration.",
		),
		mcp.WithString("event_id", mcp.Required(), mcp.Description("Calendar event id returned by schedule_event or list_events")),
		mcp.WithString("summary", mcp.Description("New title")),
		mcp.WithString("start", mcp.Description("New start time")),
		mcp.WithString("end", mcp.Description("New end time")),
		mcp.WithString("timezone", mcp.Description("New IANA timezone; also used to read times without an offset")),
		mcp.WithString("description", mcp.Description("New agenda or notes")),
		mcp.WithString("company_name", mcp.Description("New client company")),
		mcp.WithString("person_name", mcp.Description("New client contact person")),
		mcp.WithNumber("client_id", mcp.Description("Relink the event to this client")),
		mcp.WithString("status",
			mcp.Description("New status"),
			mcp.Enum(models.EventStatusConfirmed, models.EventStatusTentative),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		eventID, err := req.RequireString("event_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		timezone := getOptionalStringPtr(req, "timezone")
		tzName := ""
		if timezone != nil {
			tzName = *timezone
		}
		loc := eventLocation(tzName, deps.DefaultTimezone)

		patch := models.EventPatch{
			Summary:     getOptionalStringPtr(req, "summary"),
			Description: getOptionalStringPtr(req, "description"),
			CompanyName: getOptionalStringPtr(req, "company_name"),
			PersonName:  getOptionalStringPtr(req, "person_name"),
			Timezone:    timezone,
			Status:      getOptionalStringPtr(req, "status"),
		}
		if patch.Start, err = getOptionalTime(req, "start", loc); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if patch.End, err = getOptionalTime(req, "end", loc); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		clientID, hasClient, err := getOptionalInt(req, "client_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if hasClient {
			patch.ClientID = &clientID
		}

		result, err := deps.Agenda.UpdateEvent(ctx, eventID, patch)
		if err != nil {
			deps.Logger.Info("update_event failed", zap.String("event_id", eventID), zap.Error(err))
			return serviceErrorResult(err)
		}
		return jsonResult(result)
	})
}

func registerCancelEventTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"cancel_event",
		mcp.WithDescription("Cancel an event: removes it from the calendar and the database."),
		mcp.WithString("event_id", mcp.Required(), mcp.Description("Calendar event id")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		eventID, err := req.RequireString("event_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		result, err := deps.Agenda.CancelEvent(ctx, eventID)
		if err != nil {
			deps.Logger.Info("cancel_event failed", zap.String("event_id", eventID), zap.Error(err))
			return serviceErrorResult(err)
		}
		return jsonResult(result)
	})
}

func registerListEventsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_events",
		mcp.WithDescription(
			"List scheduled events ordered by start time. All filters are optional and combine with AND.",
		),
		mcp.WithString("time_min", mcp.Description("Only events ending after this time")),
		mcp.WithString("time_max", mcp.Description("Only events starting before this time")),
		mcp.WithString("summary_contains", mcp.Description("Case-insensitive title filter")),
		mcp.WithString("company_contains", mcp.Description("Case-insensitive company filter")),
		mcp.WithNumber("client_id", mcp.Description("Only events linked to this client")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of events (default: 100)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		loc, err := loadLocation("", deps.DefaultTimezone)
		if err != nil {
			return nil, err
		}

		filter := models.EventFilter{
			SummaryContains: getOptionalString(req, "summary_contains"),
			CompanyContains: getOptionalString(req, "company_contains"),
			Limit:           100,
		}
		if filter.TimeMin, err = getOptionalTime(req, "time_min", loc); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if filter.TimeMax, err = getOptionalTime(req, "time_max", loc); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		clientID, hasClient, err := getOptionalInt(req, "client_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if hasClient {
			filter.ClientID = &clientID
		}
		limit, hasLimit, err := getOptionalInt(req, "limit")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if hasLimit {
			if limit < 1 {
				return NewErrorResult("invalid_parameters", "limit must be at least 1"), nil
			}
			filter.Limit = int(limit)
		}

		events, err := deps.Agenda.ListEvents(ctx, filter)
		if err != nil {
			return serviceErrorResult(err)
		}
		if events == nil {
			events = []*models.CalendarEvent{}
		}
		return jsonResult(struct {
			Events []*models.CalendarEvent `json:"events"`
			Count  int                     `json:"count"`
		}{events, len(events)})
	})
}

func registerSyncLocalEventsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"sync_local_events",
		mcp.WithDescription(
			"Push events that exist only in the database (ids starting with local_) to the calendar "+
				"and replace their ids with the calendar's. Reports one result per event.",
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		results, err := deps.Agenda.SyncLocal(ctx)
		if err != nil {
			return serviceErrorResult(err)
		}
		if results == nil {
			results = []models.LocalSyncResult{}
		}
		deps.Logger.Info("Synced local events",
			zap.Int("events", len(results)),
			zap.Duration("elapsed", time.Since(start)))
		return jsonResult(struct {
			Results []models.LocalSyncResult `json:"results"`
			Count   int                      `json:"count"`
		}{results, len(results)})
	})
}

func registerUpsertClientTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"upsert_client",
		mcp.WithDescription(
			"Create a client or update the matching one. Names are matched ignoring case, accents "+
				"and honorifics, so 'Lic. Sofía Galindo' and 'sofia galindo' are the same person.",
		),
		mcp.WithString("company_name", mcp.Required(), mcp.Description("Company name")),
		mcp.WithString("person_name", mcp.Description("Contact person")),
		mcp.WithString("email", mcp.Description("Contact email")),
		mcp.WithString("phone", mcp.Description("Contact phone")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		company, err := req.RequireString("company_name")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		c := &models.ClientCandidate{
			CompanyName: trimString(company),
			PersonName:  getOptionalString(req, "person_name"),
			Email:       getOptionalString(req, "email"),
			Phone:       getOptionalString(req, "phone"),
		}
		result, err := deps.Agenda.UpsertClient(ctx, c)
		if err != nil {
			return serviceErrorResult(err)
		}
		return jsonResult(result)
	})
}

func registerListClientsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_clients",
		mcp.WithDescription("List known clients. Inactive clients are hidden unless include_inactive is true."),
		mcp.WithString("company_contains", mcp.Description("Case-insensitive company filter")),
		mcp.WithString("person_contains", mcp.Description("Case-insensitive contact filter")),
		mcp.WithBoolean("include_inactive", mcp.Description("Include deactivated clients (default: false)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of clients")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter := models.ClientFilter{
			CompanyContains: getOptionalString(req, "company_contains"),
			PersonContains:  getOptionalString(req, "person_contains"),
		}
		filter.IncludeInactive, _ = getOptionalBool(req, "include_inactive")
		limit, hasLimit, err := getOptionalInt(req, "limit")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if hasLimit {
			if limit < 1 {
				return NewErrorResult("invalid_parameters", "limit must be at least 1"), nil
			}
			filter.Limit = int(limit)
		}

		clients, err := deps.Agenda.ListClients(ctx, filter)
		if err != nil {
			return serviceErrorResult(err)
		}
		if clients == nil {
			clients = []*models.Client{}
		}
		return jsonResult(struct {
			Clients []*models.Client `json:"clients"`
			Count   int              `json:"count"`
		}{clients, len(clients)})
	})
}
