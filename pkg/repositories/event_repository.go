package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/agenda-sync/pkg/database"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// EventRepository provides data access for the relational projection of
// calendar events. Rows are keyed by the calendar's event_id.
type EventRepository interface {
	FindByEventID(ctx context.Context, eventID string) (*models.CalendarEvent, error)
	// Create inserts a row. A taken event_id yields apperrors.ErrConflict.
	Create(ctx context.Context, event *models.CalendarEvent) error
	// Update rewrites the row with event.EventID. A nil ClientID keeps the
	// stored linkage.
	Update(ctx context.Context, event *models.CalendarEvent) error
	Delete(ctx context.Context, eventID string) error
	List(ctx context.Context, filter models.EventFilter) ([]*models.CalendarEvent, error)
	// ListLocal returns rows that were never written to the calendar.
	ListLocal(ctx context.Context) ([]*models.CalendarEvent, error)
	// RewriteEventID moves a row to the identifier assigned by the calendar.
	RewriteEventID(ctx context.Context, oldID, newID, calendarID string) error
}

type eventRepository struct {
	db *database.DB
}

var _ EventRepository = (*eventRepository)(nil)

// NewEventRepository creates an event repository on db.
func NewEventRepository(db *database.DB) EventRepository {
	return &eventRepository{db: db}
}

const eventColumns = `id, event_id, summary, start_iso, end_iso, description, company_name, person_name,
	source, calendar_id, timezone, status, client_id, created_at, updated_at`

func (r *eventRepository) FindByEventID(ctx context.Context, eventID string) (*models.CalendarEvent, error) {
	row := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM calendar_events WHERE event_id = $1`, eventID)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, storeErr("find event", err)
	}
	return ev, nil
}

func (r *eventRepository) Create(ctx context.Context, event *models.CalendarEvent) error {
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now

	query := `
		INSERT INTO calendar_events (event_id, summary, start_iso, end_iso, description, company_name,
		    person_name, source, calendar_id, timezone, status, client_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	err := r.db.Conn(ctx).QueryRow(ctx, query,
		event.EventID,
		event.Summary,
		event.Start,
		event.End,
		event.Description,
		event.CompanyName,
		event.PersonName,
		event.Source,
		event.CalendarID,
		event.Timezone,
		event.Status,
		event.ClientID,
		event.CreatedAt,
		event.UpdatedAt,
	).Scan(&event.ID)
	if err != nil {
		return storeErr("create event", err)
	}
	return nil
}

func (r *eventRepository) Update(ctx context.Context, event *models.CalendarEvent) error {
	event.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE calendar_events
		SET summary = $1, start_iso = $2, end_iso = $3, description = $4, company_name = $5,
		    person_name = $6, source = $7, calendar_id = $8, timezone = $9, status = $10,
		    client_id = COALESCE($11, client_id), updated_at = $12
		WHERE event_id = $13
		RETURNING id, client_id, created_at`

	err := r.db.Conn(ctx).QueryRow(ctx, query,
		event.Summary,
		event.Start,
		event.End,
		event.Description,
		event.CompanyName,
		event.PersonName,
		event.Source,
		event.CalendarID,
		event.Timezone,
		event.Status,
		event.ClientID,
		event.UpdatedAt,
		event.EventID,
	).Scan(&event.ID, &event.ClientID, &event.CreatedAt)
	if err != nil {
		return storeErr("update event", err)
	}
	return nil
}

func (r *eventRepository) Delete(ctx context.Context, eventID string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM calendar_events WHERE event_id = $1`, eventID)
	if err != nil {
		return storeErr("delete event", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("delete event", "event "+eventID)
	}
	return nil
}

// List returns rows matching filter ordered by start. TimeMin and TimeMax
// bound the start instant, inclusive.
func (r *eventRepository) List(ctx context.Context, filter models.EventFilter) ([]*models.CalendarEvent, error) {
	var w whereBuilder
	if filter.EventID != "" {
		w.add("event_id = $%d", filter.EventID)
	}
	if filter.TimeMin != nil {
		w.add("start_iso >= $%d", *filter.TimeMin)
	}
	if filter.TimeMax != nil {
		w.add("start_iso <= $%d", *filter.TimeMax)
	}
	if filter.SummaryContains != "" {
		w.add("summary ILIKE $%d", likePattern(filter.SummaryContains))
	}
	if filter.CompanyContains != "" {
		w.add("company_name ILIKE $%d", likePattern(filter.CompanyContains))
	}
	if filter.ClientID != nil {
		w.add("client_id = $%d", *filter.ClientID)
	}

	query := `SELECT ` + eventColumns + ` FROM calendar_events` + w.String() + ` ORDER BY start_iso, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return r.query(ctx, "list events", query, w.args...)
}

func (r *eventRepository) ListLocal(ctx context.Context) ([]*models.CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE event_id LIKE $1 ORDER BY start_iso, id`
	return r.query(ctx, "list local events", query, likePrefix(models.LocalEventPrefix))
}

func (r *eventRepository) RewriteEventID(ctx context.Context, oldID, newID, calendarID string) error {
	query := `
		UPDATE calendar_events
		SET event_id = $1, calendar_id = $2, source = $3, updated_at = $4
		WHERE event_id = $5`

	tag, err := r.db.Conn(ctx).Exec(ctx, query,
		newID, calendarID, models.EventSourceSynced, time.Now().UTC(), oldID)
	if err != nil {
		return storeErr("rewrite event id", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("rewrite event id", "event "+oldID)
	}
	return nil
}

func (r *eventRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.CalendarEvent, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	events := make([]*models.CalendarEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return events, nil
}

// scanEvent reads one row and presents its instants in the row's timezone.
func scanEvent(row pgx.Row) (*models.CalendarEvent, error) {
	var ev models.CalendarEvent
	err := row.Scan(
		&ev.ID,
		&ev.EventID,
		&ev.Summary,
		&ev.Start,
		&ev.End,
		&ev.Description,
		&ev.CompanyName,
		&ev.PersonName,
		&ev.Source,
		&ev.CalendarID,
		&ev.Timezone,
		&ev.Status,
		&ev.ClientID,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if loc, err := models.LoadTimezone(ev.Timezone); err == nil {
		ev.Start = ev.Start.In(loc)
		ev.End = ev.End.In(loc)
	}
	return &ev, nil
}

func likePrefix(s string) string {
	return likePattern(s)[1:]
}
