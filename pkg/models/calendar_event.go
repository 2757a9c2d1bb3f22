package models

import (
	"strings"
	"time"
)

// Event status values, shared by the relational row and the calendar entry.
const (
	EventStatusConfirmed = "confirmed"
	EventStatusTentative = "tentative"
	EventStatusCancelled = "cancelled"
)

// Event source tags record which path produced a relational row.
const (
	EventSourceSynced     = "synced"     // created through the calendar, mirrored here
	EventSourceTranscript = "transcript" // extracted from a meeting transcript
	EventSourceImported   = "imported"   // adopted from an un-mirrored calendar entry
	EventSourceLocal      = "supabase_only"
)

// LocalEventPrefix marks legacy rows that were never written to the calendar.
const LocalEventPrefix = "local_"

// CalendarEvent is the relational projection of a scheduled event.
// EventID is the join key with the calendar service and the sole dedup key.
type CalendarEvent struct {
	ID          int64     `json:"id"`
	EventID     string    `json:"event_id"`
	Summary     string    `json:"summary"`
	Start       time.Time `json:"start_iso"`
	End         time.Time `json:"end_iso"`
	Description string    `json:"description,omitempty"`
	CompanyName string    `json:"company_name,omitempty"`
	PersonName  string    `json:"person_name,omitempty"`
	Source      string    `json:"source"`
	CalendarID  string    `json:"calendar_id"`
	Timezone    string    `json:"timezone"`
	Status      string    `json:"status"`
	ClientID    *int64    `json:"client_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsLocal reports whether the row carries a legacy local identifier.
func (e *CalendarEvent) IsLocal() bool {
	return IsLocalEventID(e.EventID)
}

// IsLocalEventID reports whether id was assigned locally rather than by the calendar.
func IsLocalEventID(id string) bool {
	return strings.HasPrefix(id, LocalEventPrefix)
}

// CalendarEntry is the calendar-service projection of an event.
type CalendarEntry struct {
	ID          string    `json:"id"`
	CalendarID  string    `json:"calendar_id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Timezone    string    `json:"timezone"`
	Status      string    `json:"status"`
}

// Overlaps reports whether the entry's time window intersects [start, end).
func (c *CalendarEntry) Overlaps(start, end time.Time) bool {
	return c.Start.Before(end) && start.Before(c.End)
}

// EventFilter narrows relational event listings.
type EventFilter struct {
	EventID         string
	TimeMin         *time.Time
	TimeMax         *time.Time
	SummaryContains string
	CompanyContains string
	ClientID        *int64
	Limit           int
}

// EventPatch carries the optional fields of a partial event update.
// Nil means "not provided"; the stored value is kept.
type EventPatch struct {
	Summary     *string
	Start       *time.Time
	End         *time.Time
	Description *string
	CompanyName *string
	PersonName  *string
	Timezone    *string
	Status      *string
	ClientID    *int64
}
