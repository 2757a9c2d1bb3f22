// Package calendar is the calendar-service store adapter. The calendar is
// the source of truth for scheduling fields and assigns event identifiers.
package calendar

import (
	"context"
	"time"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// Store is the calendar side of reconciliation. Implementations report
// failures as *apperrors.StoreError wrapping apperrors.ErrNotFound or
// apperrors.ErrConflict where applicable.
type Store interface {
	// CalendarID names the calendar written to.
	CalendarID() string
	// Find returns the live entry with eventID, or an error wrapping
	// ErrNotFound. Cancelled entries are reported as not found.
	Find(ctx context.Context, eventID string) (*models.CalendarEntry, error)
	// Get returns the entry with eventID whatever its status, so a cancelled
	// entry still holding its identifier can be compared before rewriting.
	Get(ctx context.Context, eventID string) (*models.CalendarEntry, error)
	// Create inserts entry. A non-empty entry.ID is requested as the
	// identifier; an existing entry with that ID yields ErrConflict.
	Create(ctx context.Context, entry *models.CalendarEntry) (*models.CalendarEntry, error)
	// Update replaces the scheduling fields of entry.ID.
	Update(ctx context.Context, entry *models.CalendarEntry) (*models.CalendarEntry, error)
	// Delete removes eventID. Deleting an absent entry wraps ErrNotFound.
	Delete(ctx context.Context, eventID string) error
	// List returns entries overlapping [timeMin, timeMax), ordered by start.
	List(ctx context.Context, timeMin, timeMax time.Time) ([]models.CalendarEntry, error)
}
