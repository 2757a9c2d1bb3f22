package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// eventMatch is the outcome of the lookup phase for one event.
type eventMatch struct {
	eventID string
	row     *models.CalendarEvent // relational row, nil when not mirrored
	entry   *models.CalendarEntry // calendar entry, when the lookup fetched it
	adopted bool                  // entry exists in the calendar without a row
}

func (r *reconciler) ReconcileEvent(ctx context.Context, ev *models.ValidatedEvent) (*models.ReconcileResult, error) {
	m, err := r.lookupEvent(ctx, ev)
	if err != nil {
		return nil, err
	}

	// An explicit client wins; otherwise a stored linkage is kept and only
	// unlinked events are matched against known clients.
	clientID := ev.ClientID
	if clientID == nil && (m.row == nil || m.row.ClientID == nil) {
		if clientID, err = r.inferClient(ctx, ev.CompanyName, ev.PersonName); err != nil {
			return nil, err
		}
	}

	var res *models.ReconcileResult
	if m.row != nil {
		res, err = r.updateEvent(ctx, m, ev, clientID)
	} else {
		res, err = r.createEvent(ctx, m, ev, clientID)
	}
	if err != nil {
		r.logger.Error("Event reconciliation failed",
			zap.String("event_id", m.eventID),
			zap.String("summary", ev.Summary),
			zap.Error(err))
		return nil, err
	}

	r.logger.Info("Reconciled event",
		zap.String("event_id", res.EventID),
		zap.String("action", string(res.Action)),
		zap.Bool("calendar_written", res.CalendarWritten),
		zap.Bool("relational_written", res.RelationalWritten),
		zap.Bool("adopted", res.Adopted))
	return res, nil
}

// lookupEvent resolves the domain key. The relational store is consulted
// first; on a miss the calendar is checked for the caller's identifier or,
// when there is none, for an un-mirrored entry with the same summary and an
// overlapping window.
func (r *reconciler) lookupEvent(ctx context.Context, ev *models.ValidatedEvent) (*eventMatch, error) {
	id := ev.EventID
	if id == "" {
		id = DeterministicEventID(ev.Summary, ev.Start, ev.End)
	}

	row, err := r.findRow(ctx, id)
	if err != nil {
		return nil, failure(apperrors.StoreRelational, err, false, "")
	}
	if row != nil {
		return &eventMatch{eventID: id, row: row}, nil
	}

	if ev.EventID != "" {
		if models.IsLocalEventID(id) {
			return nil, &apperrors.StoreError{
				Store: apperrors.StoreRelational,
				Op:    "find event",
				Err:   fmt.Errorf("local event %s: %w", id, apperrors.ErrNotFound),
			}
		}
		entry, err := r.findEntry(ctx, id)
		if err != nil {
			return nil, failure(apperrors.StoreCalendar, err, false, "")
		}
		return &eventMatch{eventID: id, entry: entry, adopted: entry != nil}, nil
	}

	entry := r.findDrifted(ctx, ev)
	if entry == nil {
		return &eventMatch{eventID: id}, nil
	}
	row, err = r.findRow(ctx, entry.ID)
	if err != nil {
		return nil, failure(apperrors.StoreRelational, err, false, "")
	}
	return &eventMatch{eventID: entry.ID, row: row, entry: entry, adopted: row == nil}, nil
}

// findDrifted is best-effort drift detection: an entry created directly in
// the calendar carries an identifier we cannot derive, so it is matched on
// normalized summary and an overlapping time window. Failures only log.
func (r *reconciler) findDrifted(ctx context.Context, ev *models.ValidatedEvent) *models.CalendarEntry {
	if r.driftWindow <= 0 {
		return nil
	}
	entries, err := withRetry(ctx, r, func() ([]models.CalendarEntry, error) {
		return r.calendar.List(ctx, ev.Start.Add(-r.driftWindow), ev.End.Add(r.driftWindow))
	})
	if err != nil {
		r.logger.Warn("Drift lookup failed, continuing without it",
			zap.String("summary", ev.Summary),
			zap.Error(err))
		return nil
	}

	var best *models.CalendarEntry
	var bestGap int64
	for i := range entries {
		e := &entries[i]
		if e.Status == models.EventStatusCancelled || !sameSummary(e.Summary, ev.Summary) || !e.Overlaps(ev.Start, ev.End) {
			continue
		}
		gap := e.Start.Sub(ev.Start).Abs().Nanoseconds()
		if best == nil || gap < bestGap {
			best, bestGap = e, gap
		}
	}
	if best != nil {
		r.logger.Info("Matched un-mirrored calendar entry",
			zap.String("event_id", best.ID),
			zap.String("summary", best.Summary))
	}
	return best
}

func (r *reconciler) createEvent(ctx context.Context, m *eventMatch, ev *models.ValidatedEvent, clientID *int64) (*models.ReconcileResult, error) {
	res := &models.ReconcileResult{
		Kind:     models.CandidateEvent,
		EventID:  m.eventID,
		ClientID: clientID,
		Adopted:  m.adopted,
	}

	source := ev.Source
	if source == "" {
		source = models.EventSourceSynced
	}

	// Calendar first: a rejected calendar write must not leave an orphan row.
	entry, written, err := r.ensureEntry(ctx, m.entry, toEntry(ev, m.eventID))
	if err != nil {
		return nil, failure(apperrors.StoreCalendar, err, false, "")
	}
	res.EventID = entry.ID
	res.CalendarWritten = written
	if m.adopted {
		source = models.EventSourceImported
	}

	row := rowFor(ev, res.EventID, r.calendar.CalendarID(), clientID, source)
	action, err := r.writeRow(ctx, row)
	if err != nil {
		// The calendar holds the entry: name it so the row can be repaired.
		return nil, failure(apperrors.StoreRelational, err, true, res.EventID)
	}
	res.RelationalWritten = action != models.ActionNoop
	res.ClientID = row.ClientID

	switch {
	case action == models.ActionCreated:
		res.Action = models.ActionCreated
	case res.CalendarWritten || action == models.ActionUpdated:
		res.Action = models.ActionUpdated
	default:
		res.Action = models.ActionNoop
	}
	return res, nil
}

func (r *reconciler) updateEvent(ctx context.Context, m *eventMatch, ev *models.ValidatedEvent, clientID *int64) (*models.ReconcileResult, error) {
	res := &models.ReconcileResult{
		Kind:    models.CandidateEvent,
		EventID: m.row.EventID,
	}

	if !m.row.IsLocal() {
		_, written, err := r.ensureEntry(ctx, m.entry, toEntry(ev, m.row.EventID))
		if err != nil {
			return nil, failure(apperrors.StoreCalendar, err, false, "")
		}
		res.CalendarWritten = written
	}

	want := mergeRow(m.row, rowFor(ev, m.row.EventID, m.row.CalendarID, clientID, m.row.Source))
	res.ClientID = want.ClientID
	if !rowEqual(m.row, want) {
		if err := r.do(ctx, func() error { return r.events.Update(ctx, want) }); err != nil {
			if res.CalendarWritten {
				return nil, failure(apperrors.StoreRelational, err, true, res.EventID)
			}
			return nil, failure(apperrors.StoreRelational, err, false, "")
		}
		res.RelationalWritten = true
		res.ClientID = want.ClientID
	}

	res.Action = models.ActionNoop
	if res.CalendarWritten || res.RelationalWritten {
		res.Action = models.ActionUpdated
	}
	return res, nil
}

// ensureEntry makes the calendar hold want under want.ID. current is the
// entry already fetched by the lookup, if any. It reports whether the
// calendar was written.
func (r *reconciler) ensureEntry(ctx context.Context, current *models.CalendarEntry, want *models.CalendarEntry) (*models.CalendarEntry, bool, error) {
	if current == nil {
		found, err := r.findEntry(ctx, want.ID)
		if err != nil {
			return nil, false, err
		}
		current = found
	}

	if current == nil {
		created, err := withRetry(ctx, r, func() (*models.CalendarEntry, error) {
			return r.calendar.Create(ctx, want)
		})
		switch {
		case err == nil:
			return created, true, nil
		case !apperrors.IsConflict(err):
			return nil, false, err
		}
		// Someone else created this identifier since the lookup, or the
		// calendar keeps a cancelled entry under it.
		existing, err := withRetry(ctx, r, func() (*models.CalendarEntry, error) {
			return r.calendar.Get(ctx, want.ID)
		})
		if err != nil {
			return nil, false, err
		}
		current = existing
	}

	if !entryDiffers(current, want) {
		return current, false, nil
	}
	want.ID = current.ID
	updated, err := withRetry(ctx, r, func() (*models.CalendarEntry, error) {
		return r.calendar.Update(ctx, want)
	})
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

// writeRow inserts row, falling back to updating the existing row when the
// event_id is already taken.
func (r *reconciler) writeRow(ctx context.Context, row *models.CalendarEvent) (models.ReconcileAction, error) {
	action := models.ActionCreated
	err := r.do(ctx, func() error {
		err := r.events.Create(ctx, row)
		if err == nil || !apperrors.IsConflict(err) {
			return err
		}

		existing, err := r.events.FindByEventID(ctx, row.EventID)
		if err != nil {
			return err
		}
		merged := mergeRow(existing, row)
		if rowEqual(existing, merged) {
			action = models.ActionNoop
			*row = *existing
			return nil
		}
		if err := r.events.Update(ctx, merged); err != nil {
			return err
		}
		action = models.ActionUpdated
		*row = *merged
		return nil
	})
	return action, err
}

func (r *reconciler) DeleteEvent(ctx context.Context, eventID string) (*models.ReconcileResult, error) {
	res := &models.ReconcileResult{Kind: models.CandidateEvent, EventID: eventID, Action: models.ActionDeleted}

	if !models.IsLocalEventID(eventID) {
		err := r.do(ctx, func() error { return r.calendar.Delete(ctx, eventID) })
		switch {
		case err == nil:
			res.CalendarWritten = true
		case !apperrors.IsNotFound(err):
			return nil, failure(apperrors.StoreCalendar, err, false, "")
		}
	}

	err := r.do(ctx, func() error { return r.events.Delete(ctx, eventID) })
	switch {
	case err == nil:
		res.RelationalWritten = true
	case !apperrors.IsNotFound(err):
		return nil, failure(apperrors.StoreRelational, err, res.CalendarWritten, eventID)
	}

	if !res.CalendarWritten && !res.RelationalWritten {
		return nil, &apperrors.StoreError{
			Store: apperrors.StoreRelational,
			Op:    "delete event",
			Err:   apperrors.ErrNotFound,
		}
	}

	r.logger.Info("Deleted event",
		zap.String("event_id", eventID),
		zap.Bool("calendar", res.CalendarWritten),
		zap.Bool("relational", res.RelationalWritten))
	return res, nil
}

// findRow returns the relational row for eventID, or nil when absent.
func (r *reconciler) findRow(ctx context.Context, eventID string) (*models.CalendarEvent, error) {
	row, err := withRetry(ctx, r, func() (*models.CalendarEvent, error) {
		return r.events.FindByEventID(ctx, eventID)
	})
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	return row, err
}

// findEntry returns the calendar entry for eventID, or nil when absent.
func (r *reconciler) findEntry(ctx context.Context, eventID string) (*models.CalendarEntry, error) {
	entry, err := withRetry(ctx, r, func() (*models.CalendarEntry, error) {
		return r.calendar.Find(ctx, eventID)
	})
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	return entry, err
}

func toEntry(ev *models.ValidatedEvent, eventID string) *models.CalendarEntry {
	return &models.CalendarEntry{
		ID:          eventID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       ev.Start,
		End:         ev.End,
		Timezone:    ev.Timezone,
		Status:      ev.Status,
	}
}

func entryDiffers(have, want *models.CalendarEntry) bool {
	return have.Summary != want.Summary ||
		have.Description != want.Description ||
		!have.Start.Equal(want.Start) ||
		!have.End.Equal(want.End) ||
		have.Status != want.Status ||
		storedTimezone(have.Timezone) != storedTimezone(want.Timezone)
}

// storedTimezone is the zone name a calendar keeps for an entry. Fixed
// offsets are carried by the timestamps alone and read back empty.
func storedTimezone(tz string) string {
	if _, err := time.LoadLocation(tz); tz == "" || err != nil {
		return ""
	}
	return tz
}

func rowFor(ev *models.ValidatedEvent, eventID, calendarID string, clientID *int64, source string) *models.CalendarEvent {
	return &models.CalendarEvent{
		EventID:     eventID,
		Summary:     ev.Summary,
		Start:       ev.Start,
		End:         ev.End,
		Description: ev.Description,
		CompanyName: ev.CompanyName,
		PersonName:  ev.PersonName,
		Source:      source,
		CalendarID:  calendarID,
		Timezone:    ev.Timezone,
		Status:      ev.Status,
		ClientID:    clientID,
	}
}

// mergeRow applies incoming over existing. The client linkage, the source
// tag and the calendar id survive when incoming lacks them.
func mergeRow(existing, incoming *models.CalendarEvent) *models.CalendarEvent {
	merged := *incoming
	merged.ID = existing.ID
	merged.CreatedAt = existing.CreatedAt
	merged.UpdatedAt = existing.UpdatedAt
	if merged.ClientID == nil {
		merged.ClientID = existing.ClientID
	}
	if existing.Source != "" {
		merged.Source = existing.Source
	}
	if merged.CalendarID == "" {
		merged.CalendarID = existing.CalendarID
	}
	return &merged
}

func rowEqual(a, b *models.CalendarEvent) bool {
	return a.EventID == b.EventID &&
		a.Summary == b.Summary &&
		a.Start.Equal(b.Start) &&
		a.End.Equal(b.End) &&
		a.Description == b.Description &&
		a.CompanyName == b.CompanyName &&
		a.PersonName == b.PersonName &&
		a.Source == b.Source &&
		a.CalendarID == b.CalendarID &&
		a.Timezone == b.Timezone &&
		a.Status == b.Status &&
		equalIDs(a.ClientID, b.ClientID)
}

func equalIDs(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
