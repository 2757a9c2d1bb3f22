package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/logging"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// Per-row outcomes of SyncLocalEvents.
const (
	LocalSyncSynced        = "synced"
	LocalSyncAlreadySynced = "already_synced"
	LocalSyncFailed        = "sync_failed"
)

// SyncLocalEvents pushes every row with a local_ identifier to the calendar
// and moves the row to the identifier the calendar holds it under. Each row
// is reported; a failing row does not stop the others.
func (r *reconciler) SyncLocalEvents(ctx context.Context) ([]models.LocalSyncResult, error) {
	rows, err := withRetry(ctx, r, func() ([]*models.CalendarEvent, error) {
		return r.events.ListLocal(ctx)
	})
	if err != nil {
		return nil, failure(apperrors.StoreRelational, err, false, "")
	}

	results := make([]models.LocalSyncResult, 0, len(rows))
	for _, row := range rows {
		res := r.syncLocal(ctx, row)
		if res.Status == LocalSyncFailed {
			r.logger.Warn("Local event sync failed",
				zap.String("event_id", row.EventID),
				zap.String("error", res.Error))
		}
		results = append(results, res)
	}

	r.logger.Info("Synced local events", zap.Int("rows", len(rows)))
	return results, nil
}

func (r *reconciler) syncLocal(ctx context.Context, row *models.CalendarEvent) models.LocalSyncResult {
	res := models.LocalSyncResult{Summary: row.Summary, OldEventID: row.EventID}
	fail := func(err error) models.LocalSyncResult {
		res.Status = LocalSyncFailed
		res.Error = logging.SanitizeError(err)
		return res
	}

	status := row.Status
	if status == "" {
		status = models.EventStatusConfirmed
	}
	want := &models.CalendarEntry{
		ID:          DeterministicEventID(row.Summary, row.Start, row.End),
		Summary:     row.Summary,
		Description: row.Description,
		Start:       row.Start,
		End:         row.End,
		Timezone:    row.Timezone,
		Status:      status,
	}
	entry, _, err := r.ensureEntry(ctx, nil, want)
	if err != nil {
		return fail(err)
	}
	res.NewEventID = entry.ID

	// The existence check and the move or removal commit together, so two
	// syncs of the same event leave exactly one row.
	already := false
	err = r.do(ctx, func() error {
		return r.tx.InTx(ctx, func(ctx context.Context) error {
			already = false
			existing, err := r.events.FindByEventID(ctx, entry.ID)
			switch {
			case err == nil && existing != nil:
				already = true
				if err := r.events.Delete(ctx, row.EventID); err != nil && !apperrors.IsNotFound(err) {
					return err
				}
				return nil
			case err != nil && !apperrors.IsNotFound(err):
				return err
			}
			return r.events.RewriteEventID(ctx, row.EventID, entry.ID, r.calendar.CalendarID())
		})
	})
	switch {
	case err == nil && already:
		res.Status = LocalSyncAlreadySynced
	case err == nil:
		res.Status = LocalSyncSynced
	case apperrors.IsConflict(err):
		// Another sync moved a duplicate onto the calendar identifier after
		// the check: this row is the leftover.
		if err := r.do(ctx, func() error { return r.events.Delete(ctx, row.EventID) }); err != nil && !apperrors.IsNotFound(err) {
			return fail(err)
		}
		res.Status = LocalSyncAlreadySynced
	default:
		return fail(err)
	}
	return res
}
