package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
	"github.com/ekaya-inc/agenda-sync/pkg/retry"
	"github.com/ekaya-inc/agenda-sync/pkg/testhelpers"
)

// ============================================================================
// Test harness
// ============================================================================

type harness struct {
	cal     *testhelpers.FakeCalendar
	events  *testhelpers.FakeEvents
	clients *testhelpers.FakeClients
	rec     Reconciler
}

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cal:     testhelpers.NewFakeCalendar("primary"),
		events:  testhelpers.NewFakeEvents(),
		clients: testhelpers.NewFakeClients(),
	}
	h.rec = NewReconciler(h.cal, h.events, h.clients, ReconcilerConfig{
		Retry:         fastRetry(),
		MaxConcurrent: 4,
		DriftWindow:   2 * time.Hour,
	}, zap.NewNop())
	return h
}

func (h *harness) addClient(t *testing.T, company, person string) int64 {
	t.Helper()
	c := &models.Client{CompanyName: company, PersonName: person, Active: true}
	require.NoError(t, h.clients.Create(context.Background(), c))
	return c.ID
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

// diagnostic is the Diagnóstico session on 2025-11-25 from 09:30 to 11:00 Mexico City.
func diagnostic(t *testing.T) *models.ValidatedEvent {
	t.Helper()
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	return &models.ValidatedEvent{
		Summary:     "Diagnóstico",
		Start:       mustTime(t, "2025-11-25T09:30:00-06:00").In(loc),
		End:         mustTime(t, "2025-11-25T11:00:00-06:00").In(loc),
		Timezone:    "America/Mexico_City",
		Location:    loc,
		CompanyName: "Tecnoflex Manufacturing",
		Status:      models.EventStatusConfirmed,
	}
}

func reconcileErr(t *testing.T, err error) *apperrors.ReconcileError {
	t.Helper()
	var rec *apperrors.ReconcileError
	require.True(t, errors.As(err, &rec), "expected ReconcileError, got %v", err)
	return rec
}

// ============================================================================
// Events
// ============================================================================

func TestReconcileEvent_CreatesCalendarFirstAndMirrorsRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	clientID := h.addClient(t, "Tecnoflex Manufacturing", "")

	ev := diagnostic(t)
	res, err := h.rec.ReconcileEvent(ctx, ev)
	require.NoError(t, err)

	assert.Equal(t, models.ActionCreated, res.Action)
	assert.True(t, res.CalendarWritten)
	assert.True(t, res.RelationalWritten)
	assert.Equal(t, DeterministicEventID(ev.Summary, ev.Start, ev.End), res.EventID)
	require.NotNil(t, res.ClientID)
	assert.Equal(t, clientID, *res.ClientID)

	entries := h.cal.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, res.EventID, entries[0].ID)
	assert.Equal(t, "2025-11-25T09:30:00-06:00", entries[0].Start.Format(time.RFC3339))
	assert.Equal(t, "2025-11-25T11:00:00-06:00", entries[0].End.Format(time.RFC3339))

	rows := h.events.All()
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, res.EventID, row.EventID)
	assert.Equal(t, "Diagnóstico", row.Summary)
	assert.Equal(t, "primary", row.CalendarID)
	assert.Equal(t, "Tecnoflex Manufacturing", row.CompanyName)
	assert.Equal(t, models.EventSourceSynced, row.Source)
	require.NotNil(t, row.ClientID)
	assert.Equal(t, clientID, *row.ClientID)
	assert.Equal(t, "2025-11-25T09:30:00-06:00", row.Start.Format(time.RFC3339))
}

func TestReconcileEvent_SecondRunIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addClient(t, "Tecnoflex Manufacturing", "")

	first, err := h.rec.ReconcileEvent(ctx, diagnostic(t))
	require.NoError(t, err)

	second, err := h.rec.ReconcileEvent(ctx, diagnostic(t))
	require.NoError(t, err)

	assert.Equal(t, models.ActionNoop, second.Action)
	assert.False(t, second.CalendarWritten)
	assert.False(t, second.RelationalWritten)
	assert.Equal(t, first.EventID, second.EventID)
	assert.Equal(t, first.ClientID, second.ClientID)
	assert.Len(t, h.cal.Entries(), 1)
	assert.Len(t, h.events.All(), 1)
	assert.Equal(t, 1, h.cal.Calls("create"))
	assert.Equal(t, 0, h.events.Calls("update"))
}

func TestReconcileEvent_ConcurrentDuplicatesConvergeOnOneRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.rec.ReconcileEvent(ctx, diagnostic(t))
			errs[i] = err
			if err == nil {
				ids[i] = res.EventID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Len(t, h.cal.Entries(), 1)
	assert.Len(t, h.events.All(), 1)
}

func TestReconcileEvent_InsertRaceFallsBackToUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := diagnostic(t)
	id := DeterministicEventID(ev.Summary, ev.Start, ev.End)
	competitorClient := int64(42)

	var once sync.Once
	h.events.BeforeCreate = func(row *models.CalendarEvent) {
		once.Do(func() {
			h.events.Put(models.CalendarEvent{
				EventID:    id,
				Summary:    "Diagnóstico",
				Start:      ev.Start,
				End:        ev.End,
				Source:     models.EventSourceTranscript,
				CalendarID: "primary",
				Timezone:   ev.Timezone,
				Status:     models.EventStatusConfirmed,
				ClientID:   &competitorClient,
			})
		})
	}

	ev.Description = "Revisión de procesos"
	res, err := h.rec.ReconcileEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, models.ActionUpdated, res.Action)

	rows := h.events.All()
	require.Len(t, rows, 1)
	assert.Equal(t, "Revisión de procesos", rows[0].Description)
	require.NotNil(t, rows[0].ClientID)
	assert.Equal(t, competitorClient, *rows[0].ClientID, "linkage set by the winner is kept")
	assert.Equal(t, models.EventSourceTranscript, rows[0].Source)
}

func TestReconcileEvent_CalendarConflictUpdatesInPlace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := diagnostic(t)
	id := DeterministicEventID(ev.Summary, ev.Start, ev.End)

	// The lookup misses an entry that holds the identifier by the time of the insert.
	h.cal.Put(models.CalendarEntry{ID: id, Summary: "Diagnóstico", Start: ev.Start, End: ev.End, Status: models.EventStatusCancelled})
	h.cal.FailNext("find", &apperrors.StoreError{Store: apperrors.StoreCalendar, Op: "find", Err: apperrors.ErrNotFound})

	res, err := h.rec.ReconcileEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, id, res.EventID)
	assert.True(t, res.CalendarWritten)

	entries := h.cal.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.EventStatusConfirmed, entries[0].Status)
	assert.Equal(t, 1, h.cal.Calls("update"))
}

func TestReconcileEvent_CancelledEventSecondRunIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ev := diagnostic(t)
	ev.Status = models.EventStatusCancelled
	first, err := h.rec.ReconcileEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreated, first.Action)

	again := diagnostic(t)
	again.Status = models.EventStatusCancelled
	second, err := h.rec.ReconcileEvent(ctx, again)
	require.NoError(t, err)

	assert.Equal(t, models.ActionNoop, second.Action)
	assert.False(t, second.CalendarWritten)
	assert.False(t, second.RelationalWritten)
	assert.Equal(t, first.EventID, second.EventID)
	assert.Equal(t, 0, h.cal.Calls("update"))
}

func TestReconcileEvent_TimezoneChangeRewritesCalendar(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.rec.ReconcileEvent(ctx, diagnostic(t))
	require.NoError(t, err)

	moved := diagnostic(t)
	moved.Timezone = "America/Bogota"
	res, err := h.rec.ReconcileEvent(ctx, moved)
	require.NoError(t, err)

	assert.Equal(t, models.ActionUpdated, res.Action)
	assert.True(t, res.CalendarWritten)
	entries := h.cal.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "America/Bogota", entries[0].Timezone)
}

func TestEntryDiffers_Timezone(t *testing.T) {
	start := time.Date(2025, 11, 25, 15, 30, 0, 0, time.UTC)
	base := models.CalendarEntry{Summary: "Demo", Start: start, End: start.Add(time.Hour), Status: models.EventStatusConfirmed}

	tests := []struct {
		name     string
		have     string
		want     string
		expected bool
	}{
		{"same zone", "America/Mexico_City", "America/Mexico_City", false},
		{"different zone", "America/Mexico_City", "America/Bogota", true},
		{"zone added", "", "America/Mexico_City", true},
		{"fixed offset reads back empty", "", "UTC-06:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			have, want := base, base
			have.Timezone = tt.have
			want.Timezone = tt.want
			assert.Equal(t, tt.expected, entryDiffers(&have, &want))
		})
	}
}

func TestReconcileEvent_UpdatePreservesClientLinkage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := diagnostic(t)
	linked := int64(7)

	h.cal.Put(models.CalendarEntry{ID: "abc123", Summary: ev.Summary, Start: ev.Start, End: ev.End, Timezone: ev.Timezone, Status: ev.Status})
	h.events.Put(models.CalendarEvent{
		EventID: "abc123", Summary: ev.Summary, Start: ev.Start, End: ev.End,
		Source: models.EventSourceSynced, CalendarID: "primary", Timezone: ev.Timezone,
		Status: ev.Status, CompanyName: "Tecnoflex Manufacturing", ClientID: &linked,
	})
	// A different company with a known client must not steal the linkage.
	h.addClient(t, "RetailMax", "")

	ev.EventID = "abc123"
	ev.CompanyName = "RetailMax"
	ev.End = ev.End.Add(30 * time.Minute)

	res, err := h.rec.ReconcileEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, models.ActionUpdated, res.Action)
	assert.True(t, res.CalendarWritten)
	assert.True(t, res.RelationalWritten)
	require.NotNil(t, res.ClientID)
	assert.Equal(t, linked, *res.ClientID)

	row, err := h.events.FindByEventID(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, row.ClientID)
	assert.Equal(t, linked, *row.ClientID)
	assert.Equal(t, "2025-11-25T11:30:00-06:00", row.End.Format(time.RFC3339))
}

func TestReconcileEvent_ExplicitClientOverridesStoredLinkage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first, err := h.rec.ReconcileEvent(ctx, diagnostic(t))
	require.NoError(t, err)
	assert.Nil(t, first.ClientID)

	other := h.addClient(t, "RetailMax", "")
	ev := diagnostic(t)
	ev.ClientID = &other
	res, err := h.rec.ReconcileEvent(ctx, ev)
	require.NoError(t, err)
	require.NotNil(t, res.ClientID)
	assert.Equal(t, other, *res.ClientID)
	assert.Equal(t, models.ActionUpdated, res.Action)
}

func TestReconcileEvent_LinkageInference(t *testing.T) {
	tests := []struct {
		name    string
		clients [][2]string
		company string
		person  string
		want    int // index into clients, -1 for unlinked
	}{
		{"exact company", [][2]string{{"Tecnoflex Manufacturing", ""}}, "tecnoflex  manufacturing", "", 0},
		{"partial company stays unlinked", [][2]string{{"Tecnoflex Manufacturing", ""}}, "Tecnoflex", "", -1},
		{"person selects contact", [][2]string{{"RetailMax", "Sofía Galindo"}, {"RetailMax", "Jorge Ruiz"}}, "RetailMax", "Lic. Sofía Galindo", 0},
		{"several contacts without person", [][2]string{{"RetailMax", "Sofía Galindo"}, {"RetailMax", "Jorge Ruiz"}}, "RetailMax", "", -1},
		{"company row preferred", [][2]string{{"RetailMax", "Sofía Galindo"}, {"RetailMax", ""}}, "RetailMax", "Pedro Paz", 1},
		{"single contact", [][2]string{{"RetailMax", "Sofía Galindo"}}, "RetailMax", "", 0},
		{"no company", [][2]string{{"RetailMax", "Sofía Galindo"}}, "", "Sofía Galindo", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ids := make([]int64, len(tt.clients))
			for i, c := range tt.clients {
				ids[i] = h.addClient(t, c[0], c[1])
			}

			ev := diagnostic(t)
			ev.CompanyName = tt.company
			ev.PersonName = tt.person
			res, err := h.rec.ReconcileEvent(context.Background(), ev)
			require.NoError(t, err)

			if tt.want < 0 {
				assert.Nil(t, res.ClientID)
				return
			}
			require.NotNil(t, res.ClientID)
			assert.Equal(t, ids[tt.want], *res.ClientID)
		})
	}
}

func TestReconcileEvent_InactiveClientNotInferred(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.addClient(t, "Tecnoflex Manufacturing", "")
	require.NoError(t, h.clients.Deactivate(ctx, id))

	res, err := h.rec.ReconcileEvent(ctx, diagnostic(t))
	require.NoError(t, err)
	assert.Nil(t, res.ClientID)
}

func TestReconcileEvent_AdoptsDriftedCalendarEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := diagnostic(t)

	h.cal.Put(models.CalendarEntry{
		ID:      "manual001",
		Summary: "diagnostico",
		Start:   ev.Start.Add(-30 * time.Minute),
		End:     ev.End.Add(-30 * time.Minute),
		Status:  models.EventStatusConfirmed,
	})
	h.cal.Put(models.CalendarEntry{
		ID:      "cancelled",
		Summary: "Diagnóstico",
		Start:   ev.Start,
		End:     ev.End,
		Status:  models.EventStatusCancelled,
	})

	res, err := h.rec.ReconcileEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, "manual001", res.EventID)
	assert.True(t, res.Adopted)
	assert.Equal(t, models.ActionCreated, res.Action)

	row, err := h.events.FindByEventID(ctx, "manual001")
	require.NoError(t, err)
	assert.Equal(t, models.EventSourceImported, row.Source)
	assert.Equal(t, 0, h.cal.Calls("create"))

	entry, err := h.cal.Find(ctx, "manual001")
	require.NoError(t, err)
	assert.True(t, entry.Start.Equal(ev.Start), "calendar entry moved to the reconciled window")
}

func TestReconcileEvent_DriftLookupFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.cal.FailNext("list", testhelpers.PermanentError(apperrors.StoreCalendar, "list"))

	res, err := h.rec.ReconcileEvent(context.Background(), diagnostic(t))
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreated, res.Action)
	assert.False(t, res.Adopted)
}

func TestReconcileEvent_RetriesTransientFailures(t *testing.T) {
	h := newHarness(t)
	h.cal.FailNext("create", testhelpers.TransientError(apperrors.StoreCalendar, "create"))
	h.events.FailNext("create",
		testhelpers.TransientError(apperrors.StoreRelational, "create"),
		testhelpers.TransientError(apperrors.StoreRelational, "create"))

	res, err := h.rec.ReconcileEvent(context.Background(), diagnostic(t))
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreated, res.Action)
	assert.Equal(t, 2, h.cal.Calls("create"))
	assert.Equal(t, 3, h.events.Calls("create"))
	assert.Len(t, h.events.All(), 1)
}

func TestReconcileEvent_RetriesPerCallCalendarTimeout(t *testing.T) {
	h := newHarness(t)
	h.cal.FailNext("create", &apperrors.StoreError{
		Store:     apperrors.StoreCalendar,
		Op:        "create",
		Retryable: true,
		Err:       fmt.Errorf("insert event: %w", context.DeadlineExceeded),
	})

	res, err := h.rec.ReconcileEvent(context.Background(), diagnostic(t))
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreated, res.Action)
	assert.Equal(t, 2, h.cal.Calls("create"))
	assert.Len(t, h.cal.Entries(), 1)
}

func TestReconcileEvent_CalendarUnavailableWritesNothing(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.cal.FailNext("create", testhelpers.TransientError(apperrors.StoreCalendar, "create"))
	}

	_, err := h.rec.ReconcileEvent(context.Background(), diagnostic(t))
	require.Error(t, err)

	rec := reconcileErr(t, err)
	assert.Equal(t, apperrors.CodeStoreUnavailable, rec.Code)
	assert.Equal(t, apperrors.StoreCalendar, rec.Store)
	assert.False(t, rec.OtherCommitted)
	assert.Equal(t, 3, h.cal.Calls("create"), "bounded by the retry budget")
	assert.Empty(t, h.events.All())
	assert.Equal(t, 0, h.events.Calls("create"))
}

func TestReconcileEvent_CalendarRejectionWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.cal.FailNext("create", testhelpers.PermanentError(apperrors.StoreCalendar, "create"))

	_, err := h.rec.ReconcileEvent(context.Background(), diagnostic(t))
	rec := reconcileErr(t, err)
	assert.Equal(t, apperrors.CodeStoreRejected, rec.Code)
	assert.Equal(t, 1, h.cal.Calls("create"))
	assert.Empty(t, h.events.All())
}

func TestReconcileEvent_RelationalFailureNamesCalendarEntry(t *testing.T) {
	h := newHarness(t)
	h.events.FailNext("create", testhelpers.PermanentError(apperrors.StoreRelational, "create"))

	ev := diagnostic(t)
	_, err := h.rec.ReconcileEvent(context.Background(), ev)
	rec := reconcileErr(t, err)

	assert.Equal(t, apperrors.CodePartialReconciliation, rec.Code)
	assert.Equal(t, apperrors.StoreRelational, rec.Store)
	assert.True(t, rec.OtherCommitted)
	assert.Equal(t, DeterministicEventID(ev.Summary, ev.Start, ev.End), rec.CalendarEventID)

	entries := h.cal.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, rec.CalendarEventID, entries[0].ID)

	detail := DescribeError(err)
	assert.Equal(t, apperrors.CodePartialReconciliation, detail.Code)
	assert.Equal(t, rec.CalendarEventID, detail.CalendarEventID)
}

func TestReconcileEvent_RetryAfterPartialCompletesTheRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.events.FailNext("create", testhelpers.PermanentError(apperrors.StoreRelational, "create"))

	_, err := h.rec.ReconcileEvent(ctx, diagnostic(t))
	require.Error(t, err)

	res, err := h.rec.ReconcileEvent(ctx, diagnostic(t))
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreated, res.Action)
	assert.False(t, res.CalendarWritten)
	assert.Len(t, h.cal.Entries(), 1)
	assert.Len(t, h.events.All(), 1)
}

func TestReconcileEvent_UnknownLocalIDIsNotFound(t *testing.T) {
	h := newHarness(t)
	ev := diagnostic(t)
	ev.EventID = "local_missing"

	_, err := h.rec.ReconcileEvent(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Empty(t, h.cal.Entries())
}

func TestReconcileEvent_LocalRowSkipsCalendar(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := diagnostic(t)
	h.events.Put(models.CalendarEvent{
		EventID: "local_1", Summary: ev.Summary, Start: ev.Start, End: ev.End,
		Source: models.EventSourceLocal, Timezone: ev.Timezone, Status: ev.Status,
	})

	ev.EventID = "local_1"
	ev.Description = "Notas"
	res, err := h.rec.ReconcileEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, models.ActionUpdated, res.Action)
	assert.False(t, res.CalendarWritten)
	assert.Empty(t, h.cal.Entries())

	row, err := h.events.FindByEventID(ctx, "local_1")
	require.NoError(t, err)
	assert.Equal(t, "Notas", row.Description)
}

// ============================================================================
// Delete and local sync
// ============================================================================

func TestDeleteEvent_RemovesFromBothStores(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.rec.ReconcileEvent(ctx, diagnostic(t))
	require.NoError(t, err)

	res, err := h.rec.DeleteEvent(ctx, created.EventID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionDeleted, res.Action)
	assert.True(t, res.CalendarWritten)
	assert.True(t, res.RelationalWritten)
	assert.Empty(t, h.cal.Entries())
	assert.Empty(t, h.events.All())

	_, err = h.rec.DeleteEvent(ctx, created.EventID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, DescribeError(err).Code)
}

func TestDeleteEvent_CalendarOnlyEntry(t *testing.T) {
	h := newHarness(t)
	ev := diagnostic(t)
	h.cal.Put(models.CalendarEntry{ID: "orphan", Summary: ev.Summary, Start: ev.Start, End: ev.End})

	res, err := h.rec.DeleteEvent(context.Background(), "orphan")
	require.NoError(t, err)
	assert.True(t, res.CalendarWritten)
	assert.False(t, res.RelationalWritten)
}

func TestDeleteEvent_LocalRowSkipsCalendar(t *testing.T) {
	h := newHarness(t)
	ev := diagnostic(t)
	h.events.Put(models.CalendarEvent{EventID: "local_9", Summary: ev.Summary, Start: ev.Start, End: ev.End})

	res, err := h.rec.DeleteEvent(context.Background(), "local_9")
	require.NoError(t, err)
	assert.True(t, res.RelationalWritten)
	assert.Equal(t, 0, h.cal.Calls("delete"))
}

func TestDeleteEvent_RelationalFailureAfterCalendarIsPartial(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.rec.ReconcileEvent(ctx, diagnostic(t))
	require.NoError(t, err)

	h.events.FailNext("delete", testhelpers.PermanentError(apperrors.StoreRelational, "delete"))
	_, err = h.rec.DeleteEvent(ctx, created.EventID)
	rec := reconcileErr(t, err)
	assert.Equal(t, apperrors.CodePartialReconciliation, rec.Code)
	assert.Equal(t, created.EventID, rec.CalendarEventID)
}

func TestSyncLocalEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := diagnostic(t)
	local := models.CalendarEvent{
		Summary: ev.Summary, Start: ev.Start, End: ev.End,
		Source: models.EventSourceLocal, Timezone: ev.Timezone, Status: ev.Status,
	}
	first, dup := local, local
	first.EventID = "local_a"
	dup.EventID = "local_b"
	h.events.Put(first)
	h.events.Put(dup)

	other := local
	other.EventID = "local_c"
	other.Summary = "Demo"
	other.Start = ev.Start.AddDate(0, 0, 1)
	other.End = ev.End.AddDate(0, 0, 1)
	h.events.Put(other)

	results, err := h.rec.SyncLocalEvents(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)

	want := DeterministicEventID(ev.Summary, ev.Start, ev.End)
	assert.Equal(t, LocalSyncSynced, results[0].Status)
	assert.Equal(t, "local_a", results[0].OldEventID)
	assert.Equal(t, want, results[0].NewEventID)
	assert.Equal(t, LocalSyncAlreadySynced, results[1].Status)
	assert.Equal(t, "local_b", results[1].OldEventID)
	assert.Equal(t, LocalSyncSynced, results[2].Status)

	rows := h.events.All()
	require.Len(t, rows, 2)
	assert.Equal(t, want, rows[0].EventID)
	assert.Equal(t, models.EventSourceSynced, rows[0].Source)
	assert.Equal(t, "primary", rows[0].CalendarID)
	assert.Len(t, h.cal.Entries(), 2)

	again, err := h.rec.SyncLocalEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

// countingTx runs fn directly and counts the transactions opened.
type countingTx struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return fn(ctx)
}

func TestSyncLocalEvents_MovesEachRowInOneTransaction(t *testing.T) {
	h := newHarness(t)
	tx := &countingTx{}
	h.rec = NewReconciler(h.cal, h.events, h.clients, ReconcilerConfig{
		Retry:         fastRetry(),
		MaxConcurrent: 1,
		Transactor:    tx,
	}, zap.NewNop())

	ev := diagnostic(t)
	for _, id := range []string{"local_a", "local_b"} {
		h.events.Put(models.CalendarEvent{
			EventID: id, Summary: ev.Summary, Start: ev.Start, End: ev.End,
			Source: models.EventSourceLocal, Timezone: ev.Timezone, Status: ev.Status,
		})
	}

	results, err := h.rec.SyncLocalEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, LocalSyncSynced, results[0].Status)
	assert.Equal(t, LocalSyncAlreadySynced, results[1].Status)
	assert.Equal(t, 2, tx.calls)
	assert.Equal(t, 0, h.cal.Calls("update"), "the second row finds the entry unchanged")
	assert.Len(t, h.events.All(), 1)
}

func TestSyncLocalEvents_ReportsFailuresPerRow(t *testing.T) {
	h := newHarness(t)
	ev := diagnostic(t)
	h.events.Put(models.CalendarEvent{EventID: "local_x", Summary: ev.Summary, Start: ev.Start, End: ev.End, Timezone: ev.Timezone})
	h.cal.FailNext("create", testhelpers.PermanentError(apperrors.StoreCalendar, "create"))

	results, err := h.rec.SyncLocalEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, LocalSyncFailed, results[0].Status)
	assert.NotEmpty(t, results[0].Error)

	row, err := h.events.FindByEventID(context.Background(), "local_x")
	require.NoError(t, err)
	assert.True(t, row.IsLocal())
}

// ============================================================================
// Clients
// ============================================================================

func TestReconcileClient_DeduplicatesHonorificsAndAccents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.rec.ReconcileClient(ctx, &models.ValidatedClient{CompanyName: "RetailMax", PersonName: "Lic. Sofía Galindo"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreated, first.Action)

	second, err := h.rec.ReconcileClient(ctx, &models.ValidatedClient{CompanyName: "retailmax", PersonName: "Sofia Galindo"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionNoop, second.Action)
	assert.Equal(t, *first.ClientID, *second.ClientID)

	third, err := h.rec.ReconcileClient(ctx, &models.ValidatedClient{CompanyName: "RetailMax", PersonName: "Sofía Galindo", Email: "sofia@retailmax.mx"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionUpdated, third.Action)

	all := h.clients.All()
	require.Len(t, all, 1)
	assert.Equal(t, "Lic. Sofía Galindo", all[0].PersonName, "first-written name kept")
	assert.Equal(t, "sofia@retailmax.mx", all[0].Email)
}

func TestReconcileClient_CompanyRowGainsPerson(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.addClient(t, "Tecnoflex Manufacturing", "")

	res, err := h.rec.ReconcileClient(ctx, &models.ValidatedClient{CompanyName: "Tecnoflex Manufacturing", PersonName: "Ing. Pérez"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionUpdated, res.Action)
	assert.Equal(t, id, *res.ClientID)

	// A second contact at the same company is a new client.
	res, err = h.rec.ReconcileClient(ctx, &models.ValidatedClient{CompanyName: "Tecnoflex Manufacturing", PersonName: "Ana López"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreated, res.Action)
	assert.Len(t, h.clients.All(), 2)
}

func TestReconcileClient_CompanyMentionReusesOnlyContact(t *testing.T) {
	h := newHarness(t)
	id := h.addClient(t, "RetailMax", "Sofía Galindo")

	res, err := h.rec.ReconcileClient(context.Background(), &models.ValidatedClient{CompanyName: "RetailMax"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionNoop, res.Action)
	assert.Equal(t, id, *res.ClientID)
}

func TestReconcileClient_ReactivatesInactiveClient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.addClient(t, "RetailMax", "Sofía Galindo")
	require.NoError(t, h.clients.Deactivate(ctx, id))

	res, err := h.rec.ReconcileClient(ctx, &models.ValidatedClient{CompanyName: "RetailMax", PersonName: "Sofía Galindo"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionUpdated, res.Action)

	c, err := h.clients.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, c.Active)
}

func TestReconcileClient_ConcurrentMentionsCreateOneRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.rec.ReconcileClient(ctx, &models.ValidatedClient{CompanyName: "RetailMax", PersonName: "Sofía Galindo"})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, h.clients.All(), 1)
}

func TestReconcileClient_StoreUnavailable(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.clients.FailNext("find", testhelpers.TransientError(apperrors.StoreRelational, "find"))
	}

	_, err := h.rec.ReconcileClient(context.Background(), &models.ValidatedClient{CompanyName: "RetailMax"})
	rec := reconcileErr(t, err)
	assert.Equal(t, apperrors.CodeStoreUnavailable, rec.Code)
	assert.Empty(t, h.clients.All())
}

// ============================================================================
// Batches
// ============================================================================

func TestReconcileAll_ClientsBeforeEvents(t *testing.T) {
	h := newHarness(t)
	ev := diagnostic(t)

	records := []models.ValidatedRecord{
		{Kind: models.CandidateEvent, Event: ev},
		{Kind: models.CandidateClient, Client: &models.ValidatedClient{CompanyName: "Tecnoflex Manufacturing"}},
		{Kind: models.CandidateEvent},
	}
	out := h.rec.ReconcileAll(context.Background(), records)
	require.Len(t, out, 3)

	require.NoError(t, out[1].Err)
	clientID := out[1].Result.ClientID
	require.NotNil(t, clientID)

	require.NoError(t, out[0].Err)
	require.NotNil(t, out[0].Result.ClientID, "event linked to the client reconciled in the same batch")
	assert.Equal(t, *clientID, *out[0].Result.ClientID)
	assert.Same(t, ev, out[0].Record.Event)

	require.Error(t, out[2].Err)
	assert.ErrorIs(t, out[2].Err, apperrors.ErrInvalidInput)
}

func TestReconcileAll_IndependentFailures(t *testing.T) {
	h := newHarness(t)
	other := diagnostic(t)
	other.Summary = "Demo"
	h.events.FailNext("create", testhelpers.PermanentError(apperrors.StoreRelational, "create"))

	out := h.rec.ReconcileAll(context.Background(), []models.ValidatedRecord{
		{Kind: models.CandidateEvent, Event: diagnostic(t)},
		{Kind: models.CandidateEvent, Event: other},
	})
	require.Len(t, out, 2)

	failed := 0
	for _, o := range out {
		if o.Err != nil {
			failed++
			assert.Equal(t, apperrors.CodePartialReconciliation, DescribeError(o.Err).Code)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Len(t, h.events.All(), 1)
	assert.Len(t, h.cal.Entries(), 2)
}
