//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/database"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
	"github.com/ekaya-inc/agenda-sync/pkg/testhelpers"
)

type eventTestContext struct {
	t       *testing.T
	db      *database.DB
	repo    EventRepository
	clients ClientRepository
	loc     *time.Location
}

func setupEventTest(t *testing.T) *eventTestContext {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)
	testDB.Truncate(t, "client_products", "calendar_events", "clients")

	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	return &eventTestContext{
		t:       t,
		db:      testDB.DB,
		repo:    NewEventRepository(testDB.DB),
		clients: NewClientRepository(testDB.DB),
		loc:     loc,
	}
}

func (tc *eventTestContext) event(id, summary string, day, hour int) *models.CalendarEvent {
	start := time.Date(2025, 11, day, hour, 0, 0, 0, tc.loc)
	return &models.CalendarEvent{
		EventID:     id,
		Summary:     summary,
		Start:       start,
		End:         start.Add(time.Hour),
		CompanyName: "Acme Corp",
		Source:      models.EventSourceSynced,
		CalendarID:  "primary",
		Timezone:    "America/Mexico_City",
		Status:      models.EventStatusConfirmed,
	}
}

func TestEventRepository_CreateFindUpdate(t *testing.T) {
	tc := setupEventTest(t)
	ctx := context.Background()

	client := &models.Client{CompanyName: "Acme Corp", Active: true}
	require.NoError(t, tc.clients.Create(ctx, client))

	ev := tc.event("evabc", "Diagnóstico - Acme Corp", 25, 9)
	ev.ClientID = &client.ID
	require.NoError(t, tc.repo.Create(ctx, ev))

	found, err := tc.repo.FindByEventID(ctx, "evabc")
	require.NoError(t, err)
	assert.Equal(t, "Diagnóstico - Acme Corp", found.Summary)
	assert.Equal(t, "2025-11-25T09:00:00-06:00", found.Start.Format(time.RFC3339))
	require.NotNil(t, found.ClientID)
	assert.Equal(t, client.ID, *found.ClientID)

	// Update without a client keeps the stored linkage.
	found.ClientID = nil
	found.Description = "Agenda revisada"
	require.NoError(t, tc.repo.Update(ctx, found))
	require.NotNil(t, found.ClientID)
	assert.Equal(t, client.ID, *found.ClientID)

	again, err := tc.repo.FindByEventID(ctx, "evabc")
	require.NoError(t, err)
	assert.Equal(t, "Agenda revisada", again.Description)
	require.NotNil(t, again.ClientID)

	_, err = tc.repo.FindByEventID(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestEventRepository_DuplicateEventIDConflicts(t *testing.T) {
	tc := setupEventTest(t)
	ctx := context.Background()

	require.NoError(t, tc.repo.Create(ctx, tc.event("evdup", "Demo", 26, 10)))
	err := tc.repo.Create(ctx, tc.event("evdup", "Demo", 26, 10))
	assert.True(t, apperrors.IsConflict(err))
}

func TestEventRepository_RejectsInvertedRange(t *testing.T) {
	tc := setupEventTest(t)
	ev := tc.event("evbad", "Demo", 26, 10)
	ev.End = ev.Start.Add(-time.Hour)

	err := tc.repo.Create(context.Background(), ev)
	require.Error(t, err)
	assert.False(t, apperrors.IsConflict(err))
	assert.False(t, apperrors.IsTransient(err))
}

func TestEventRepository_ListFilters(t *testing.T) {
	tc := setupEventTest(t)
	ctx := context.Background()

	require.NoError(t, tc.repo.Create(ctx, tc.event("ev1", "Diagnóstico", 25, 9)))
	require.NoError(t, tc.repo.Create(ctx, tc.event("ev2", "Demo de producto", 26, 10)))
	other := tc.event("ev3", "Seguimiento", 27, 12)
	other.CompanyName = "Grupo Bimbo"
	require.NoError(t, tc.repo.Create(ctx, other))

	all, err := tc.repo.List(ctx, models.EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ev1", all[0].EventID)

	from := time.Date(2025, 11, 26, 0, 0, 0, 0, tc.loc)
	ranged, err := tc.repo.List(ctx, models.EventFilter{TimeMin: &from})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	bimbo, err := tc.repo.List(ctx, models.EventFilter{CompanyContains: "bimbo"})
	require.NoError(t, err)
	require.Len(t, bimbo, 1)
	assert.Equal(t, "ev3", bimbo[0].EventID)

	demo, err := tc.repo.List(ctx, models.EventFilter{SummaryContains: "DEMO"})
	require.NoError(t, err)
	assert.Len(t, demo, 1)

	limited, err := tc.repo.List(ctx, models.EventFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestEventRepository_LocalRowsAndRewrite(t *testing.T) {
	tc := setupEventTest(t)
	ctx := context.Background()

	local := tc.event("local_0001", "Pendiente", 25, 9)
	local.Source = models.EventSourceLocal
	require.NoError(t, tc.repo.Create(ctx, local))
	require.NoError(t, tc.repo.Create(ctx, tc.event("localish", "No local", 25, 11)))

	rows, err := tc.repo.ListLocal(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsLocal())

	require.NoError(t, tc.repo.RewriteEventID(ctx, "local_0001", "evsynced", "primary"))
	synced, err := tc.repo.FindByEventID(ctx, "evsynced")
	require.NoError(t, err)
	assert.Equal(t, models.EventSourceSynced, synced.Source)

	rows, err = tc.repo.ListLocal(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, tc.repo.Delete(ctx, "evsynced"))
	assert.True(t, apperrors.IsNotFound(tc.repo.Delete(ctx, "evsynced")))
}

func TestEventRepository_TransactionRollsBack(t *testing.T) {
	tc := setupEventTest(t)
	ctx := context.Background()

	err := tc.db.InTx(ctx, func(ctx context.Context) error {
		if err := tc.repo.Create(ctx, tc.event("evtx", "Demo", 26, 10)); err != nil {
			return err
		}
		return tc.repo.Create(ctx, tc.event("evtx", "Demo", 26, 10))
	})
	require.Error(t, err)

	_, err = tc.repo.FindByEventID(ctx, "evtx")
	assert.True(t, apperrors.IsNotFound(err))
}
