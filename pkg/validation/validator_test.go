package validation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

func mx(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	return loc
}

func ptr[T any](v T) *T { return &v }

func validEvent(t *testing.T) *models.EventCandidate {
	start := time.Date(2025, 11, 25, 9, 30, 0, 0, mx(t))
	return &models.EventCandidate{
		Summary:     "Diagnóstico",
		Start:       ptr(start),
		End:         ptr(start.Add(90 * time.Minute)),
		Timezone:    "America/Mexico_City",
		CompanyName: "Tecnoflex Manufacturing",
	}
}

func knownClients() []models.Client {
	return []models.Client{
		{ID: 1, CompanyName: "RetailMax", PersonName: "Lic. Sofía Galindo", Active: true},
		{ID: 2, CompanyName: "RetailMax", PersonName: "Carlos Ruiz", Active: true},
		{ID: 3, CompanyName: "Tecnoflex Manufacturing", PersonName: "Juan Pérez", Active: true},
		{ID: 4, CompanyName: "Acme Corp", PersonName: "Juan Pérez", Active: true},
		{ID: 5, CompanyName: "Grupo Bimbo", Active: true},
		{ID: 6, CompanyName: "Grupo Bimbo", PersonName: "Ana Torres", Active: true},
		{ID: 7, CompanyName: "Grupo Bimbo", PersonName: "Luis Gómez", Active: true},
		{ID: 8, CompanyName: "Dormant SA", PersonName: "Ex Uno", Active: false},
		{ID: 9, CompanyName: "Dormant SA", PersonName: "Ex Dos", Active: false},
	}
}

func requireRejection(t *testing.T, err error, code Reason, field string) {
	t.Helper()
	require.Error(t, err)
	r, ok := AsRejection(err)
	require.True(t, ok, "expected *Rejection, got %T", err)
	assert.Equal(t, code, r.Code)
	assert.Equal(t, field, r.Field)
}

func TestValidateEvent_Valid(t *testing.T) {
	v := New("America/Mexico_City", knownClients())

	ev, err := v.ValidateEvent(validEvent(t))
	require.NoError(t, err)
	assert.Equal(t, "Diagnóstico", ev.Summary)
	assert.Equal(t, models.EventStatusConfirmed, ev.Status)
	assert.Equal(t, "America/Mexico_City", ev.Location.String())
	assert.Equal(t, "2025-11-25T09:30:00-06:00", ev.Start.Format(time.RFC3339))
	assert.Equal(t, "2025-11-25T11:00:00-06:00", ev.End.Format(time.RFC3339))
}

func TestValidateEvent_ConvertsToEventTimezone(t *testing.T) {
	v := New("America/Mexico_City", nil)
	in := validEvent(t)
	utc := in.Start.UTC()
	in.Start = &utc

	ev, err := v.ValidateEvent(in)
	require.NoError(t, err)
	assert.Equal(t, "2025-11-25T09:30:00-06:00", ev.Start.Format(time.RFC3339))
}

func TestValidateEvent_DefaultTimezone(t *testing.T) {
	v := New("America/Mexico_City", nil)
	in := validEvent(t)
	in.Timezone = ""

	ev, err := v.ValidateEvent(in)
	require.NoError(t, err)
	assert.Equal(t, "America/Mexico_City", ev.Timezone)
}

func TestValidateEvent_Rejections(t *testing.T) {
	v := New("America/Mexico_City", knownClients())

	tests := []struct {
		name   string
		mutate func(*models.EventCandidate)
		code   Reason
		field  string
	}{
		{"blank summary", func(e *models.EventCandidate) { e.Summary = "  " }, ReasonMissingRequiredField, "summary"},
		{"no start", func(e *models.EventCandidate) { e.Start = nil }, ReasonMissingRequiredField, "start"},
		{"no end", func(e *models.EventCandidate) { e.End = nil }, ReasonMissingRequiredField, "end"},
		{"end before start", func(e *models.EventCandidate) { e.End = ptr(e.Start.Add(-time.Hour)) }, ReasonInvalidTimeRange, "end"},
		{"end equals start", func(e *models.EventCandidate) { e.End = ptr(*e.Start) }, ReasonInvalidTimeRange, "end"},
		{"unknown timezone", func(e *models.EventCandidate) { e.Timezone = "Mars/Olympus_Mons" }, ReasonUnresolvedTimezone, "timezone"},
		{"unknown status", func(e *models.EventCandidate) { e.Status = "maybe" }, ReasonMissingRequiredField, "status"},
		{"person shared by two clients", func(e *models.EventCandidate) {
			e.CompanyName = ""
			e.PersonName = "Ing. Juan Pérez"
		}, ReasonAmbiguousClientReference, "person_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validEvent(t)
			tt.mutate(in)
			_, err := v.ValidateEvent(in)
			requireRejection(t, err, tt.code, tt.field)
		})
	}
}

func TestValidateEvent_PersonResolvedByClientID(t *testing.T) {
	v := New("America/Mexico_City", knownClients())
	in := validEvent(t)
	in.CompanyName = ""
	in.PersonName = "Juan Pérez"
	in.ClientID = ptr(int64(3))

	ev, err := v.ValidateEvent(in)
	require.NoError(t, err)
	assert.Equal(t, int64(3), *ev.ClientID)
}

func TestValidateEvent_CompanyOnlyIsNotRejected(t *testing.T) {
	v := New("America/Mexico_City", knownClients())
	in := validEvent(t)
	in.CompanyName = "RetailMax"

	_, err := v.ValidateEvent(in)
	assert.NoError(t, err)
}

func TestValidateClient(t *testing.T) {
	v := New("America/Mexico_City", knownClients())

	tests := []struct {
		name   string
		in     models.ClientCandidate
		code   Reason
		field  string
		wantOK bool
	}{
		{name: "new company", in: models.ClientCandidate{CompanyName: "Nueva Empresa"}, wantOK: true},
		{name: "company with person", in: models.ClientCandidate{CompanyName: "RetailMax", PersonName: "Lic. Sofía Galindo"}, wantOK: true},
		{name: "company with one contact", in: models.ClientCandidate{CompanyName: "Tecnoflex Manufacturing"}, wantOK: true},
		{name: "company row exists", in: models.ClientCandidate{CompanyName: "grupo bimbo"}, wantOK: true},
		{name: "inactive contacts do not count", in: models.ClientCandidate{CompanyName: "Dormant SA"}, wantOK: true},
		{name: "company with several contacts", in: models.ClientCandidate{CompanyName: "RetailMax"}, code: ReasonAmbiguousClientReference, field: "person_name"},
		{name: "no company", in: models.ClientCandidate{PersonName: "Juan Pérez"}, code: ReasonMissingRequiredField, field: "company_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.ValidateClient(&tt.in)
			if tt.wantOK {
				require.NoError(t, err)
				assert.Equal(t, tt.in.CompanyName, got.CompanyName)
				return
			}
			requireRejection(t, err, tt.code, tt.field)
		})
	}
}

func TestValidate_Tagged(t *testing.T) {
	v := New("UTC", nil)

	rec, err := v.Validate(models.Candidate{Kind: models.CandidateEvent, Event: validEvent(t)})
	require.NoError(t, err)
	assert.Equal(t, models.CandidateEvent, rec.Kind)
	assert.NotNil(t, rec.Event)
	assert.Nil(t, rec.Client)

	rec, err = v.Validate(models.Candidate{Kind: models.CandidateClient, Client: &models.ClientCandidate{CompanyName: "RetailMax"}})
	require.NoError(t, err)
	assert.Equal(t, models.CandidateClient, rec.Kind)
	assert.NotNil(t, rec.Client)

	_, err = v.Validate(models.Candidate{Kind: models.CandidateEvent})
	requireRejection(t, err, ReasonMissingRequiredField, "event")

	_, err = v.Validate(models.Candidate{Kind: "product"})
	requireRejection(t, err, ReasonMissingRequiredField, "kind")
}

func TestAsRejection_Wrapped(t *testing.T) {
	err := fmt.Errorf("candidate 3: %w", &Rejection{Code: ReasonInvalidTimeRange, Message: "x"})
	r, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonInvalidTimeRange, r.Code)
	assert.Contains(t, err.Error(), "invalid_time_range")
}
