package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
	"github.com/ekaya-inc/agenda-sync/pkg/repositories"
	"github.com/ekaya-inc/agenda-sync/pkg/validation"
)

// AgendaService exposes single-record operations on events and clients to
// the tool surface. Every write is validated before it reaches the
// reconciler.
type AgendaService interface {
	ScheduleEvent(ctx context.Context, ev *models.EventCandidate) (*models.ReconcileResult, error)
	UpdateEvent(ctx context.Context, eventID string, patch models.EventPatch) (*models.ReconcileResult, error)
	CancelEvent(ctx context.Context, eventID string) (*models.ReconcileResult, error)
	ListEvents(ctx context.Context, filter models.EventFilter) ([]*models.CalendarEvent, error)
	SyncLocal(ctx context.Context) ([]models.LocalSyncResult, error)

	UpsertClient(ctx context.Context, c *models.ClientCandidate) (*models.ReconcileResult, error)
	ListClients(ctx context.Context, filter models.ClientFilter) ([]*models.Client, error)
}

type agendaService struct {
	reconciler      Reconciler
	events          repositories.EventRepository
	clients         repositories.ClientRepository
	defaultTimezone string
	logger          *zap.Logger
}

var _ AgendaService = (*agendaService)(nil)

// NewAgendaService creates an AgendaService.
func NewAgendaService(
	reconciler Reconciler,
	events repositories.EventRepository,
	clients repositories.ClientRepository,
	defaultTimezone string,
	logger *zap.Logger,
) AgendaService {
	return &agendaService{
		reconciler:      reconciler,
		events:          events,
		clients:         clients,
		defaultTimezone: defaultTimezone,
		logger:          logger.Named("agenda"),
	}
}

// validator snapshots the active clients for ambiguity checks.
func (s *agendaService) validator(ctx context.Context) (*validation.Validator, error) {
	known, err := s.clients.List(ctx, models.ClientFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load known clients: %w", err)
	}
	snapshot := make([]models.Client, len(known))
	for i, c := range known {
		snapshot[i] = *c
	}
	return validation.New(s.defaultTimezone, snapshot), nil
}

func (s *agendaService) ScheduleEvent(ctx context.Context, ev *models.EventCandidate) (*models.ReconcileResult, error) {
	v, err := s.validator(ctx)
	if err != nil {
		return nil, err
	}
	validated, err := v.ValidateEvent(ev)
	if err != nil {
		s.logger.Info("Event rejected",
			zap.String("summary", ev.Summary),
			zap.Error(err))
		return nil, err
	}
	return s.reconciler.ReconcileEvent(ctx, validated)
}

// UpdateEvent applies patch over the stored row and reconciles the result.
// Fields absent from the patch keep their stored values, including the
// client linkage.
func (s *agendaService) UpdateEvent(ctx context.Context, eventID string, patch models.EventPatch) (*models.ReconcileResult, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("event_id is required: %w", apperrors.ErrInvalidInput)
	}

	row, err := s.events.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", eventID, err)
	}

	ev := candidateFromRow(row)
	applyPatch(ev, patch)

	// A moved event whose new window has no explicit end keeps its duration.
	if patch.Start != nil && patch.End == nil {
		end := patch.Start.Add(row.End.Sub(row.Start))
		ev.End = &end
	}

	v, err := s.validator(ctx)
	if err != nil {
		return nil, err
	}
	validated, err := v.ValidateEvent(ev)
	if err != nil {
		return nil, err
	}
	return s.reconciler.ReconcileEvent(ctx, validated)
}

func (s *agendaService) CancelEvent(ctx context.Context, eventID string) (*models.ReconcileResult, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("event_id is required: %w", apperrors.ErrInvalidInput)
	}
	return s.reconciler.DeleteEvent(ctx, eventID)
}

func (s *agendaService) ListEvents(ctx context.Context, filter models.EventFilter) ([]*models.CalendarEvent, error) {
	if filter.TimeMin != nil && filter.TimeMax != nil && filter.TimeMax.Before(*filter.TimeMin) {
		return nil, fmt.Errorf("time_max is before time_min: %w", apperrors.ErrInvalidInput)
	}
	return s.events.List(ctx, filter)
}

func (s *agendaService) SyncLocal(ctx context.Context) ([]models.LocalSyncResult, error) {
	return s.reconciler.SyncLocalEvents(ctx)
}

func (s *agendaService) UpsertClient(ctx context.Context, c *models.ClientCandidate) (*models.ReconcileResult, error) {
	v, err := s.validator(ctx)
	if err != nil {
		return nil, err
	}
	validated, err := v.ValidateClient(c)
	if err != nil {
		return nil, err
	}
	return s.reconciler.ReconcileClient(ctx, validated)
}

func (s *agendaService) ListClients(ctx context.Context, filter models.ClientFilter) ([]*models.Client, error) {
	return s.clients.List(ctx, filter)
}

func candidateFromRow(row *models.CalendarEvent) *models.EventCandidate {
	start, end := row.Start, row.End
	return &models.EventCandidate{
		EventID:     row.EventID,
		Summary:     row.Summary,
		Start:       &start,
		End:         &end,
		Timezone:    row.Timezone,
		Description: row.Description,
		CompanyName: row.CompanyName,
		PersonName:  row.PersonName,
		Status:      row.Status,
		ClientID:    row.ClientID,
		Source:      row.Source,
	}
}

func applyPatch(ev *models.EventCandidate, p models.EventPatch) {
	if p.Summary != nil {
		ev.Summary = *p.Summary
	}
	if p.Start != nil {
		ev.Start = p.Start
	}
	if p.End != nil {
		ev.End = p.End
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.CompanyName != nil {
		ev.CompanyName = *p.CompanyName
	}
	if p.PersonName != nil {
		ev.PersonName = *p.PersonName
	}
	if p.Timezone != nil {
		ev.Timezone = *p.Timezone
	}
	if p.Status != nil {
		ev.Status = *p.Status
	}
	if p.ClientID != nil {
		ev.ClientID = p.ClientID
	}
}
