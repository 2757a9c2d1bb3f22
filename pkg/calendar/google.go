package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/config"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

const listPageSize = 250

// Google is a Store backed by Google Calendar.
type Google struct {
	svc        *gcal.Service
	calendarID string
	timeout    time.Duration
	logger     *zap.Logger
}

var _ Store = (*Google)(nil)

// NewGoogle builds a Google Calendar store. Without explicit client options
// credentials are read from cfg.CredentialsFile: a service-account key, or an
// OAuth client secret paired with the token stored in cfg.TokenFile.
func NewGoogle(ctx context.Context, cfg config.CalendarConfig, logger *zap.Logger, opts ...option.ClientOption) (*Google, error) {
	if len(opts) == 0 {
		ts, err := tokenSource(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithTokenSource(ts))
	}

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Google{
		svc:        svc,
		calendarID: calendarID,
		timeout:    cfg.Timeout,
		logger:     logger.Named("calendar"),
	}, nil
}

func tokenSource(ctx context.Context, cfg config.CalendarConfig) (oauth2.TokenSource, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar credentials: %w", err)
	}

	var kind struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &kind); err != nil {
		return nil, fmt.Errorf("failed to parse calendar credentials: %w", err)
	}

	if kind.Type == "service_account" {
		jwtCfg, err := google.JWTConfigFromJSON(data, gcal.CalendarScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse service account key: %w", err)
		}
		return jwtCfg.TokenSource(ctx), nil
	}

	oauthCfg, err := google.ConfigFromJSON(data, gcal.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OAuth client secret: %w", err)
	}
	if cfg.TokenFile == "" {
		return nil, fmt.Errorf("calendar token_file is required with an OAuth client secret")
	}
	raw, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar token: %w", err)
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(raw, tok); err != nil {
		return nil, fmt.Errorf("failed to parse calendar token: %w", err)
	}
	return oauthCfg.TokenSource(ctx, tok), nil
}

func (g *Google) CalendarID() string {
	return g.calendarID
}

func (g *Google) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *Google) Find(ctx context.Context, eventID string) (*models.CalendarEntry, error) {
	entry, err := g.get(ctx, "find", eventID)
	if err != nil {
		return nil, err
	}
	if entry.Status == models.EventStatusCancelled {
		// Deleted events stay readable by ID with status cancelled.
		return nil, classify("find", fmt.Errorf("event %s: %w", eventID, apperrors.ErrNotFound))
	}
	return entry, nil
}

func (g *Google) Get(ctx context.Context, eventID string) (*models.CalendarEntry, error) {
	return g.get(ctx, "get", eventID)
}

func (g *Google) get(ctx context.Context, op, eventID string) (*models.CalendarEntry, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	ev, err := g.svc.Events.Get(g.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, classify(op, err)
	}
	return g.fromGoogle(ev)
}

func (g *Google) Create(ctx context.Context, entry *models.CalendarEntry) (*models.CalendarEntry, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	ev := toGoogle(entry)
	ev.Id = entry.ID
	created, err := g.svc.Events.Insert(g.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return nil, classify("create", err)
	}
	g.logger.Debug("Created calendar event",
		zap.String("event_id", created.Id),
		zap.String("calendar_id", g.calendarID))
	return g.fromGoogle(created)
}

func (g *Google) Update(ctx context.Context, entry *models.CalendarEntry) (*models.CalendarEntry, error) {
	if entry.ID == "" {
		return nil, fmt.Errorf("calendar update: event id is required")
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	updated, err := g.svc.Events.Update(g.calendarID, entry.ID, toGoogle(entry)).Context(ctx).Do()
	if err != nil {
		return nil, classify("update", err)
	}
	return g.fromGoogle(updated)
}

func (g *Google) Delete(ctx context.Context, eventID string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if err := g.svc.Events.Delete(g.calendarID, eventID).Context(ctx).Do(); err != nil {
		return classify("delete", err)
	}
	return nil
}

func (g *Google) List(ctx context.Context, timeMin, timeMax time.Time) ([]models.CalendarEntry, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	var out []models.CalendarEntry
	call := g.svc.Events.List(g.calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(listPageSize)

	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			entry, err := g.fromGoogle(item)
			if err != nil {
				g.logger.Warn("Skipping unreadable calendar event",
					zap.String("event_id", item.Id),
					zap.Error(err))
				continue
			}
			out = append(out, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, classify("list", err)
	}
	return out, nil
}

func toGoogle(entry *models.CalendarEntry) *gcal.Event {
	ev := &gcal.Event{
		Summary:     entry.Summary,
		Description: entry.Description,
		Status:      entry.Status,
		Start:       &gcal.EventDateTime{DateTime: entry.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: entry.End.Format(time.RFC3339)},
	}
	// The API only accepts IANA names; fixed offsets are carried by DateTime.
	if _, err := time.LoadLocation(entry.Timezone); err == nil && entry.Timezone != "" {
		ev.Start.TimeZone = entry.Timezone
		ev.End.TimeZone = entry.Timezone
	}
	return ev
}

func (g *Google) fromGoogle(ev *gcal.Event) (*models.CalendarEntry, error) {
	start, tz, err := parseEventTime(ev.Start)
	if err != nil {
		return nil, fmt.Errorf("event %s start: %w", ev.Id, err)
	}
	end, _, err := parseEventTime(ev.End)
	if err != nil {
		return nil, fmt.Errorf("event %s end: %w", ev.Id, err)
	}
	status := ev.Status
	if status == "" {
		status = models.EventStatusConfirmed
	}
	return &models.CalendarEntry{
		ID:          ev.Id,
		CalendarID:  g.calendarID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       start,
		End:         end,
		Timezone:    tz,
		Status:      status,
	}, nil
}

// parseEventTime reads a timed or all-day event boundary.
func parseEventTime(dt *gcal.EventDateTime) (time.Time, string, error) {
	if dt == nil {
		return time.Time{}, "", fmt.Errorf("missing time")
	}
	loc := time.UTC
	if dt.TimeZone != "" {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	switch {
	case dt.DateTime != "":
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, "", err
		}
		if dt.TimeZone != "" {
			t = t.In(loc)
		}
		return t, dt.TimeZone, nil
	case dt.Date != "":
		t, err := time.ParseInLocation("2006-01-02", dt.Date, loc)
		return t, dt.TimeZone, err
	}
	return time.Time{}, "", fmt.Errorf("neither dateTime nor date set")
}

var retryableReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"backendError":          true,
}

// classify maps a Calendar API error to a StoreError.
func classify(op string, err error) error {
	se := &apperrors.StoreError{Store: apperrors.StoreCalendar, Op: op, Err: err}

	var gerr *googleapi.Error
	var nerr net.Error
	switch {
	case errors.As(err, &gerr):
		switch {
		case gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone:
			se.Err = fmt.Errorf("%w: %w", apperrors.ErrNotFound, err)
		case gerr.Code == http.StatusConflict:
			se.Err = fmt.Errorf("%w: %w", apperrors.ErrConflict, err)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			se.Retryable = true
		case gerr.Code == http.StatusForbidden:
			for _, item := range gerr.Errors {
				if retryableReasons[item.Reason] {
					se.Retryable = true
				}
			}
		}
	case errors.Is(err, context.DeadlineExceeded):
		se.Retryable = true
	case errors.As(err, &nerr) && nerr.Timeout():
		se.Retryable = true
	}
	return se
}
