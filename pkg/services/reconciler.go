package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/calendar"
	"github.com/ekaya-inc/agenda-sync/pkg/config"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
	"github.com/ekaya-inc/agenda-sync/pkg/repositories"
	"github.com/ekaya-inc/agenda-sync/pkg/retry"
	"github.com/ekaya-inc/agenda-sync/pkg/workerpool"
)

// Reconciler brings the calendar and the relational store into agreement
// about one validated record at a time.
//
// The two stores cannot commit atomically. Events are written to the
// calendar first and mirrored in the relational store under the calendar's
// identifier; the relational unique constraints decide races between
// concurrent requests, whose losers fall back to the update path.
type Reconciler interface {
	// ReconcileEvent creates, updates or confirms one event in both stores.
	ReconcileEvent(ctx context.Context, ev *models.ValidatedEvent) (*models.ReconcileResult, error)

	// ReconcileClient creates or updates one client, reusing an existing row
	// whenever the (company, person) pair is not genuinely new.
	ReconcileClient(ctx context.Context, c *models.ValidatedClient) (*models.ReconcileResult, error)

	// ReconcileAll reconciles independent records concurrently. Clients go
	// first so that events can be linked to them.
	ReconcileAll(ctx context.Context, records []models.ValidatedRecord) []RecordOutcome

	// DeleteEvent removes an event from both stores.
	DeleteEvent(ctx context.Context, eventID string) (*models.ReconcileResult, error)

	// SyncLocalEvents pushes rows that never reached the calendar.
	SyncLocalEvents(ctx context.Context) ([]models.LocalSyncResult, error)
}

// RecordOutcome pairs a record with its reconciliation result or failure.
type RecordOutcome struct {
	Record models.ValidatedRecord
	Result *models.ReconcileResult
	Err    error
}

// ReconcilerConfig bounds retries, concurrency and the drift lookup.
type ReconcilerConfig struct {
	Retry         *retry.Config
	MaxConcurrent int
	// DriftWindow widens the calendar range searched for un-mirrored
	// entries around a new event. Zero disables the lookup.
	DriftWindow time.Duration
	// Transactor groups relational writes that must land together. Nil runs
	// them without a transaction.
	Transactor Transactor
}

// Transactor runs fn in a relational transaction; repositories called with
// the context passed to fn join it. *database.DB implements it.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noTx struct{}

func (noTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ReconcilerConfigFrom builds the reconciler settings from application config.
func ReconcilerConfigFrom(rc config.ReconcileConfig, cc config.CalendarConfig) ReconcilerConfig {
	r := retry.DefaultConfig()
	r.MaxRetries = rc.MaxRetries
	if rc.InitialDelay > 0 {
		r.InitialDelay = rc.InitialDelay
	}
	if rc.MaxDelay > 0 {
		r.MaxDelay = rc.MaxDelay
	}
	return ReconcilerConfig{
		Retry:         r,
		MaxConcurrent: rc.MaxConcurrent,
		DriftWindow:   cc.DriftWindow,
	}
}

type reconciler struct {
	calendar    calendar.Store
	events      repositories.EventRepository
	clients     repositories.ClientRepository
	retry       *retry.Config
	pool        *workerpool.Pool
	driftWindow time.Duration
	tx          Transactor
	logger      *zap.Logger
}

var _ Reconciler = (*reconciler)(nil)

// NewReconciler creates a Reconciler over the given stores.
func NewReconciler(
	cal calendar.Store,
	events repositories.EventRepository,
	clients repositories.ClientRepository,
	cfg ReconcilerConfig,
	logger *zap.Logger,
) Reconciler {
	logger = logger.Named("reconciler")

	rc := retry.DefaultConfig()
	if cfg.Retry != nil {
		copied := *cfg.Retry
		rc = &copied
	}
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Retrying store operation",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	tx := cfg.Transactor
	if tx == nil {
		tx = noTx{}
	}

	return &reconciler{
		calendar:    cal,
		events:      events,
		clients:     clients,
		retry:       rc,
		pool:        workerpool.New(workerpool.Config{MaxConcurrent: cfg.MaxConcurrent}, logger),
		driftWindow: cfg.DriftWindow,
		tx:          tx,
		logger:      logger,
	}
}

func (r *reconciler) ReconcileAll(ctx context.Context, records []models.ValidatedRecord) []RecordOutcome {
	out := make([]RecordOutcome, len(records))

	var clientItems, eventItems []workerpool.Item[*models.ReconcileResult]
	var clientIdx, eventIdx []int
	for i, rec := range records {
		out[i].Record = rec
		switch {
		case rec.Kind == models.CandidateClient && rec.Client != nil:
			c := rec.Client
			clientIdx = append(clientIdx, i)
			clientItems = append(clientItems, workerpool.Item[*models.ReconcileResult]{
				ID:      fmt.Sprintf("client-%d", i),
				Execute: func(ctx context.Context) (*models.ReconcileResult, error) { return r.ReconcileClient(ctx, c) },
			})
		case rec.Kind == models.CandidateEvent && rec.Event != nil:
			ev := rec.Event
			eventIdx = append(eventIdx, i)
			eventItems = append(eventItems, workerpool.Item[*models.ReconcileResult]{
				ID:      fmt.Sprintf("event-%d", i),
				Execute: func(ctx context.Context) (*models.ReconcileResult, error) { return r.ReconcileEvent(ctx, ev) },
			})
		default:
			out[i].Err = fmt.Errorf("record %d of kind %q has no payload: %w", i, rec.Kind, apperrors.ErrInvalidInput)
		}
	}

	for phase, items := range [][]workerpool.Item[*models.ReconcileResult]{clientItems, eventItems} {
		idx := clientIdx
		if phase == 1 {
			idx = eventIdx
		}
		for j, res := range workerpool.Process(ctx, r.pool, items, nil) {
			out[idx[j]].Result = res.Result
			out[idx[j]].Err = res.Err
		}
	}

	return out
}

// withRetry runs fn under the reconciler's retry budget. Only errors the
// stores classified as transient are retried.
func withRetry[T any](ctx context.Context, r *reconciler, fn func() (T, error)) (T, error) {
	return retry.DoIfRetryableWithResult(ctx, r.retry, fn)
}

func (r *reconciler) do(ctx context.Context, fn func() error) error {
	return retry.DoIfRetryable(ctx, r.retry, fn)
}

// failure converts a store error into the error surfaced to callers.
// otherCommitted reports whether the other store already holds the write;
// calendarEventID names the calendar entry when one exists.
func failure(store string, err error, otherCommitted bool, calendarEventID string) error {
	code := apperrors.CodeStoreRejected
	switch {
	case otherCommitted:
		code = apperrors.CodePartialReconciliation
	case apperrors.IsTransient(err), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = apperrors.CodeStoreUnavailable
	case apperrors.IsConflict(err):
		code = apperrors.CodeStoreConflict
	}
	return &apperrors.ReconcileError{
		Code:            code,
		Store:           store,
		OtherCommitted:  otherCommitted,
		CalendarEventID: calendarEventID,
		Err:             err,
	}
}
