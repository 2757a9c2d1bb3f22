package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/calendar"
	"github.com/ekaya-inc/agenda-sync/pkg/config"
	"github.com/ekaya-inc/agenda-sync/pkg/database"
	"github.com/ekaya-inc/agenda-sync/pkg/extraction"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
	"github.com/ekaya-inc/agenda-sync/pkg/repositories"
	"github.com/ekaya-inc/agenda-sync/pkg/services"
	"github.com/ekaya-inc/agenda-sync/pkg/transcription"
)

// app holds the wired services shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB

	pipeline services.PipelineService
	agenda   services.AgendaService
	catalog  services.CatalogService
}

// newApp connects to both stores and wires the services. A transcription
// provider without credentials leaves audio processing disabled.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	dbCfg := cfg.Database
	dbCfg.Host = config.ResolveHostForDocker(dbCfg.Host)

	db, err := database.NewConnection(ctx, database.ConfigFrom(dbCfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	cal, err := calendar.NewGoogle(ctx, cfg.Calendar, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}

	lex, err := extraction.LoadLexicon(cfg.Extraction.LexiconPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load extraction lexicon: %w", err)
	}
	extractor, err := extraction.New(lex, extraction.Options{
		DefaultTimezone: cfg.Extraction.DefaultTimezone,
		DefaultDuration: cfg.Extraction.DefaultDuration,
		DefaultHour:     cfg.Extraction.DefaultHour,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	transcriber, err := transcription.New(cfg.Transcription, logger)
	if err != nil {
		logger.Warn("Audio transcription disabled", zap.Error(err))
		transcriber = nil
	}

	clients := repositories.NewClientRepository(db)
	events := repositories.NewEventRepository(db)
	products := repositories.NewProductRepository(db)
	purchases := repositories.NewClientProductRepository(db)

	rcfg := services.ReconcilerConfigFrom(cfg.Reconcile, cfg.Calendar)
	rcfg.Transactor = db
	reconciler := services.NewReconciler(cal, events, clients, rcfg, logger)

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		pipeline: services.NewPipelineService(transcriber, extractor, clients, reconciler, services.PipelineConfig{
			MergeGap:        cfg.Extraction.MergeGap,
			DefaultTimezone: cfg.Extraction.DefaultTimezone,
			MinConfidence:   models.Confidence(cfg.Extraction.MinConfidence),
		}, logger),
		agenda:  services.NewAgendaService(reconciler, events, clients, cfg.Extraction.DefaultTimezone, logger),
		catalog: services.NewCatalogService(products, purchases, clients, reconciler, logger),
	}, nil
}

func (a *app) Close() {
	a.db.Close()
}
