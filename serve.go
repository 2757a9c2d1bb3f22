package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/auth"
	"github.com/ekaya-inc/agenda-sync/pkg/handlers"
	"github.com/ekaya-inc/agenda-sync/pkg/mcp"
	"github.com/ekaya-inc/agenda-sync/pkg/mcp/tools"
	"github.com/ekaya-inc/agenda-sync/pkg/middleware"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(cc *commandContext) *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools and the transcript API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := cc.ensure()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if migrateFirst {
				if err := runMigrations(cfg, logger); err != nil {
					return err
				}
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "Apply pending migrations before serving")
	return cmd
}

// serve runs the HTTP server until ctx is cancelled.
func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.Host+"/"+cfg.Database.Database),
		zap.String("calendar_id", cfg.Calendar.CalendarID),
		zap.String("transcription_provider", cfg.Transcription.Provider),
	)

	validator, err := auth.NewJWKSClient(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	authMiddleware := auth.NewMiddleware(validator, cfg.Auth.EnableVerification, logger)

	checks := map[string]func(context.Context) error{
		"database": a.db.Ping,
	}

	mcpServer := mcp.NewServer("agenda-sync", cfg.Version, logger)
	tools.RegisterTools(mcpServer.MCP(), &tools.ToolDeps{
		Pipeline:        a.pipeline,
		Agenda:          a.agenda,
		Catalog:         a.catalog,
		DefaultTimezone: cfg.Extraction.DefaultTimezone,
		Logger:          logger,
	})
	toolChecks := make(map[string]tools.HealthCheck, len(checks))
	httpChecks := make(map[string]handlers.HealthCheck, len(checks))
	for name, check := range checks {
		toolChecks[name] = check
		httpChecks[name] = check
	}
	tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version, toolChecks)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, httpChecks, logger).RegisterRoutes(mux)
	handlers.NewMCPHandler(mcpServer, authMiddleware, logger).RegisterRoutes(mux)
	handlers.NewTranscriptsHandler(a.pipeline, handlers.TranscriptsConfig{
		MaxUploadBytes:  cfg.Transcription.MaxUploadBytes,
		DefaultTimezone: cfg.Extraction.DefaultTimezone,
		Language:        cfg.Transcription.Language,
	}, logger).RegisterRoutes(mux, authMiddleware.RequireAuth)

	srv := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting agenda-sync", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
