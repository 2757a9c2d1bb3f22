package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/agenda-sync/pkg/config"
	"github.com/ekaya-inc/agenda-sync/pkg/database"
	"github.com/ekaya-inc/agenda-sync/pkg/logging"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
	"github.com/ekaya-inc/agenda-sync/pkg/services"
)

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	dbCfg := cfg.Database
	dbCfg.Host = config.ResolveHostForDocker(dbCfg.Host)
	connStr := dbCfg.ConnectionString()
	logger.Info("Applying migrations",
		zap.String("path", dbCfg.MigrationsPath),
		zap.String("database", logging.SanitizeConnectionString(connStr)))
	return database.Migrate(connStr, dbCfg.MigrationsPath, logger)
}

func newMigrateCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := cc.ensure()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runMigrations(cfg, logger)
		},
	}
}

func newProcessCommand(cc *commandContext) *cobra.Command {
	var (
		dryRun        bool
		timezone      string
		referenceTime string
		minConfidence string
	)
	cmd := &cobra.Command{
		Use:   "process <transcript.json|transcript.yaml>",
		Short: "Run a transcript file through the pipeline and print the report",
		Long: "Reads a transcript (provider, segments, created_at, timezone) from a JSON or YAML file, " +
			"or from stdin when the path is '-', and prints the pipeline report as JSON.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := cc.ensure()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			tr, err := readTranscriptFile(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if timezone != "" {
				tr.Timezone = timezone
			}

			opts := services.PipelineOptions{
				DryRun:        dryRun,
				MinConfidence: models.Confidence(minConfidence),
			}
			if referenceTime != "" {
				ref, err := time.Parse(time.RFC3339, referenceTime)
				if err != nil {
					return fmt.Errorf("--reference-time must be RFC 3339: %w", err)
				}
				opts.Reference = ref
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.pipeline.ProcessTranscript(cmd.Context(), tr, opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Extract and validate only; write nothing")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone of the conversation (overrides the file)")
	cmd.Flags().StringVar(&referenceTime, "reference-time", "", "Instant relative dates resolve against (RFC 3339)")
	cmd.Flags().StringVar(&minConfidence, "min-confidence", "", "Lowest confidence written without confirmation (low|medium|high)")
	return cmd
}

func newSyncLocalCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-local",
		Short: "Push locally recorded events to the calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := cc.ensure()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.agenda.SyncLocal(cmd.Context())
			if err != nil {
				return err
			}
			failed := countSyncFailures(results)
			if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d local events failed to sync", failed, len(results))
			}
			return nil
		},
	}
}

func countSyncFailures(results []models.LocalSyncResult) int {
	failed := 0
	for _, r := range results {
		if r.Status == services.LocalSyncFailed {
			failed++
		}
	}
	return failed
}

// readTranscriptFile decodes a transcript from path, or from stdin for "-".
// Files ending in .yaml or .yml are read as YAML, everything else as JSON.
func readTranscriptFile(path string, stdin io.Reader) (*models.Transcript, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	var tr models.Transcript
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &tr)
	default:
		err = json.Unmarshal(data, &tr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse transcript %s: %w", path, err)
	}
	if len(tr.Segments) == 0 {
		return nil, fmt.Errorf("transcript %s has no segments", path)
	}
	return &tr, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
