package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/extraction"
	"github.com/ekaya-inc/agenda-sync/pkg/logging"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
	"github.com/ekaya-inc/agenda-sync/pkg/repositories"
	"github.com/ekaya-inc/agenda-sync/pkg/transcription"
	"github.com/ekaya-inc/agenda-sync/pkg/validation"
)

// PipelineService turns conversations into reconciled records:
// normalize, extract, validate, then reconcile.
type PipelineService interface {
	// ProcessTranscript runs an already transcribed conversation.
	ProcessTranscript(ctx context.Context, tr *models.Transcript, opts PipelineOptions) (*PipelineReport, error)

	// ProcessAudio transcribes audio and runs the result.
	ProcessAudio(ctx context.Context, audio io.Reader, topts transcription.Options, opts PipelineOptions) (*PipelineReport, error)

	// ProcessAudioURL transcribes the audio at audioURL and runs the result.
	ProcessAudioURL(ctx context.Context, audioURL string, topts transcription.Options, opts PipelineOptions) (*PipelineReport, error)
}

// PipelineOptions are per-request pipeline settings.
type PipelineOptions struct {
	// Reference resolves relative dates. Zero uses the transcript's
	// creation time, or now.
	Reference time.Time
	// DryRun stops after validation.
	DryRun bool
	// MinConfidence overrides the configured confirmation threshold.
	MinConfidence models.Confidence
}

// PipelineConfig configures a PipelineService.
type PipelineConfig struct {
	MergeGap        time.Duration
	DefaultTimezone string
	// MinConfidence is the lowest confidence reconciled without confirmation.
	MinConfidence models.Confidence
}

// PipelineReport describes what happened to every candidate of a transcript.
// No candidate is dropped silently: each one is pending, rejected, or
// carried by a record.
type PipelineReport struct {
	Provider   string                  `json:"provider,omitempty"`
	Utterances []models.Utterance      `json:"utterances"`
	Dropped    []models.DroppedSegment `json:"dropped_segments,omitempty"`
	Pending    []PendingCandidate      `json:"pending_confirmation,omitempty"`
	Rejected   []RejectedCandidate     `json:"rejected,omitempty"`
	Records    []RecordReport          `json:"records"`
	DryRun     bool                    `json:"dry_run,omitempty"`
}

// PendingCandidate is a candidate below the confidence threshold, returned
// for user confirmation instead of being written.
type PendingCandidate struct {
	Code      apperrors.Code   `json:"code"`
	Candidate models.Candidate `json:"candidate"`
}

// RejectedCandidate is a candidate the validator refused.
type RejectedCandidate struct {
	Candidate models.Candidate `json:"candidate"`
	Error     *ErrorDetail     `json:"error"`
}

// RecordReport is the reconciliation outcome of one validated record.
type RecordReport struct {
	Record models.ValidatedRecord  `json:"record"`
	Result *models.ReconcileResult `json:"result,omitempty"`
	Error  *ErrorDetail            `json:"error,omitempty"`
}

type pipelineService struct {
	transcriber transcription.Transcriber
	extractor   *extraction.Extractor
	clients     repositories.ClientRepository
	reconciler  Reconciler
	cfg         PipelineConfig
	logger      *zap.Logger
}

var _ PipelineService = (*pipelineService)(nil)

// NewPipelineService creates a PipelineService. transcriber may be nil when
// only transcripts are processed.
func NewPipelineService(
	transcriber transcription.Transcriber,
	extractor *extraction.Extractor,
	clients repositories.ClientRepository,
	reconciler Reconciler,
	cfg PipelineConfig,
	logger *zap.Logger,
) PipelineService {
	if cfg.MinConfidence == "" {
		cfg.MinConfidence = models.ConfidenceMedium
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = extractor.DefaultTimezone()
	}
	return &pipelineService{
		transcriber: transcriber,
		extractor:   extractor,
		clients:     clients,
		reconciler:  reconciler,
		cfg:         cfg,
		logger:      logger.Named("pipeline"),
	}
}

func (s *pipelineService) ProcessAudio(ctx context.Context, audio io.Reader, topts transcription.Options, opts PipelineOptions) (*PipelineReport, error) {
	if s.transcriber == nil {
		return nil, fmt.Errorf("no transcriber configured: %w", apperrors.ErrInvalidInput)
	}
	tr, err := s.transcriber.Transcribe(ctx, audio, topts)
	if err != nil {
		return nil, fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return s.ProcessTranscript(ctx, tr, opts)
}

func (s *pipelineService) ProcessAudioURL(ctx context.Context, audioURL string, topts transcription.Options, opts PipelineOptions) (*PipelineReport, error) {
	if s.transcriber == nil {
		return nil, fmt.Errorf("no transcriber configured: %w", apperrors.ErrInvalidInput)
	}
	s.logger.Info("Transcribing audio",
		zap.String("provider", s.transcriber.Name()),
		zap.String("url", logging.SanitizeURL(audioURL)),
		zap.Bool("diarize", topts.Diarize))
	tr, err := s.transcriber.TranscribeURL(ctx, audioURL, topts)
	if err != nil {
		return nil, fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return s.ProcessTranscript(ctx, tr, opts)
}

func (s *pipelineService) ProcessTranscript(ctx context.Context, tr *models.Transcript, opts PipelineOptions) (*PipelineReport, error) {
	normalized := transcription.Normalize(tr.Segments, transcription.NormalizerOptions{MergeGap: s.cfg.MergeGap})
	report := &PipelineReport{
		Provider:   tr.Provider,
		Utterances: normalized.Utterances,
		Dropped:    normalized.Dropped,
		Records:    []RecordReport{},
		DryRun:     opts.DryRun,
	}

	known, err := s.clients.List(ctx, models.ClientFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load known clients: %w", err)
	}
	snapshot := make([]models.Client, len(known))
	companies := make([]string, 0, len(known))
	for i, c := range known {
		snapshot[i] = *c
		companies = append(companies, c.CompanyName)
	}

	reference := referenceTime(tr, opts)
	candidates := s.extractor.Extract(normalized.Utterances, reference, companies...)

	minConfidence := opts.MinConfidence
	if minConfidence == "" {
		minConfidence = s.cfg.MinConfidence
	}
	validator := validation.New(s.cfg.DefaultTimezone, snapshot)

	var records []models.ValidatedRecord
	for _, c := range candidates {
		if c.Confidence.Rank() < minConfidence.Rank() {
			report.Pending = append(report.Pending, PendingCandidate{
				Code:      apperrors.CodeLowConfidence,
				Candidate: c,
			})
			continue
		}
		rec, err := validator.Validate(c)
		if err != nil {
			report.Rejected = append(report.Rejected, RejectedCandidate{Candidate: c, Error: DescribeError(err)})
			continue
		}
		records = append(records, rec)
	}

	s.logger.Info("Extracted candidates",
		zap.Int("utterances", len(normalized.Utterances)),
		zap.Int("dropped_segments", len(normalized.Dropped)),
		zap.Int("candidates", len(candidates)),
		zap.Int("pending", len(report.Pending)),
		zap.Int("rejected", len(report.Rejected)),
		zap.Int("records", len(records)))

	if opts.DryRun {
		for _, rec := range records {
			report.Records = append(report.Records, RecordReport{Record: rec})
		}
		return report, nil
	}

	for _, out := range s.reconciler.ReconcileAll(ctx, records) {
		report.Records = append(report.Records, RecordReport{
			Record: out.Record,
			Result: out.Result,
			Error:  DescribeError(out.Err),
		})
	}
	return report, nil
}

// referenceTime picks the instant relative dates are resolved against.
func referenceTime(tr *models.Transcript, opts PipelineOptions) time.Time {
	ref := opts.Reference
	if ref.IsZero() {
		ref = tr.CreatedAt
	}
	if ref.IsZero() {
		ref = time.Now()
	}
	if loc, err := models.LoadTimezone(tr.Timezone); err == nil {
		ref = ref.In(loc)
	}
	return ref
}
