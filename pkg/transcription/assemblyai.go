package transcription

import (
	"context"
	"fmt"
	"io"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"
	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/logging"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// Provider names accepted by configuration.
const (
	ProviderAssemblyAI = "assemblyai"
	ProviderWhisper    = "whisper"
)

// AssemblyAI transcribes through the AssemblyAI API. It supports speaker
// diarization; utterances come back already grouped by speaker.
type AssemblyAI struct {
	client   *aai.Client
	language string
	logger   *zap.Logger
}

var _ Transcriber = (*AssemblyAI)(nil)

// NewAssemblyAI creates an AssemblyAI transcriber.
func NewAssemblyAI(apiKey, language string, logger *zap.Logger, opts ...aai.ClientOption) *AssemblyAI {
	opts = append([]aai.ClientOption{aai.WithAPIKey(apiKey)}, opts...)
	return &AssemblyAI{
		client:   aai.NewClientWithOptions(opts...),
		language: language,
		logger:   logger.Named("assemblyai"),
	}
}

func (a *AssemblyAI) Name() string { return ProviderAssemblyAI }

// Transcribe uploads audio and waits for the transcript.
func (a *AssemblyAI) Transcribe(ctx context.Context, audio io.Reader, opts Options) (*models.Transcript, error) {
	a.logger.Debug("Uploading audio", zap.String("filename", opts.Filename), zap.Bool("diarize", opts.Diarize))

	tr, err := a.client.Transcripts.TranscribeFromReader(ctx, audio, a.params(opts))
	if err != nil {
		return nil, fmt.Errorf("assemblyai transcribe: %w", err)
	}
	return a.convert(tr)
}

// TranscribeURL transcribes audio the service can fetch itself.
func (a *AssemblyAI) TranscribeURL(ctx context.Context, audioURL string, opts Options) (*models.Transcript, error) {
	a.logger.Debug("Transcribing remote audio",
		zap.String("url", logging.SanitizeURL(audioURL)),
		zap.Bool("diarize", opts.Diarize))

	tr, err := a.client.Transcripts.TranscribeFromURL(ctx, audioURL, a.params(opts))
	if err != nil {
		return nil, fmt.Errorf("assemblyai transcribe: %w", err)
	}
	return a.convert(tr)
}

func (a *AssemblyAI) params(opts Options) *aai.TranscriptOptionalParams {
	params := &aai.TranscriptOptionalParams{
		SpeakerLabels: aai.Bool(opts.Diarize),
		Punctuate:     aai.Bool(true),
		FormatText:    aai.Bool(true),
	}
	lang := opts.Language
	if lang == "" {
		lang = a.language
	}
	if lang != "" {
		params.LanguageCode = aai.TranscriptLanguageCode(lang)
	} else {
		params.LanguageDetection = aai.Bool(true)
	}
	return params
}

func (a *AssemblyAI) convert(tr aai.Transcript) (*models.Transcript, error) {
	out, err := fromAssemblyAI(tr)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Transcript ready",
		zap.Int("segments", len(out.Segments)),
		zap.String("preview", logging.TruncateText(out.Text)))
	return out, nil
}

// fromAssemblyAI maps a completed AssemblyAI transcript to segments. When
// diarization was off there are no utterances and the full text becomes one
// unlabeled zero-length segment.
func fromAssemblyAI(tr aai.Transcript) (*models.Transcript, error) {
	if tr.Status == aai.TranscriptStatusError {
		return nil, fmt.Errorf("assemblyai transcript failed: %s", deref(tr.Error))
	}

	out := &models.Transcript{
		Provider:  ProviderAssemblyAI,
		Text:      deref(tr.Text),
		CreatedAt: now(),
	}

	for _, u := range tr.Utterances {
		out.Segments = append(out.Segments, models.RawSegment{
			Speaker: deref(u.Speaker),
			Text:    deref(u.Text),
			StartMs: u.Start,
			EndMs:   u.End,
		})
	}

	if len(out.Segments) == 0 && out.Text != "" {
		var start, end int64
		out.Segments = []models.RawSegment{{Text: out.Text, StartMs: &start, EndMs: &end}}
	}

	return out, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
