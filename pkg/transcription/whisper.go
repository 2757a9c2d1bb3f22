package transcription

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/logging"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// WhisperConfig configures the OpenAI-compatible transcriber.
type WhisperConfig struct {
	APIKey          string
	BaseURL         string // empty uses the OpenAI endpoint
	Model           string
	Language        string
	MaxDownloadSize int64
	DownloadTimeout time.Duration
}

// Whisper transcribes through an OpenAI-compatible audio endpoint. It does
// not diarize: every segment has an empty speaker label.
type Whisper struct {
	client     *openai.Client
	httpClient *http.Client
	cfg        WhisperConfig
	logger     *zap.Logger
}

var _ Transcriber = (*Whisper)(nil)

// NewWhisper creates a Whisper transcriber.
func NewWhisper(cfg WhisperConfig, logger *zap.Logger) *Whisper {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.MaxDownloadSize <= 0 {
		cfg.MaxDownloadSize = 50 << 20
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 60 * time.Second
	}

	return &Whisper{
		client:     openai.NewClientWithConfig(clientCfg),
		httpClient: &http.Client{Timeout: cfg.DownloadTimeout},
		cfg:        cfg,
		logger:     logger.Named("whisper"),
	}
}

func (w *Whisper) Name() string { return ProviderWhisper }

// Transcribe sends audio to the transcription endpoint and returns its
// timestamped segments.
func (w *Whisper) Transcribe(ctx context.Context, audio io.Reader, opts Options) (*models.Transcript, error) {
	if opts.Diarize {
		w.logger.Debug("Diarization requested but not supported by whisper; speakers will be unlabeled")
	}

	filename := opts.Filename
	if filename == "" {
		filename = "audio.mp3"
	}
	lang := opts.Language
	if lang == "" {
		lang = w.cfg.Language
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.cfg.Model,
		Reader:   audio,
		FilePath: filename,
		Language: lang,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcribe: %w", err)
	}

	out := fromWhisper(resp)
	w.logger.Info("Transcript ready",
		zap.Int("segments", len(out.Segments)),
		zap.String("preview", logging.TruncateText(out.Text)))
	return out, nil
}

// TranscribeURL downloads the audio and transcribes it; the endpoint only
// accepts uploads.
func (w *Whisper) TranscribeURL(ctx context.Context, audioURL string, opts Options) (*models.Transcript, error) {
	w.logger.Debug("Downloading remote audio", zap.String("url", logging.SanitizeURL(audioURL)))

	body, err := download(ctx, w.httpClient, audioURL, w.cfg.MaxDownloadSize)
	if err != nil {
		return nil, err
	}
	if opts.Filename == "" {
		opts.Filename = path.Base(strings.SplitN(audioURL, "?", 2)[0])
	}
	return w.Transcribe(ctx, bytes.NewReader(body), opts)
}

func fromWhisper(resp openai.AudioResponse) *models.Transcript {
	out := &models.Transcript{
		Provider:  ProviderWhisper,
		Text:      strings.TrimSpace(resp.Text),
		CreatedAt: now(),
	}
	for _, s := range resp.Segments {
		out.Segments = append(out.Segments, models.RawSegment{
			Text:    strings.TrimSpace(s.Text),
			StartMs: msFromSeconds(s.Start),
			EndMs:   msFromSeconds(s.End),
		})
	}
	return out
}
