package transcription

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/config"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// Options are per-request transcription settings.
type Options struct {
	// Diarize asks for speaker labels. Providers without diarization ignore it.
	Diarize bool
	// Language is an ISO-639-1 hint; empty lets the provider detect it.
	Language string
	// Filename names the audio for providers that infer the format from it.
	Filename string
}

// Transcriber turns audio into a speaker-labeled segment sequence.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, opts Options) (*models.Transcript, error)
	TranscribeURL(ctx context.Context, audioURL string, opts Options) (*models.Transcript, error)
	Name() string
}

// New builds the transcriber selected by cfg.Provider.
func New(cfg config.TranscriptionConfig, logger *zap.Logger) (Transcriber, error) {
	switch cfg.Provider {
	case ProviderAssemblyAI:
		if cfg.AssemblyAIKey == "" {
			return nil, fmt.Errorf("ASSEMBLYAI_API_KEY is required for provider %s", cfg.Provider)
		}
		return NewAssemblyAI(cfg.AssemblyAIKey, cfg.Language, logger), nil
	case ProviderWhisper:
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for provider %s", cfg.Provider)
		}
		return NewWhisper(WhisperConfig{
			APIKey:          cfg.OpenAIKey,
			BaseURL:         cfg.OpenAIBaseURL,
			Model:           cfg.WhisperModel,
			Language:        cfg.Language,
			MaxDownloadSize: cfg.MaxUploadBytes,
			DownloadTimeout: cfg.DownloadTimeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}

// download fetches audioURL into memory, refusing bodies larger than limit.
func download(ctx context.Context, client *http.Client, audioURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build audio request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download audio: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("audio exceeds %d bytes", limit)
	}
	return body, nil
}

func msFromSeconds(s float64) *int64 {
	v := int64(s*1000 + 0.5)
	return &v
}

func now() time.Time { return time.Now().UTC() }
