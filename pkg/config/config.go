package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the configuration file read by Load.
const DefaultPath = "config.yaml"

// Config holds all configuration for agenda-sync.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	Log           LogConfig           `yaml:"log"`
	Auth          AuthConfig          `yaml:"auth"`
	Database      DatabaseConfig      `yaml:"database"`
	Calendar      CalendarConfig      `yaml:"calendar"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Reconcile     ReconcileConfig     `yaml:"reconcile"`
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"` // json | console
}

// AuthConfig holds bearer-token verification settings for the tool endpoint.
type AuthConfig struct {
	// EnableVerification controls whether JWT signatures are verified.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"false"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"agenda"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"agenda_sync"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"PGMAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"PGMAX_CONN_IDLE_TIME" env-default:"30m"`
}

// CalendarConfig holds calendar-service settings.
type CalendarConfig struct {
	CalendarID string `yaml:"calendar_id" env:"CALENDAR_ID" env-default:"primary"`
	// CredentialsFile is a service-account key or an OAuth client secret JSON.
	CredentialsFile string `yaml:"credentials_file" env:"GOOGLE_CREDENTIALS_FILE" env-default:"credentials.json"`
	// TokenFile holds a stored OAuth token; used with an OAuth client secret.
	TokenFile string        `yaml:"token_file" env:"GOOGLE_TOKEN_FILE" env-default:""`
	Timeout   time.Duration `yaml:"timeout" env:"CALENDAR_TIMEOUT" env-default:"10s"`
	// DriftWindow widens the time range searched for un-mirrored entries.
	DriftWindow time.Duration `yaml:"drift_window" env:"CALENDAR_DRIFT_WINDOW" env-default:"2h"`
}

// TranscriptionConfig selects and configures the transcription collaborator.
type TranscriptionConfig struct {
	Provider        string        `yaml:"provider" env:"TRANSCRIPTION_PROVIDER" env-default:"assemblyai"` // assemblyai | whisper
	AssemblyAIKey   string        `yaml:"-" env:"ASSEMBLYAI_API_KEY"`                                     // Secret - not in YAML
	OpenAIKey       string        `yaml:"-" env:"OPENAI_API_KEY"`                                         // Secret - not in YAML
	OpenAIBaseURL   string        `yaml:"openai_base_url" env:"OPENAI_BASE_URL" env-default:""`
	WhisperModel    string        `yaml:"whisper_model" env:"WHISPER_MODEL" env-default:"whisper-1"`
	Language        string        `yaml:"language" env:"TRANSCRIPTION_LANGUAGE" env-default:"es"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" env:"TRANSCRIPTION_MAX_UPLOAD_BYTES" env-default:"52428800"`
	DownloadTimeout time.Duration `yaml:"download_timeout" env:"TRANSCRIPTION_DOWNLOAD_TIMEOUT" env-default:"60s"`
}

// ExtractionConfig tunes the normalizer and the entity extractor.
type ExtractionConfig struct {
	DefaultTimezone string        `yaml:"default_timezone" env:"DEFAULT_TIMEZONE" env-default:"America/Mexico_City"`
	DefaultDuration time.Duration `yaml:"default_duration" env:"DEFAULT_EVENT_DURATION" env-default:"1h"`
	DefaultHour     int           `yaml:"default_hour" env:"DEFAULT_EVENT_HOUR" env-default:"9"`
	MergeGap        time.Duration `yaml:"merge_gap" env:"TRANSCRIPT_MERGE_GAP" env-default:"1500ms"`
	LexiconPath     string        `yaml:"lexicon_path" env:"EXTRACTION_LEXICON_PATH" env-default:""`
	// MinConfidence is the lowest confidence reconciled without confirmation.
	MinConfidence string `yaml:"min_confidence" env:"EXTRACTION_MIN_CONFIDENCE" env-default:"medium"`
}

// ReconcileConfig bounds retries and concurrency of store writes.
type ReconcileConfig struct {
	MaxRetries    int           `yaml:"max_retries" env:"RECONCILE_MAX_RETRIES" env-default:"3"`
	InitialDelay  time.Duration `yaml:"initial_delay" env:"RECONCILE_INITIAL_DELAY" env-default:"200ms"`
	MaxDelay      time.Duration `yaml:"max_delay" env:"RECONCILE_MAX_DELAY" env-default:"5s"`
	MaxConcurrent int           `yaml:"max_concurrent" env:"RECONCILE_MAX_CONCURRENT" env-default:"4"`
}

// Load reads configuration from config.yaml with environment variable overrides.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultPath, version)
}

// LoadFrom reads configuration from path with environment variable overrides.
// A missing file is not an error: configuration then comes from the
// environment and defaults alone.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// Validate checks values that cleanenv cannot.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Extraction.DefaultTimezone); err != nil {
		return fmt.Errorf("default_timezone %q: %w", c.Extraction.DefaultTimezone, err)
	}

	switch c.Transcription.Provider {
	case "assemblyai", "whisper":
	default:
		return fmt.Errorf("transcription provider must be assemblyai or whisper, got %q", c.Transcription.Provider)
	}

	switch c.Extraction.MinConfidence {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("min_confidence must be low, medium or high, got %q", c.Extraction.MinConfidence)
	}

	if c.Extraction.DefaultHour < 0 || c.Extraction.DefaultHour > 23 {
		return fmt.Errorf("default_hour must be between 0 and 23, got %d", c.Extraction.DefaultHour)
	}

	if c.Auth.EnableVerification && len(c.Auth.JWKSEndpoints) == 0 {
		return fmt.Errorf("auth verification enabled but no jwks_endpoints configured")
	}

	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
