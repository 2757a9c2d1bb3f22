package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFrom_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
port: "3480"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
calendar:
  calendar_id: "team@example.com"
extraction:
  default_timezone: "America/Monterrey"
`)

	os.Unsetenv("PGHOST")
	os.Unsetenv("BASE_URL")
	t.Setenv("PORT", "4480")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PGPASSWORD", "s3cret")

	cfg, err := LoadFrom(path, "test-version")
	require.NoError(t, err)

	assert.Equal(t, "4480", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "http://localhost:4480", cfg.BaseURL)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "team@example.com", cfg.Calendar.CalendarID)
	assert.Equal(t, "America/Monterrey", cfg.Extraction.DefaultTimezone)
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	os.Unsetenv("DEFAULT_TIMEZONE")
	os.Unsetenv("TRANSCRIPTION_PROVIDER")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"), "dev")
	require.NoError(t, err)

	assert.Equal(t, "America/Mexico_City", cfg.Extraction.DefaultTimezone)
	assert.Equal(t, time.Hour, cfg.Extraction.DefaultDuration)
	assert.Equal(t, 1500*time.Millisecond, cfg.Extraction.MergeGap)
	assert.Equal(t, "assemblyai", cfg.Transcription.Provider)
	assert.Equal(t, 3, cfg.Reconcile.MaxRetries)
	assert.Equal(t, 4, cfg.Reconcile.MaxConcurrent)
	assert.Equal(t, "primary", cfg.Calendar.CalendarID)
}

func TestLoadFrom_RejectsUnknownTimezone(t *testing.T) {
	path := writeConfig(t, `
extraction:
  default_timezone: "Mars/Olympus_Mons"
`)
	os.Unsetenv("DEFAULT_TIMEZONE")

	_, err := LoadFrom(path, "dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_timezone")
}

func TestLoadFrom_RejectsUnknownProvider(t *testing.T) {
	t.Setenv("TRANSCRIPTION_PROVIDER", "carrier-pigeon")

	_, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"), "dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcription provider")
}

func TestParseJWKSEndpoints(t *testing.T) {
	got := parseJWKSEndpoints("https://auth.example.com=https://auth.example.com/.well-known/jwks.json, other = https://other/jwks")

	assert.Equal(t, map[string]string{
		"https://auth.example.com": "https://auth.example.com/.well-known/jwks.json",
		"other":                    "https://other/jwks",
	}, got)
	assert.Empty(t, parseJWKSEndpoints(""))
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "agenda", Password: "p@ss", Database: "agenda_sync", SSLMode: "require"}

	assert.Equal(t, "postgres://agenda:p%40ss@db:5433/agenda_sync?sslmode=require", c.ConnectionString())
}
