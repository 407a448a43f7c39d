package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "minio:9000", cfg.Storage.Endpoint)
	assert.Equal(t, 24, cfg.Storage.PresignTTLHours)
	assert.Equal(t, "invoices/processed/{yyyy}/{mm}/{dd}/", cfg.Source.PrefixTemplate)
	assert.Equal(t, "metrics/{yyyy}/{mm}/{dd}/", cfg.Source.MetricsTemplate)
	assert.Equal(t, "parsed.json", cfg.Source.LeafName)
	assert.Equal(t, "America/Chicago", cfg.Source.Timezone)
	assert.Equal(t, "0.01", cfg.Scoring.Tolerance)
	assert.Equal(t, 12, cfg.Scoring.SampleLimit)
	assert.Equal(t, 6, cfg.Scoring.PreviewRows)
	assert.Equal(t, "public", cfg.Store.Schema)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.MinConns)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Auth.TokenTTLHours)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
storage:
  bucket: processed-invoices
  use_ssl: true
scoring:
  sample_limit: 3
log:
  level: debug
  format: console
auth:
  operators:
    alice: "$2a$10$abc"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "processed-invoices", cfg.Storage.Bucket)
	assert.True(t, cfg.Storage.UseSSL)
	assert.Equal(t, 3, cfg.Scoring.SampleLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "$2a$10$abc", cfg.Auth.Operators["alice"])
	// Defaults still apply for unset values
	assert.Equal(t, "parsed.json", cfg.Source.LeafName)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: warn\n"), 0644))
	t.Setenv("INVOICE_METRICS_LOG_LEVEL", "error")
	t.Setenv("INVOICE_METRICS_SCORING_TOLERANCE", "0.05")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "0.05", cfg.Scoring.Tolerance)
}

func TestLoadLegacyEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PROCESSED_BUCKET", "processed")
	t.Setenv("MINIO_BUCKET", "facturas")
	t.Setenv("MINIO_ENDPOINT", "s3.local:9000")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/metrics")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "processed", cfg.Storage.Bucket, "PROCESSED_BUCKET wins over MINIO_BUCKET")
	assert.Equal(t, "s3.local:9000", cfg.Storage.Endpoint)
	assert.True(t, cfg.Storage.UseSSL)
	assert.Equal(t, "postgres://u:p@db/metrics", cfg.Store.DatabaseURL)
	assert.Equal(t, "UTC", cfg.Source.Timezone)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadPrefixedEnvWinsOverLegacy(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PROCESSED_BUCKET", "legacy")
	t.Setenv("INVOICE_METRICS_STORAGE_BUCKET", "prefixed")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Storage.Bucket)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [\n"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func validDefaults() *Config {
	return &Config{
		Storage: StorageConfig{Endpoint: "minio:9000"},
		Source:  SourceConfig{Timezone: "America/Chicago"},
		Scoring: ScoringConfig{SampleLimit: 12},
		Server:  ServerConfig{Port: 8081},
		Auth:    AuthConfig{OperatorName: "metrics"},
	}
}

func TestValidateScore(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.bucket is required")

	cfg.Storage.Bucket = "processed"
	assert.NoError(t, cfg.Validate("score"))
	assert.NoError(t, cfg.Validate("render"))
}

func TestValidateScoreLocal(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("score-local"))
}

func TestValidateServe_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "auth.jwt_secret is required")
	assert.Contains(t, err.Error(), "operator password hash")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateServe_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Auth.JWTSecret = "s3cret"
	cfg.Auth.OperatorPasswordHash = "$2a$10$abc"
	cfg.Store.DatabaseURL = "postgres://localhost/metrics"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateBadTimezone(t *testing.T) {
	cfg := validDefaults()
	cfg.Source.Timezone = "Mars/Olympus"
	err := cfg.Validate("score-local")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.timezone is invalid")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestAccounts(t *testing.T) {
	a := AuthConfig{
		OperatorName:         "metrics",
		OperatorPasswordHash: "h1",
		Operators:            map[string]string{"alice": "h2", "bob": ""},
	}
	assert.Equal(t, map[string]string{"metrics": "h1", "alice": "h2"}, a.Accounts())

	a.OperatorPasswordHash = ""
	assert.Equal(t, map[string]string{"alice": "h2"}, a.Accounts())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, SourceConfig{Timezone: "nowhere"}.Location())
	assert.Equal(t, "America/Chicago", SourceConfig{Timezone: "America/Chicago"}.Location().String())
}

func TestMasked(t *testing.T) {
	cfg := Config{
		Storage: StorageConfig{AccessKey: "ak", SecretKey: "sk"},
		Store:   StoreConfig{DatabaseURL: "postgres://user:pw@db:5432/metrics"},
		Auth: AuthConfig{
			JWTSecret: "jwt",
			Operators: map[string]string{"alice": "hash"},
		},
	}
	m := cfg.Masked()
	assert.Equal(t, "ak", m.Storage.AccessKey)
	assert.Equal(t, "********", m.Storage.SecretKey)
	assert.Equal(t, "********", m.Auth.JWTSecret)
	assert.Equal(t, "", m.Auth.OperatorPasswordHash)
	assert.Equal(t, "********", m.Auth.Operators["alice"])
	assert.Equal(t, "postgres://user:********@db:5432/metrics", m.Store.DatabaseURL)

	assert.Equal(t, "hash", cfg.Auth.Operators["alice"], "original untouched")
}

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
