// Package config loads the metrics service configuration.
package config

import (
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envPrefix = "INVOICE_METRICS"

// Config holds the full application configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Auth    AuthConfig    `yaml:"auth" mapstructure:"auth"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StorageConfig points at the S3 compatible bucket holding processed
// invoices and metric artifacts.
type StorageConfig struct {
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey       string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey       string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Region          string `yaml:"region" mapstructure:"region"`
	UseSSL          bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	PresignTTLHours int    `yaml:"presign_ttl_hours" mapstructure:"presign_ttl_hours"`
}

// SourceConfig describes where a day's cases live and where artifacts go.
type SourceConfig struct {
	PrefixTemplate  string `yaml:"prefix_template" mapstructure:"prefix_template"`
	MetricsTemplate string `yaml:"metrics_template" mapstructure:"metrics_template"`
	LeafName        string `yaml:"leaf_name" mapstructure:"leaf_name"`
	Timezone        string `yaml:"timezone" mapstructure:"timezone"`
}

// ScoringConfig tunes the comparison.
type ScoringConfig struct {
	Tolerance   string `yaml:"tolerance" mapstructure:"tolerance"`
	SampleLimit int    `yaml:"sample_limit" mapstructure:"sample_limit"`
	PreviewRows int    `yaml:"preview_rows" mapstructure:"preview_rows"`
}

// StoreConfig configures the optional Postgres history.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// AuthConfig holds API credentials. Operators maps a login name to a bcrypt
// hash of its password.
type AuthConfig struct {
	JWTSecret            string            `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTLHours        int               `yaml:"token_ttl_hours" mapstructure:"token_ttl_hours"`
	OperatorName         string            `yaml:"operator_name" mapstructure:"operator_name"`
	OperatorPasswordHash string            `yaml:"operator_password_hash" mapstructure:"operator_password_hash"`
	Operators            map[string]string `yaml:"operators" mapstructure:"operators"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// legacyEnv lists the environment names used by existing deployments. They
// are consulted after the prefixed name.
var legacyEnv = map[string][]string{
	"storage.endpoint":   {"MINIO_ENDPOINT"},
	"storage.access_key": {"MINIO_ACCESS_KEY"},
	"storage.secret_key": {"MINIO_SECRET_KEY"},
	"storage.bucket":     {"PROCESSED_BUCKET", "MINIO_BUCKET"},
	"storage.use_ssl":    {"MINIO_USE_SSL"},
	"storage.region":     {"AWS_REGION"},
	"store.database_url": {"DATABASE_URL"},
	"source.timezone":    {"TIMEZONE"},
	"auth.jwt_secret":    {"JWT_SECRET"},
	"server.port":        {"PORT"},
	"server.host":        {"HOST"},
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("storage.endpoint", "minio:9000")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.presign_ttl_hours", 24)
	v.SetDefault("source.prefix_template", "invoices/processed/{yyyy}/{mm}/{dd}/")
	v.SetDefault("source.metrics_template", "metrics/{yyyy}/{mm}/{dd}/")
	v.SetDefault("source.leaf_name", "parsed.json")
	v.SetDefault("source.timezone", "America/Chicago")
	v.SetDefault("scoring.tolerance", "0.01")
	v.SetDefault("scoring.sample_limit", 12)
	v.SetDefault("scoring.preview_rows", 6)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.schema", "public")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8081)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_hours", 12)
	v.SetDefault("auth.operator_name", "metrics")
	v.SetDefault("auth.operator_password_hash", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a command relies on are present.
func (c *Config) Validate(mode string) error {
	var problems []string
	require := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "score-local":
	case "score", "render":
		require(c.Storage.Endpoint != "", "storage.endpoint is required")
		require(c.Storage.Bucket != "", "storage.bucket is required (--bucket or PROCESSED_BUCKET)")
	case "store":
		require(c.Store.DatabaseURL != "", "store.database_url is required")
	case "serve":
		require(c.Server.Port > 0, "server.port must be > 0")
		require(c.Auth.JWTSecret != "", "auth.jwt_secret is required")
		require(len(c.Auth.Accounts()) > 0, "auth: at least one operator password hash is required")
		require(c.Store.DatabaseURL != "", "store.database_url is required")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if _, err := time.LoadLocation(c.Source.Timezone); err != nil {
		problems = append(problems, "source.timezone is invalid: "+c.Source.Timezone)
	}
	if c.Scoring.SampleLimit < 0 {
		problems = append(problems, "scoring.sample_limit must be >= 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Accounts merges the single operator settings with the operators map.
func (a AuthConfig) Accounts() map[string]string {
	out := make(map[string]string, len(a.Operators)+1)
	for name, hash := range a.Operators {
		if hash != "" {
			out[name] = hash
		}
	}
	if a.OperatorName != "" && a.OperatorPasswordHash != "" {
		out[a.OperatorName] = a.OperatorPasswordHash
	}
	return out
}

// Location resolves the configured timezone, falling back to UTC.
func (s SourceConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PresignTTL returns the lifetime of presigned report links.
func (s StorageConfig) PresignTTL() time.Duration {
	if s.PresignTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.PresignTTLHours) * time.Hour
}

// Masked returns a copy with secrets replaced, for display.
func (c Config) Masked() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Storage.SecretKey = mask(c.Storage.SecretKey)
	c.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	c.Auth.OperatorPasswordHash = mask(c.Auth.OperatorPasswordHash)
	if len(c.Auth.Operators) > 0 {
		ops := make(map[string]string, len(c.Auth.Operators))
		for name, hash := range c.Auth.Operators {
			ops[name] = mask(hash)
		}
		c.Auth.Operators = ops
	}
	c.Store.DatabaseURL = maskURL(c.Store.DatabaseURL)
	return c
}

// maskURL hides the password part of a connection URL.
func maskURL(u string) string {
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return u
	}
	creds := u[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		creds = creds[:colon] + ":********"
	}
	return u[:scheme+3] + creds + u[at:]
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
