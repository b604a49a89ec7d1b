// Package config loads service configuration from file and environment.
//
// Precedence follows viper: explicit environment variables (prefix
// STUDYBUDDY_) override the config file, which overrides defaults. Only
// values without a safe default are required.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/studybuddy/studybuddy/internal/chunker"
)

// Validation errors.
var (
	ErrMissingGeminiAPIKey  = errors.New("config: gemini api key is required")
	ErrMissingDatabaseName  = errors.New("config: database name is required")
	ErrInvalidChunking      = errors.New("config: chunk overlap must be smaller than chunk size")
	ErrInvalidDimension     = errors.New("config: embedding dimension must be positive")
	ErrInvalidRetrievalSpan = errors.New("config: retrieval limit must be positive")
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr          string `mapstructure:"addr"`
	MaxUploadSize int64  `mapstructure:"max_upload_size"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString returns a pgx-compatible connection URL.
func (c DatabaseConfig) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Name,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// GeminiConfig configures the embedding client.
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	Dimension         int32   `mapstructure:"dimension"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// ChunkingConfig configures text splitting.
type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// RetrievalConfig configures default query behavior.
type RetrievalConfig struct {
	Limit     int     `mapstructure:"limit"`
	Threshold float64 `mapstructure:"threshold"`
}

// BlobConfig configures upload archival.
type BlobConfig struct {
	Dir string `mapstructure:"dir"`
}

// TracingConfig configures OpenTelemetry trace export.
type TracingConfig struct {
	// Enabled turns span export on. The instrumentation itself is always
	// present; disabled means the global no-op tracer.
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Environment string `mapstructure:"environment"`
	ServiceName string `mapstructure:"service_name"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Load reads configuration from an optional config file and the
// environment. path may be empty, in which case only defaults and
// environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_upload_size", int64(32<<20))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "studybuddy")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("gemini.model", "gemini-embedding-001")
	v.SetDefault("gemini.dimension", 768)
	v.SetDefault("gemini.requests_per_second", 5.0)
	v.SetDefault("chunking.size", chunker.DefaultSize)
	v.SetDefault("chunking.overlap", chunker.DefaultOverlap)
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("retrieval.limit", 5)
	v.SetDefault("retrieval.threshold", 0.5)
	v.SetDefault("blob.dir", "data/uploads")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.environment", "dev")
	v.SetDefault("tracing.service_name", "studybuddy")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetEnvPrefix("STUDYBUDDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants every command depends on. Commands with
// extra requirements layer their own checks on top (see ValidateServe).
func (c *Config) Validate() error {
	if c.Database.Name == "" {
		return ErrMissingDatabaseName
	}
	if c.Gemini.Dimension <= 0 {
		return ErrInvalidDimension
	}
	if c.Chunking.Size <= 0 || c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return ErrInvalidChunking
	}
	if c.Retrieval.Limit <= 0 {
		return ErrInvalidRetrievalSpan
	}
	return nil
}

// ValidateServe checks the additional values the serve command needs.
// Offline commands like migrate skip these.
func (c *Config) ValidateServe() error {
	if c.Gemini.APIKey == "" {
		return ErrMissingGeminiAPIKey
	}
	return nil
}

// String renders the configuration for startup logging with secrets masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"server.addr=%s database=%s@%s:%d/%s gemini.model=%s gemini.dimension=%d gemini.api_key=%s chunking=%d/%d retrieval=%d@%.2f blob.dir=%s",
		c.Server.Addr,
		c.Database.User, c.Database.Host, c.Database.Port, c.Database.Name,
		c.Gemini.Model, c.Gemini.Dimension, mask(c.Gemini.APIKey),
		c.Chunking.Size, c.Chunking.Overlap,
		c.Retrieval.Limit, c.Retrieval.Threshold,
		c.Blob.Dir,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}
