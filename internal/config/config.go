// Package config provides application configuration with multi-source priority.
//
// Sources, highest to lowest:
//  1. Environment variables
//  2. Config file (~/.docindex/config.yaml or ./config.yaml)
//  3. Defaults
//
// Categories:
//   - Storage: PostgreSQL connection (storage.go)
//   - Embedding: provider selection, model, dimension
//   - Pipeline: chunking parameters, ingest concurrency
//   - Search: hybrid fusion weights, context token budget
//   - Server: HTTP listen address, upload limits
//
// Validation is fail-fast: Load returns an error before any component is
// constructed with bad parameters. Sentinel errors support errors.Is checks.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidChunkSize indicates chunk_size is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidChunkOverlap indicates chunk_overlap is negative or >= chunk_size.
	ErrInvalidChunkOverlap = errors.New("invalid chunk overlap")

	// ErrInvalidProvider indicates the embedding provider is not supported.
	ErrInvalidProvider = errors.New("invalid embedding provider")

	// ErrInvalidDimension indicates the embedding dimension is invalid.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidWeights indicates the hybrid search weights do not form a
	// convex combination.
	ErrInvalidWeights = errors.New("invalid search weights")

	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates an unknown sslmode value.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidConcurrency indicates max_concurrent_ingests is out of range.
	ErrInvalidConcurrency = errors.New("invalid ingest concurrency")
)

// Embedding provider identifiers used in Config.EmbeddingProvider.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config stores the application configuration.
type Config struct {
	// Storage (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Embedding provider
	EmbeddingProvider  string `mapstructure:"embedding_provider"` // "openai" (default) or "ollama"
	EmbeddingModel     string `mapstructure:"embedding_model"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension"`
	OllamaHost         string `mapstructure:"ollama_host"`

	// Ingestion pipeline
	ChunkSize            int `mapstructure:"chunk_size"`    // characters per chunk, overlap included
	ChunkOverlap         int `mapstructure:"chunk_overlap"` // characters carried over from the previous chunk
	MaxConcurrentIngests int `mapstructure:"max_concurrent_ingests"`

	// Hybrid search
	VectorWeight       float64 `mapstructure:"vector_weight"`
	KeywordWeight      float64 `mapstructure:"keyword_weight"`
	ContextTokenBudget int     `mapstructure:"context_token_budget"`

	// HTTP server
	ListenAddr     string `mapstructure:"listen_addr"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".docindex")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "docindex")
	v.SetDefault("postgres_password", "docindex_dev_password")
	v.SetDefault("postgres_db_name", "docindex")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Embedding defaults: OpenAI text-embedding-3-small, 1536 dimensions.
	// The dimension must match the vector column in db/migrations; changing
	// either requires re-embedding every stored chunk.
	v.SetDefault("embedding_provider", ProviderOpenAI)
	v.SetDefault("embedding_model", "text-embedding-3-small")
	v.SetDefault("embedding_dimension", 1536)
	v.SetDefault("ollama_host", "http://localhost:11434")

	// Pipeline defaults
	v.SetDefault("chunk_size", 1200)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("max_concurrent_ingests", 4)

	// Search defaults: equal-weight fusion
	v.SetDefault("vector_weight", 0.5)
	v.SetDefault("keyword_weight", 0.5)
	v.SetDefault("context_token_budget", 2048)

	// Server defaults
	v.SetDefault("listen_addr", "127.0.0.1:3500")
	v.SetDefault("max_upload_bytes", int64(50*1024*1024))
}

// bindEnvVariables binds environment overrides explicitly.
// OPENAI_API_KEY is read directly by the embedding provider, not via viper;
// Validate only checks its presence when the provider needs it.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("embedding_provider", "DOCINDEX_EMBEDDING_PROVIDER")
	mustBind("embedding_model", "DOCINDEX_EMBEDDING_MODEL")
	mustBind("embedding_dimension", "DOCINDEX_EMBEDDING_DIMENSION")
	mustBind("ollama_host", "DOCINDEX_OLLAMA_HOST")
	mustBind("listen_addr", "DOCINDEX_LISTEN_ADDR")
	mustBind("max_upload_bytes", "DOCINDEX_MAX_UPLOAD_BYTES")
	mustBind("chunk_size", "DOCINDEX_CHUNK_SIZE")
	mustBind("chunk_overlap", "DOCINDEX_CHUNK_OVERLAP")
	mustBind("max_concurrent_ingests", "DOCINDEX_MAX_CONCURRENT_INGESTS")
	mustBind("vector_weight", "DOCINDEX_VECTOR_WEIGHT")
	mustBind("keyword_weight", "DOCINDEX_KEYWORD_WEIGHT")
	mustBind("context_token_budget", "DOCINDEX_CONTEXT_TOKEN_BUDGET")
}
