package config

import (
	"fmt"
	"math"
	"os"
)

// Known embedding model dimensions, used to cross-check configuration.
// A model absent from this map is accepted as long as an explicit dimension
// is configured.
var knownModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
}

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration and returns the first violation found.
// A dimension mismatch between the configured model and the vector column is
// a startup error here, never a runtime surprise during ingestion.
func (c *Config) Validate() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	switch c.EmbeddingProvider {
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY not set (required for provider %q)", ErrMissingAPIKey, ProviderOpenAI)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host must not be empty for provider %q", ErrInvalidProvider, ProviderOllama)
		}
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)", ErrInvalidProvider, c.EmbeddingProvider, ProviderOpenAI, ProviderOllama)
	}

	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimension, c.EmbeddingDimension)
	}
	if want, ok := knownModelDimensions[c.EmbeddingModel]; ok && want != c.EmbeddingDimension {
		return fmt.Errorf("%w: model %q produces %d dimensions, configured %d",
			ErrInvalidDimension, c.EmbeddingModel, want, c.EmbeddingDimension)
	}

	if c.ChunkSize < 100 || c.ChunkSize > 100_000 {
		return fmt.Errorf("%w: %d out of range [100, 100000]", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be in [0, chunk_size)", ErrInvalidChunkOverlap, c.ChunkOverlap)
	}

	if c.MaxConcurrentIngests < 1 || c.MaxConcurrentIngests > 64 {
		return fmt.Errorf("%w: %d out of range [1, 64]", ErrInvalidConcurrency, c.MaxConcurrentIngests)
	}

	if c.VectorWeight < 0 || c.KeywordWeight < 0 {
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidWeights)
	}
	if math.Abs(c.VectorWeight+c.KeywordWeight-1.0) > 1e-9 {
		return fmt.Errorf("%w: vector_weight + keyword_weight must equal 1, got %g",
			ErrInvalidWeights, c.VectorWeight+c.KeywordWeight)
	}

	if c.ContextTokenBudget <= 0 {
		return fmt.Errorf("context_token_budget must be positive, got %d", c.ContextTokenBudget)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}

	return nil
}
