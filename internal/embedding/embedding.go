// Package embedding converts text into fixed-length vectors through a
// pluggable provider.
//
// The Client wraps a Provider with the operational concerns the pipeline
// needs: transparent sub-batching at the provider's batch limit, text
// truncation at its length limit, request pacing, and bounded exponential
// retry for transient failures. Output order always matches input order.
//
// Vectors are L2-normalized before they are returned, so cosine distance
// and inner product rank identically downstream. The store's vector column
// assumes this; changing it requires re-embedding every stored chunk.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

var (
	// ErrEmbeddingFailed indicates the retry budget was exhausted or the
	// provider returned an unusable response.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrDimensionMismatch indicates the provider's vector dimensionality
	// does not match the store's configured dimensionality. This is a
	// construction-time error, never a runtime one.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// TransientError marks a provider failure worth retrying (timeout, rate
// limit, 5xx). RetryAfter, when non-zero, is the provider's own hint for
// the next attempt delay.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// BatchError reports a failed batch embedding. Succeeded holds the input
// indices whose vectors were already produced before the failure, so the
// caller can decide whether to keep or discard them. The ingestion
// coordinator discards them to keep a document all-or-nothing per stage.
type BatchError struct {
	Succeeded []int
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding batch failed after %d succeeded: %v", len(e.Succeeded), e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrEmbeddingFailed) match a BatchError.
func (e *BatchError) Is(target error) bool { return target == ErrEmbeddingFailed }

// Provider is the capability interface for an embedding backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name identifies the provider for logs and errors.
	Name() string

	// Dimension is the fixed length of every vector the provider returns.
	Dimension() int

	// MaxBatchSize is the largest number of texts accepted per call.
	MaxBatchSize() int

	// MaxTextLength is the largest text, in bytes, accepted per input.
	MaxTextLength() int

	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config tunes the client's retry and pacing behavior.
type Config struct {
	// MaxAttempts is the total number of tries per sub-batch. Default 3.
	MaxAttempts int

	// InitialBackoff is the first retry delay. Default 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential delay. Default 10s.
	MaxBackoff time.Duration

	// RequestsPerSecond paces provider calls. Zero disables pacing.
	RequestsPerSecond float64
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	return c
}

// Client is the embedding client shared by ingestion workers and search
// requests. It is safe for concurrent use.
type Client struct {
	provider Provider
	cfg      Config
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewClient wraps provider. storeDimension is the vector column width the
// store was migrated with; a mismatch fails here so it can never corrupt
// stored data at runtime.
func NewClient(provider Provider, storeDimension int, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if provider.Dimension() != storeDimension {
		return nil, fmt.Errorf("%w: provider %q produces %d dimensions, store configured for %d",
			ErrDimensionMismatch, provider.Name(), provider.Dimension(), storeDimension)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		provider: provider,
		cfg:      cfg.withDefaults(),
		limiter:  limiter,
		logger:   logger,
	}, nil
}

// Dimension returns the provider's vector dimensionality.
func (c *Client) Dimension() int { return c.provider.Dimension() }

// Embed embeds texts, preserving order: output[i] corresponds to texts[i].
// Oversized batches are split at the provider's limit; oversized texts are
// truncated at a rune boundary. On failure the returned error is a
// *BatchError carrying the indices already embedded.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	batchSize := c.provider.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = 1
	}

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		sub := make([]string, end-start)
		for i, t := range texts[start:end] {
			sub[i] = truncate(t, c.provider.MaxTextLength())
		}

		vectors, err := c.embedWithRetry(ctx, sub)
		if err != nil {
			return nil, &BatchError{Succeeded: indices(start), Err: err}
		}
		if len(vectors) != len(sub) {
			return nil, &BatchError{
				Succeeded: indices(start),
				Err: fmt.Errorf("%w: provider %q returned %d vectors for %d texts",
					ErrEmbeddingFailed, c.provider.Name(), len(vectors), len(sub)),
			}
		}
		for i, v := range vectors {
			if len(v) != c.provider.Dimension() {
				return nil, &BatchError{
					Succeeded: indices(start),
					Err: fmt.Errorf("%w: vector %d has %d dimensions, want %d",
						ErrEmbeddingFailed, start+i, len(v), c.provider.Dimension()),
				}
			}
			normalize(v)
		}
		out = append(out, vectors...)
	}

	return out, nil
}

// EmbedOne embeds a single text, used for search queries.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedWithRetry calls the provider with bounded exponential backoff.
// Transient errors are retried until the attempt budget runs out; a
// provider retry hint overrides the computed delay. Permanent errors
// abort immediately.
func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialBackoff
	policy.MaxInterval = c.cfg.MaxBackoff
	policy.Reset()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vectors, err := c.provider.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var transient *TransientError
		if !errors.As(err, &transient) {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		lastErr = err

		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := policy.NextBackOff()
		if transient.RetryAfter > 0 {
			delay = transient.RetryAfter
		}
		c.logger.Warn("transient embedding failure, retrying",
			"provider", c.provider.Name(),
			"attempt", attempt,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w: %d attempts exhausted: %v", ErrEmbeddingFailed, c.cfg.MaxAttempts, lastErr)
}

// indices returns [0, n).
func indices(n int) []int {
	if n == 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// truncate cuts s to at most max bytes without tearing a rune.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

// normalize scales v to unit L2 length in place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
