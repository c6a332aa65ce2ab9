package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// Batch and length limits for the OpenAI embeddings endpoint.
const (
	openaiMaxBatchSize  = 100
	openaiMaxTextLength = 8000
)

// OpenAI embeds text through the OpenAI embeddings API.
type OpenAI struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewOpenAI creates a provider for the given model. The API key comes from
// OPENAI_API_KEY. dimension must match what the model actually produces;
// config validation cross-checks known models before this is called.
func NewOpenAI(model string, dimension int) (*OpenAI, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}
	return &OpenAI{
		client:    openai.NewClient(key),
		model:     model,
		dimension: dimension,
	}, nil
}

func (o *OpenAI) Name() string       { return "openai" }
func (o *OpenAI) Dimension() int     { return o.dimension }
func (o *OpenAI) MaxBatchSize() int  { return openaiMaxBatchSize }
func (o *OpenAI) MaxTextLength() int { return openaiMaxTextLength }

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(o.model),
		Input: texts,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	// Responses may arrive out of order; the Index field is authoritative.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai returned embedding with index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		copy(vec, d.Embedding)
		out[d.Index] = vec
	}
	return out, nil
}

// classifyOpenAIError wraps rate limits, server errors and network failures
// as transient so the client retries them. Everything else (bad request,
// invalid key) is permanent.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return &TransientError{Err: err}
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: err}
	}
	return err
}
