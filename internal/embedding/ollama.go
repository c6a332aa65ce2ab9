package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// The Ollama embeddings endpoint takes one prompt per request, so batching
// happens client-side; the batch size only bounds how much work is lost when
// a request in the middle fails.
const (
	ollamaMaxBatchSize  = 16
	ollamaMaxTextLength = 8000
)

// Ollama embeds text through a local Ollama server's /api/embeddings
// endpoint.
type Ollama struct {
	baseURL   string
	model     string
	dimension int
	http      *http.Client
}

// NewOllama creates a provider against host (for example
// "http://localhost:11434"). dimension must match the model's output width.
func NewOllama(host, model string, dimension int) *Ollama {
	return &Ollama{
		baseURL:   strings.TrimRight(host, "/"),
		model:     model,
		dimension: dimension,
		http:      &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *Ollama) Name() string       { return "ollama" }
func (o *Ollama) Dimension() int     { return o.dimension }
func (o *Ollama) MaxBatchSize() int  { return ollamaMaxBatchSize }
func (o *Ollama) MaxTextLength() int { return ollamaMaxTextLength }

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := o.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (o *Ollama) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbeddingRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &TransientError{Err: err, RetryAfter: retryAfter(resp)}
		}
		return nil, err
	}

	var parsed ollamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding ollama response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding for model %q", o.model)
	}
	return parsed.Embedding, nil
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
