package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// FakeEmbedder is a deterministic embedding provider for tests. Vectors are
// derived from a hash of the text, so identical texts embed identically and
// different texts are very unlikely to collide. No network involved.
type FakeEmbedder struct {
	Dim       int
	BatchSize int

	// Err, when set, is returned by every Embed call.
	Err error

	mu    sync.Mutex
	calls int
}

func (f *FakeEmbedder) Name() string      { return "fake" }
func (f *FakeEmbedder) Dimension() int    { return f.Dim }
func (f *FakeEmbedder) MaxTextLength() int { return 8000 }

func (f *FakeEmbedder) MaxBatchSize() int {
	if f.BatchSize <= 0 {
		return 100
	}
	return f.BatchSize
}

// Calls reports how many Embed invocations the provider has served.
func (f *FakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vector(text)
	}
	return out, nil
}

func (f *FakeEmbedder) vector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, f.Dim)
	var norm float64
	for i := range vec {
		// xorshift keeps the sequence deterministic per seed.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v := float32(int64(seed%2000)-1000) / 1000
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}
