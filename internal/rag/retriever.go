// Package rag implements hybrid retrieval and context assembly over the
// indexed corpus.
//
// Retrieval runs two channels against the store, a vector similarity search
// and a PostgreSQL full-text search, and fuses them into one ranking by
// weighted score. Both channel scores arrive on a fixed [0, 1] scale
// (cosine similarity and length-normalized ts_rank), so fusion is a plain
// weighted sum with no per-query renormalization; scores stay comparable
// across queries.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/csw48/AI-autonomous-platform/internal/store"
)

// ErrEmptyQuery indicates a blank search query.
var ErrEmptyQuery = errors.New("empty search query")

// overfetchFactor is how many candidates each channel contributes per
// requested result. Fusion can promote a chunk ranked low in one channel,
// so each channel fetches more than k.
const overfetchFactor = 4

// DefaultTopK is the result count when the caller does not specify one.
const DefaultTopK = 5

// Searcher is the store surface the retriever needs.
type Searcher interface {
	NearestNeighbors(ctx context.Context, embedding []float32, limit int) ([]store.Hit, error)
	KeywordSearch(ctx context.Context, query string, limit int) ([]store.Hit, error)
}

// QueryEmbedder turns a search query into a vector.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Result is one fused search hit. VectorScore and KeywordScore are the raw
// channel scores, zero when the channel did not surface the chunk; the
// embedded Hit's Score is their weighted sum.
type Result struct {
	store.Hit
	VectorScore  float64
	KeywordScore float64
}

// Weights splits scoring influence between the two channels. They must be
// non-negative and sum to 1; config validation enforces this before a
// Retriever is built.
type Weights struct {
	Vector  float64
	Keyword float64
}

// Retriever performs hybrid search. Safe for concurrent use.
type Retriever struct {
	searcher Searcher
	embedder QueryEmbedder
	weights  Weights
	logger   *slog.Logger
}

// NewRetriever creates a Retriever. logger may be nil.
func NewRetriever(searcher Searcher, embedder QueryEmbedder, weights Weights, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		searcher: searcher,
		embedder: embedder,
		weights:  weights,
		logger:   logger,
	}
}

// Search returns the topK best chunks for query. Results are ordered by
// fused score descending, with ties broken by (document ID, chunk index)
// so identical corpora always rank identically. A chunk matched by both
// channels appears once with both scores combined.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	fetch := topK * overfetchFactor

	embedding, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var vectorHits, keywordHits []store.Hit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vectorHits, err = r.searcher.NearestNeighbors(gctx, embedding, fetch)
		return err
	})
	g.Go(func() error {
		var err error
		keywordHits, err = r.searcher.KeywordSearch(gctx, query, fetch)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := r.fuse(vectorHits, keywordHits)
	if len(results) > topK {
		results = results[:topK]
	}

	r.logger.Debug("hybrid search",
		"query_length", len(query),
		"vector_hits", len(vectorHits),
		"keyword_hits", len(keywordHits),
		"results", len(results))
	return results, nil
}

// fuse merges the two channel result sets into one ranking, deduplicating
// by chunk ID.
func (r *Retriever) fuse(vectorHits, keywordHits []store.Hit) []Result {
	merged := make(map[uuid.UUID]*Result, len(vectorHits)+len(keywordHits))

	for _, h := range vectorHits {
		merged[h.ChunkID] = &Result{Hit: h, VectorScore: h.Score}
	}
	for _, h := range keywordHits {
		if res, ok := merged[h.ChunkID]; ok {
			res.KeywordScore = h.Score
		} else {
			merged[h.ChunkID] = &Result{Hit: h, KeywordScore: h.Score}
		}
	}

	results := make([]Result, 0, len(merged))
	for _, res := range merged {
		res.Score = r.weights.Vector*res.VectorScore + r.weights.Keyword*res.KeywordScore
		results = append(results, *res)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID.String() < results[j].DocumentID.String()
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})
	return results
}
