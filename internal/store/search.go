package store

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// Search results only ever come from indexed documents; documents mid
// pipeline or failed are invisible to both channels.

// NearestNeighbors returns the limit chunks closest to the query vector by
// cosine distance. Score is cosine similarity clamped to [0, 1]. Ties break
// on (document_id, chunk_index) so results are stable across runs.
func (s *Store) NearestNeighbors(ctx context.Context, embedding []float32, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.document_id, d.filename, c.chunk_index, c.content,
		       greatest(0, 1 - (c.embedding <=> $1)) AS score
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = $2
		ORDER BY c.embedding <=> $1, c.document_id, c.chunk_index
		LIMIT $3`,
		vec, StatusIndexed, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	return scanHits(rows)
}

// KeywordSearch returns the limit chunks best matching the query by
// full-text rank. The query goes through websearch_to_tsquery, so plain
// user phrasing (quotes, OR, minus) works without manual operators. Score
// is ts_rank with length normalization (flag 32), which keeps it in [0, 1).
// A query with no lexemes yields no hits.
func (s *Store) KeywordSearch(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.document_id, d.filename, c.chunk_index, c.content,
		       ts_rank(c.content_tsv, q, 32) AS score
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id,
		     websearch_to_tsquery('english', $1) q
		WHERE d.status = $2 AND c.content_tsv @@ q
		ORDER BY score DESC, c.document_id, c.chunk_index
		LIMIT $3`,
		query, StatusIndexed, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	return scanHits(rows)
}

func scanHits(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Hit, error) {
	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Filename, &h.ChunkIndex, &h.Content, &h.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search hits: %w", err)
	}
	return hits, nil
}
