// Package store persists documents and their embedded chunks in PostgreSQL
// with pgvector, and serves both retrieval channels of hybrid search.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidStatus indicates an attempt to write an unknown status.
	ErrInvalidStatus = errors.New("invalid document status")

	// ErrUnavailable marks a store write that kept failing after its retry;
	// the ingestion pipeline reports it as a terminal indexing failure.
	ErrUnavailable = errors.New("store unavailable")
)

// DB is the subset of pgxpool.Pool the store needs. Defined here so tests
// can substitute a transaction or a lighter fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a Store. logger may be nil.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

const documentColumns = `id, filename, content_type, size_bytes, status, error, chunk_count, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Filename, &d.ContentType, &d.SizeBytes, &d.Status,
		&d.Error, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// CreateDocument registers a new document in StatusPending.
func (s *Store) CreateDocument(ctx context.Context, id uuid.UUID, filename, contentType string, sizeBytes int64) (Document, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO documents (id, filename, content_type, size_bytes, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+documentColumns,
		id, filename, contentType, sizeBytes, StatusPending)

	doc, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("failed to create document: %w", err)
	}
	s.logger.Debug("created document", "id", doc.ID, "filename", filename, "size_bytes", sizeBytes)
	return doc, nil
}

// GetDocument fetches a document by ID.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	row := s.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns documents ordered by creation time, newest first,
// together with the total count for pagination. Page.Status, when set,
// filters both the page and the count.
func (s *Store) ListDocuments(ctx context.Context, page Page) ([]Document, int64, error) {
	if page.Limit <= 0 {
		page.Limit = 50
	}
	if page.Offset < 0 {
		page.Offset = 0
	}
	if page.Status != "" && !page.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, page.Status)
	}

	countQuery := `SELECT count(*) FROM documents`
	listQuery := `SELECT ` + documentColumns + ` FROM documents`
	var countArgs, listArgs []any
	if page.Status != "" {
		countQuery += ` WHERE status = $1`
		listQuery += ` WHERE status = $1`
		countArgs = append(countArgs, page.Status)
		listArgs = append(listArgs, page.Status)
	}
	listQuery += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		len(listArgs)+1, len(listArgs)+2)
	listArgs = append(listArgs, page.Limit, page.Offset)

	var total int64
	if err := s.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	rows, err := s.db.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, total, nil
}

// DeleteDocument removes a document and its chunks. Chunks go through the
// foreign key cascade, so a single statement keeps the pair atomic.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.logger.Debug("deleted document", "id", id)
	return nil
}

// UpdateStatus moves a document to a new pipeline status. failure carries
// the stage-prefixed message for StatusFailed and must be empty otherwise.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, failure string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if status != StatusFailed && failure != "" {
		return fmt.Errorf("%w: failure message only allowed with %q", ErrInvalidStatus, StatusFailed)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE documents SET status = $2, error = $3, updated_at = now()
		WHERE id = $1`,
		id, status, failure)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ResetDocument prepares a document for re-ingestion: existing chunks are
// dropped and the status returns to StatusPending, atomically.
func (s *Store) ResetDocument(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("failed to drop chunks: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE documents SET status = $2, error = '', chunk_count = 0, updated_at = now()
		WHERE id = $1`,
		id, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to reset document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	return nil
}

// UpsertChunks replaces a document's chunks in one transaction and marks it
// indexed. Either every chunk lands and the status flips to StatusIndexed,
// or nothing changes; a half-indexed document is never visible to search.
func (s *Store) UpsertChunks(ctx context.Context, documentID uuid.UUID, chunks []Chunk) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to clear previous chunks: %w", err)
	}

	for _, c := range chunks {
		vec := pgvector.NewVector(c.Embedding)
		_, err := tx.Exec(ctx, `
			INSERT INTO document_chunks (id, document_id, chunk_index, content, token_count, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, documentID, c.ChunkIndex, c.Content, c.TokenCount, vec)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE documents SET status = $2, error = '', chunk_count = $3, updated_at = now()
		WHERE id = $1`,
		documentID, StatusIndexed, len(chunks))
	if err != nil {
		return fmt.Errorf("failed to mark document indexed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	s.logger.Debug("upserted chunks", "document_id", documentID, "chunks", len(chunks))
	return nil
}

// GetChunks returns a document's chunks ordered by chunk index.
func (s *Store) GetChunks(ctx context.Context, documentID uuid.UUID) ([]Chunk, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, chunk_index, content, token_count, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.TokenCount, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return chunks, nil
}

// Stats returns corpus-wide counters for the stats endpoint.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByStatus: make(map[Status]int)}

	rows, err := s.db.Query(ctx, `SELECT status, count(*) FROM documents GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats.ByStatus[status] = count
		stats.TotalDocuments += int64(count)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("failed to read stats: %w", err)
	}

	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM document_chunks`).Scan(&stats.TotalChunks); err != nil {
		return Stats{}, fmt.Errorf("failed to count chunks: %w", err)
	}
	return stats, nil
}
