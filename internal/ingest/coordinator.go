// Package ingest drives documents through the indexing pipeline.
//
// A document moves pending -> parsing -> chunking -> embedding -> indexed,
// or to failed with a stage-prefixed error message. The Coordinator caps
// how many documents are in flight at once and guarantees at most one
// active ingestion per document.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/csw48/AI-autonomous-platform/internal/chunker"
	"github.com/csw48/AI-autonomous-platform/internal/store"
)

var (
	// ErrAlreadyRunning indicates the document has an ingestion in flight.
	ErrAlreadyRunning = errors.New("ingestion already running for document")

	// ErrNotRunning indicates a cancel request for an idle document.
	ErrNotRunning = errors.New("no ingestion running for document")

	// ErrShuttingDown indicates the coordinator no longer accepts work.
	ErrShuttingDown = errors.New("ingestion coordinator shutting down")

	// ErrEmptyDocument indicates a zero-byte upload, rejected before any
	// document record is created.
	ErrEmptyDocument = errors.New("empty document")

	// ErrNotFailed indicates a resubmit for a document that has not failed.
	ErrNotFailed = errors.New("document has not failed")
)

// DocumentStore is the persistence surface the coordinator needs.
type DocumentStore interface {
	CreateDocument(ctx context.Context, id uuid.UUID, filename, contentType string, sizeBytes int64) (store.Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (store.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status store.Status, failure string) error
	ResetDocument(ctx context.Context, id uuid.UUID) error
	UpsertChunks(ctx context.Context, documentID uuid.UUID, chunks []store.Chunk) error
}

// Extractor converts uploaded bytes to plain text.
type Extractor interface {
	Extract(data []byte, contentType string) (string, error)
}

// Embedder batches texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Stats counts pipeline outcomes since startup.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Indexed   int64 `json:"indexed"`
	Failed    int64 `json:"failed"`
	Canceled  int64 `json:"canceled"`
	InFlight  int64 `json:"in_flight"`
}

// Coordinator runs the ingestion pipeline. Safe for concurrent use.
type Coordinator struct {
	store     DocumentStore
	extractor Extractor
	splitter  *chunker.Splitter
	embedder  Embedder
	logger    *slog.Logger

	sem     *semaphore.Weighted
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	closed  bool

	submitted atomic.Int64
	indexed   atomic.Int64
	failed    atomic.Int64
	canceled  atomic.Int64
	inFlight  atomic.Int64
}

// New creates a Coordinator allowing maxConcurrent simultaneous pipeline
// runs. logger may be nil.
func New(docs DocumentStore, extractor Extractor, splitter *chunker.Splitter, embedder Embedder, maxConcurrent int, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:     docs,
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		logger:    logger,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		baseCtx:   baseCtx,
		cancel:    cancel,
		running:   make(map[uuid.UUID]context.CancelFunc),
	}
}

// Submit registers a new document and starts its pipeline in the
// background. The returned document is in StatusPending; callers poll
// GetDocument for progress. The pipeline outlives the request context by
// design, so it runs under the coordinator's base context.
func (c *Coordinator) Submit(ctx context.Context, filename, contentType string, data []byte) (store.Document, error) {
	if len(data) == 0 {
		return store.Document{}, ErrEmptyDocument
	}
	doc, err := c.store.CreateDocument(ctx, uuid.New(), filename, contentType, int64(len(data)))
	if err != nil {
		return store.Document{}, err
	}
	if err := c.start(doc.ID, contentType, data); err != nil {
		return store.Document{}, err
	}
	return doc, nil
}

// Resubmit re-runs the pipeline for a failed document with fresh bytes.
// Previous chunks are dropped before the pipeline starts; documents in any
// other state are rejected with ErrNotFailed.
func (c *Coordinator) Resubmit(ctx context.Context, id uuid.UUID, contentType string, data []byte) (store.Document, error) {
	if len(data) == 0 {
		return store.Document{}, ErrEmptyDocument
	}
	c.mu.Lock()
	_, active := c.running[id]
	c.mu.Unlock()
	if active {
		return store.Document{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}

	doc, err := c.store.GetDocument(ctx, id)
	if err != nil {
		return store.Document{}, err
	}
	if doc.Status != store.StatusFailed {
		return store.Document{}, fmt.Errorf("%w: %s is %s", ErrNotFailed, id, doc.Status)
	}

	if err := c.store.ResetDocument(ctx, id); err != nil {
		return store.Document{}, err
	}
	doc, err = c.store.GetDocument(ctx, id)
	if err != nil {
		return store.Document{}, err
	}
	if err := c.start(id, contentType, data); err != nil {
		return store.Document{}, err
	}
	return doc, nil
}

// Cancel aborts a running ingestion. The document ends in StatusFailed
// with a cancellation message.
func (c *Coordinator) Cancel(id uuid.UUID) error {
	c.mu.Lock()
	cancel, ok := c.running[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, id)
	}
	cancel()
	return nil
}

// Stats returns pipeline counters since startup.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Submitted: c.submitted.Load(),
		Indexed:   c.indexed.Load(),
		Failed:    c.failed.Load(),
		Canceled:  c.canceled.Load(),
		InFlight:  c.inFlight.Load(),
	}
}

// Close stops accepting work, cancels running pipelines, and waits for
// them to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// start registers the document as running and launches its pipeline.
func (c *Coordinator) start(id uuid.UUID, contentType string, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrShuttingDown
	}
	if _, active := c.running[id]; active {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}
	runCtx, cancelRun := context.WithCancel(c.baseCtx)
	c.running[id] = cancelRun
	c.mu.Unlock()

	c.submitted.Add(1)
	c.inFlight.Add(1)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		defer c.inFlight.Add(-1)
		defer cancelRun()
		defer func() {
			c.mu.Lock()
			delete(c.running, id)
			c.mu.Unlock()
		}()

		if err := c.sem.Acquire(runCtx, 1); err != nil {
			c.finishFailed(id, runCtx, fmt.Errorf("queued: %w", err))
			return
		}
		defer c.sem.Release(1)

		if err := c.run(runCtx, id, contentType, data); err != nil {
			c.finishFailed(id, runCtx, err)
			return
		}
		c.indexed.Add(1)
	}()

	return nil
}

// run executes the pipeline stages for one document. Errors come back
// stage-prefixed so the stored failure message names where it broke.
func (c *Coordinator) run(ctx context.Context, id uuid.UUID, contentType string, data []byte) error {
	// Parsing.
	if err := c.store.UpdateStatus(ctx, id, store.StatusParsing, ""); err != nil {
		return fmt.Errorf("parsing: %w", err)
	}
	text, err := c.extractor.Extract(data, contentType)
	if err != nil {
		return fmt.Errorf("parsing: %w", err)
	}

	// Chunking.
	if err := c.store.UpdateStatus(ctx, id, store.StatusChunking, ""); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	var texts []string
	var spans []chunker.TextChunk
	for chunk := range c.splitter.Split(text) {
		texts = append(texts, chunk.Text)
		spans = append(spans, chunk)
	}
	if len(texts) == 0 {
		return fmt.Errorf("chunking: document produced no chunks")
	}

	// Embedding. A mid-batch failure discards the vectors already
	// produced; the document is re-embedded from scratch on retry so the
	// index never holds a partial set.
	if err := c.store.UpdateStatus(ctx, id, store.StatusEmbedding, ""); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}

	// Indexing.
	chunks := make([]store.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = store.Chunk{
			ID:         uuid.New(),
			DocumentID: id,
			ChunkIndex: span.Index,
			Content:    span.Text,
			TokenCount: estimateTokens(span.Text),
			Embedding:  vectors[i],
		}
	}
	// Storage writes get exactly one retry; embedding retries already
	// happened inside the client.
	if err := c.store.UpsertChunks(ctx, id, chunks); err != nil {
		c.logger.Warn("chunk upsert failed, retrying once", "id", id, "error", err)
		if err := c.store.UpsertChunks(ctx, id, chunks); err != nil {
			return fmt.Errorf("indexing: %w: %v", store.ErrUnavailable, err)
		}
	}

	c.logger.Info("document indexed", "id", id, "chunks", len(chunks))
	return nil
}

// finishFailed records a pipeline failure. Status writes use the
// background context: the run context is usually already canceled or
// expired, and the failure must still land in the store.
func (c *Coordinator) finishFailed(id uuid.UUID, runCtx context.Context, err error) {
	msg := err.Error()
	if errors.Is(runCtx.Err(), context.Canceled) {
		c.canceled.Add(1)
		msg = "canceled: ingestion aborted"
	} else {
		c.failed.Add(1)
	}

	if updateErr := c.store.UpdateStatus(context.Background(), id, store.StatusFailed, msg); updateErr != nil {
		c.logger.Error("failed to record ingestion failure",
			"id", id, "failure", msg, "error", updateErr)
		return
	}
	c.logger.Warn("document ingestion failed", "id", id, "failure", msg)
}

// estimateTokens approximates token usage at four bytes per token.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
