package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/csw48/AI-autonomous-platform/internal/store"
	"github.com/csw48/AI-autonomous-platform/internal/testutil"
)

func setup(t *testing.T) *store.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	db := testutil.SetupPostgres(t)
	return store.New(db.Pool, nil)
}

func createDoc(t *testing.T, s *store.Store, filename string) store.Document {
	t.Helper()
	doc, err := s.CreateDocument(context.Background(), uuid.New(), filename, "text/plain", 128)
	require.NoError(t, err, "CreateDocument")
	return doc
}

// makeChunks builds n chunks with trivially distinct unit embeddings.
func makeChunks(docID uuid.UUID, n, dim int, texts ...string) []store.Chunk {
	chunks := make([]store.Chunk, n)
	for i := range chunks {
		vec := make([]float32, dim)
		vec[i%dim] = 1
		content := "chunk content"
		if i < len(texts) {
			content = texts[i]
		}
		chunks[i] = store.Chunk{
			ID:         uuid.New(),
			DocumentID: docID,
			ChunkIndex: i,
			Content:    content,
			TokenCount: len(content) / 4,
			Embedding:  vec,
		}
	}
	return chunks
}

func TestDocumentLifecycle(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	doc := createDoc(t, s, "report.txt")
	if doc.Status != store.StatusPending {
		t.Errorf("new document status = %q, want %q", doc.Status, store.StatusPending)
	}

	got, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument() = %v", err)
	}
	if got.Filename != "report.txt" || got.SizeBytes != 128 {
		t.Errorf("round-trip mismatch: %+v", got)
	}

	if err := s.UpdateStatus(ctx, doc.ID, store.StatusParsing, ""); err != nil {
		t.Fatalf("UpdateStatus() = %v", err)
	}
	got, _ = s.GetDocument(ctx, doc.ID)
	if got.Status != store.StatusParsing {
		t.Errorf("status = %q, want %q", got.Status, store.StatusParsing)
	}

	if err := s.UpdateStatus(ctx, doc.ID, store.StatusFailed, "embedding: provider unavailable"); err != nil {
		t.Fatalf("UpdateStatus(failed) = %v", err)
	}
	got, _ = s.GetDocument(ctx, doc.ID)
	if got.Error != "embedding: provider unavailable" {
		t.Errorf("error message = %q", got.Error)
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument() = %v", err)
	}
	if _, err := s.GetDocument(ctx, doc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetDocument(deleted) = %v, want ErrNotFound", err)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s := setup(t)
	if _, err := s.GetDocument(context.Background(), uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetDocument() = %v, want ErrNotFound", err)
	}
}

func TestUpdateStatusRejectsInvalid(t *testing.T) {
	s := setup(t)
	doc := createDoc(t, s, "a.txt")

	if err := s.UpdateStatus(context.Background(), doc.ID, "exploded", ""); !errors.Is(err, store.ErrInvalidStatus) {
		t.Errorf("UpdateStatus(exploded) = %v, want ErrInvalidStatus", err)
	}
	if err := s.UpdateStatus(context.Background(), doc.ID, store.StatusIndexed, "message"); !errors.Is(err, store.ErrInvalidStatus) {
		t.Errorf("failure message on non-failed status accepted: %v", err)
	}
}

func TestListDocumentsStatusFilter(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		createDoc(t, s, "ok.txt")
	}
	failed := createDoc(t, s, "broken.txt")
	require.NoError(t, s.UpdateStatus(ctx, failed.ID, store.StatusFailed, "parsing: bad input"))

	docs, total, err := s.ListDocuments(ctx, store.Page{Limit: 10, Status: store.StatusFailed})
	if err != nil {
		t.Fatalf("ListDocuments(failed) = %v", err)
	}
	if total != 1 || len(docs) != 1 {
		t.Fatalf("filtered: total=%d len=%d, want 1/1", total, len(docs))
	}
	if docs[0].ID != failed.ID {
		t.Errorf("filtered list returned %s, want %s", docs[0].ID, failed.ID)
	}

	// The count honors the filter too, not just the page.
	docs, total, err = s.ListDocuments(ctx, store.Page{Limit: 2, Status: store.StatusPending})
	if err != nil {
		t.Fatalf("ListDocuments(pending) = %v", err)
	}
	if total != 3 || len(docs) != 2 {
		t.Errorf("pending page: total=%d len=%d, want 3/2", total, len(docs))
	}

	if _, _, err := s.ListDocuments(ctx, store.Page{Status: "exploded"}); !errors.Is(err, store.ErrInvalidStatus) {
		t.Errorf("ListDocuments(exploded) = %v, want ErrInvalidStatus", err)
	}
}

func TestListDocumentsPagination(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		createDoc(t, s, "doc.txt")
	}

	docs, total, err := s.ListDocuments(ctx, store.Page{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("ListDocuments() = %v", err)
	}
	if total != 5 || len(docs) != 2 {
		t.Errorf("page 1: total=%d len=%d, want 5/2", total, len(docs))
	}

	docs, _, err = s.ListDocuments(ctx, store.Page{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("ListDocuments(offset 4) = %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("last page has %d docs, want 1", len(docs))
	}
}

func TestUpsertChunksMarksIndexed(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	doc := createDoc(t, s, "chunky.txt")
	chunks := makeChunks(doc.ID, 3, 1536)

	if err := s.UpsertChunks(ctx, doc.ID, chunks); err != nil {
		t.Fatalf("UpsertChunks() = %v", err)
	}

	got, _ := s.GetDocument(ctx, doc.ID)
	if got.Status != store.StatusIndexed || got.ChunkCount != 3 {
		t.Errorf("after upsert: status=%q chunks=%d, want indexed/3", got.Status, got.ChunkCount)
	}

	stored, err := s.GetChunks(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetChunks() = %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("got %d chunks, want 3", len(stored))
	}
	for i, c := range stored {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
	}
}

func TestUpsertChunksReplacesPrevious(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	doc := createDoc(t, s, "v2.txt")
	if err := s.UpsertChunks(ctx, doc.ID, makeChunks(doc.ID, 4, 1536)); err != nil {
		t.Fatalf("first UpsertChunks() = %v", err)
	}
	if err := s.UpsertChunks(ctx, doc.ID, makeChunks(doc.ID, 2, 1536)); err != nil {
		t.Fatalf("second UpsertChunks() = %v", err)
	}

	stored, _ := s.GetChunks(ctx, doc.ID)
	if len(stored) != 2 {
		t.Errorf("got %d chunks after replacement, want 2", len(stored))
	}
	got, _ := s.GetDocument(ctx, doc.ID)
	if got.ChunkCount != 2 {
		t.Errorf("chunk_count = %d, want 2", got.ChunkCount)
	}
}

func TestResetDocumentDropsChunks(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	doc := createDoc(t, s, "again.txt")
	if err := s.UpsertChunks(ctx, doc.ID, makeChunks(doc.ID, 2, 1536)); err != nil {
		t.Fatalf("UpsertChunks() = %v", err)
	}

	if err := s.ResetDocument(ctx, doc.ID); err != nil {
		t.Fatalf("ResetDocument() = %v", err)
	}

	got, _ := s.GetDocument(ctx, doc.ID)
	if got.Status != store.StatusPending || got.ChunkCount != 0 {
		t.Errorf("after reset: status=%q chunks=%d, want pending/0", got.Status, got.ChunkCount)
	}
	stored, _ := s.GetChunks(ctx, doc.ID)
	if len(stored) != 0 {
		t.Errorf("chunks survived reset: %d", len(stored))
	}
}

func TestDeleteCascadesToChunks(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	doc := createDoc(t, s, "gone.txt")
	if err := s.UpsertChunks(ctx, doc.ID, makeChunks(doc.ID, 2, 1536)); err != nil {
		t.Fatalf("UpsertChunks() = %v", err)
	}
	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument() = %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() = %v", err)
	}
	if stats.TotalChunks != 0 {
		t.Errorf("chunks survived document deletion: %d", stats.TotalChunks)
	}
}

func TestVectorSearchExcludesUnindexed(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	indexed := createDoc(t, s, "visible.txt")
	if err := s.UpsertChunks(ctx, indexed.ID, makeChunks(indexed.ID, 1, 1536)); err != nil {
		t.Fatalf("UpsertChunks() = %v", err)
	}

	// A second document stuck mid-pipeline must stay invisible.
	pending := createDoc(t, s, "invisible.txt")
	if err := s.UpdateStatus(ctx, pending.ID, store.StatusEmbedding, ""); err != nil {
		t.Fatalf("UpdateStatus() = %v", err)
	}

	query := make([]float32, 1536)
	query[0] = 1
	hits, err := s.NearestNeighbors(ctx, query, 10)
	if err != nil {
		t.Fatalf("NearestNeighbors() = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].DocumentID != indexed.ID {
		t.Errorf("hit from wrong document: %s", hits[0].DocumentID)
	}
	if hits[0].Score < 0.99 {
		t.Errorf("identical vector scored %g, want ~1", hits[0].Score)
	}
}

func TestKeywordSearchRanksMatches(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	doc := createDoc(t, s, "prose.txt")
	chunks := makeChunks(doc.ID, 3, 1536,
		"The quick brown fox jumps over the lazy dog.",
		"Postgres full text search uses tsvector columns.",
		"Nothing relevant lives in this chunk at all.",
	)
	if err := s.UpsertChunks(ctx, doc.ID, chunks); err != nil {
		t.Fatalf("UpsertChunks() = %v", err)
	}

	hits, err := s.KeywordSearch(ctx, "full text search", 10)
	if err != nil {
		t.Fatalf("KeywordSearch() = %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no keyword hits")
	}
	if hits[0].ChunkIndex != 1 {
		t.Errorf("top hit is chunk %d, want 1", hits[0].ChunkIndex)
	}
	for _, h := range hits {
		if h.Score < 0 || h.Score >= 1 {
			t.Errorf("ts_rank score %g outside [0, 1)", h.Score)
		}
	}
}

func TestKeywordSearchEmptyQuery(t *testing.T) {
	s := setup(t)

	hits, err := s.KeywordSearch(context.Background(), "the of and", 10)
	if err != nil {
		t.Fatalf("KeywordSearch(stopwords) = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("stopword-only query returned %d hits, want 0", len(hits))
	}
}

func TestStats(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	a := createDoc(t, s, "a.txt")
	createDoc(t, s, "b.txt")
	if err := s.UpsertChunks(ctx, a.ID, makeChunks(a.ID, 2, 1536)); err != nil {
		t.Fatalf("UpsertChunks() = %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() = %v", err)
	}
	if stats.TotalDocuments != 2 || stats.TotalChunks != 2 {
		t.Errorf("stats = %+v, want 2 docs / 2 chunks", stats)
	}
	if stats.ByStatus[store.StatusIndexed] != 1 || stats.ByStatus[store.StatusPending] != 1 {
		t.Errorf("by-status breakdown wrong: %v", stats.ByStatus)
	}
}
