package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/csw48/AI-autonomous-platform/internal/store"
)

type mockSearcher struct {
	vectorHits  []store.Hit
	keywordHits []store.Hit
	vectorErr   error
	keywordErr  error

	vectorLimit  int
	keywordLimit int
}

func (m *mockSearcher) NearestNeighbors(_ context.Context, _ []float32, limit int) ([]store.Hit, error) {
	m.vectorLimit = limit
	return m.vectorHits, m.vectorErr
}

func (m *mockSearcher) KeywordSearch(_ context.Context, _ string, limit int) ([]store.Hit, error) {
	m.keywordLimit = limit
	return m.keywordHits, m.keywordErr
}

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []float32{1, 0, 0}, nil
}

func hit(chunkID, docID uuid.UUID, index int, score float64) store.Hit {
	return store.Hit{
		ChunkID:    chunkID,
		DocumentID: docID,
		Filename:   "doc.txt",
		ChunkIndex: index,
		Content:    "content",
		Score:      score,
	}
}

func even() Weights { return Weights{Vector: 0.5, Keyword: 0.5} }

func TestSearchRejectsEmptyQuery(t *testing.T) {
	r := NewRetriever(&mockSearcher{}, &mockEmbedder{}, even(), nil)
	if _, err := r.Search(context.Background(), "   ", 5); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("Search(blank) = %v, want ErrEmptyQuery", err)
	}
}

func TestSearchOverfetchesChannels(t *testing.T) {
	s := &mockSearcher{}
	r := NewRetriever(s, &mockEmbedder{}, even(), nil)

	if _, err := r.Search(context.Background(), "query", 5); err != nil {
		t.Fatalf("Search() = %v", err)
	}
	if s.vectorLimit != 20 || s.keywordLimit != 20 {
		t.Errorf("channel limits = %d/%d, want 20/20", s.vectorLimit, s.keywordLimit)
	}
}

func TestSearchFusesDuplicates(t *testing.T) {
	doc := uuid.New()
	shared := uuid.New()
	s := &mockSearcher{
		vectorHits: []store.Hit{
			hit(shared, doc, 0, 0.9),
			hit(uuid.New(), doc, 1, 0.5),
		},
		keywordHits: []store.Hit{
			hit(shared, doc, 0, 0.6),
		},
	}
	r := NewRetriever(s, &mockEmbedder{}, even(), nil)

	results, err := r.Search(context.Background(), "query", 5)
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (shared chunk deduplicated)", len(results))
	}

	top := results[0]
	if top.ChunkID != shared {
		t.Fatalf("top result is not the shared chunk")
	}
	if top.VectorScore != 0.9 || top.KeywordScore != 0.6 {
		t.Errorf("channel scores = %g/%g, want 0.9/0.6", top.VectorScore, top.KeywordScore)
	}
	if want := 0.5*0.9 + 0.5*0.6; top.Score != want {
		t.Errorf("fused score = %g, want %g", top.Score, want)
	}
}

func TestSearchWeightsShiftRanking(t *testing.T) {
	doc := uuid.New()
	vectorOnly := uuid.New()
	keywordOnly := uuid.New()
	s := &mockSearcher{
		vectorHits:  []store.Hit{hit(vectorOnly, doc, 0, 0.8)},
		keywordHits: []store.Hit{hit(keywordOnly, doc, 1, 0.8)},
	}

	r := NewRetriever(s, &mockEmbedder{}, Weights{Vector: 0.9, Keyword: 0.1}, nil)
	results, err := r.Search(context.Background(), "query", 5)
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	if results[0].ChunkID != vectorOnly {
		t.Errorf("vector-heavy weights did not promote vector hit")
	}

	r = NewRetriever(s, &mockEmbedder{}, Weights{Vector: 0.1, Keyword: 0.9}, nil)
	results, _ = r.Search(context.Background(), "query", 5)
	if results[0].ChunkID != keywordOnly {
		t.Errorf("keyword-heavy weights did not promote keyword hit")
	}
}

func TestSearchTieBreakIsDeterministic(t *testing.T) {
	docA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	docB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	s := &mockSearcher{
		vectorHits: []store.Hit{
			hit(uuid.New(), docB, 3, 0.7),
			hit(uuid.New(), docA, 1, 0.7),
			hit(uuid.New(), docA, 0, 0.7),
		},
	}
	r := NewRetriever(s, &mockEmbedder{}, even(), nil)

	results, err := r.Search(context.Background(), "query", 5)
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	if results[0].DocumentID != docA || results[0].ChunkIndex != 0 {
		t.Errorf("tie break wrong: first is %s/%d", results[0].DocumentID, results[0].ChunkIndex)
	}
	if results[2].DocumentID != docB {
		t.Errorf("tie break wrong: last is %s", results[2].DocumentID)
	}
}

func TestSearchTruncatesToTopK(t *testing.T) {
	doc := uuid.New()
	var hits []store.Hit
	for i := 0; i < 10; i++ {
		hits = append(hits, hit(uuid.New(), doc, i, 1-float64(i)/10))
	}
	s := &mockSearcher{vectorHits: hits}
	r := NewRetriever(s, &mockEmbedder{}, even(), nil)

	results, err := r.Search(context.Background(), "query", 3)
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestSearchPropagatesChannelErrors(t *testing.T) {
	wantErr := errors.New("db down")
	r := NewRetriever(&mockSearcher{keywordErr: wantErr}, &mockEmbedder{}, even(), nil)

	if _, err := r.Search(context.Background(), "query", 5); !errors.Is(err, wantErr) {
		t.Errorf("Search() = %v, want wrapped channel error", err)
	}
}

func TestSearchPropagatesEmbedderError(t *testing.T) {
	wantErr := errors.New("provider down")
	r := NewRetriever(&mockSearcher{}, &mockEmbedder{err: wantErr}, even(), nil)

	if _, err := r.Search(context.Background(), "query", 5); !errors.Is(err, wantErr) {
		t.Errorf("Search() = %v, want wrapped embedder error", err)
	}
}
