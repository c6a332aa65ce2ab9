package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/csw48/AI-autonomous-platform/internal/rag"
)

// maxTopK caps the per-request result count.
const maxTopK = 50

// Searcher is the retrieval surface the search API needs.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]rag.Result, error)
}

// SearchHandler handles search and stats endpoints.
type SearchHandler struct {
	searcher  Searcher
	assembler *rag.Assembler
	docs      DocumentReader
	ingestor  Ingestor
	logger    *slog.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(searcher Searcher, assembler *rag.Assembler, docs DocumentReader, ingestor Ingestor, logger *slog.Logger) *SearchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchHandler{
		searcher:  searcher,
		assembler: assembler,
		docs:      docs,
		ingestor:  ingestor,
		logger:    logger,
	}
}

// RegisterRoutes registers search routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/search", h.search)
	mux.HandleFunc("GET /api/stats", h.stats)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`

	// IncludeContext asks for an assembled, token-budgeted context string
	// in addition to the raw results.
	IncludeContext bool `json:"include_context"`
}

type searchResult struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	Filename     string  `json:"filename"`
	ChunkIndex   int     `json:"chunk_index"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
	VectorScore  float64 `json:"vector_score"`
	KeywordScore float64 `json:"keyword_score"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
	Context *rag.Context   `json:"context,omitempty"`
}

func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.TopK > maxTopK {
		req.TopK = maxTopK
	}

	results, err := h.searcher.Search(r.Context(), req.Query, req.TopK)
	if errors.Is(err, rag.ErrEmptyQuery) {
		writeError(w, http.StatusBadRequest, "bad_request", "query must not be empty")
		return
	}
	if err != nil {
		h.logger.Error("search failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "search_failed", err.Error())
		return
	}

	resp := searchResponse{Results: make([]searchResult, 0, len(results))}
	for _, res := range results {
		resp.Results = append(resp.Results, searchResult{
			ChunkID:      res.ChunkID.String(),
			DocumentID:   res.DocumentID.String(),
			Filename:     res.Filename,
			ChunkIndex:   res.ChunkIndex,
			Content:      res.Content,
			Score:        res.Score,
			VectorScore:  res.VectorScore,
			KeywordScore: res.KeywordScore,
		})
	}
	if req.IncludeContext {
		assembled := h.assembler.Assemble(results)
		resp.Context = &assembled
	}
	writeJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	Corpus   any `json:"corpus"`
	Pipeline any `json:"pipeline"`
}

func (h *SearchHandler) stats(w http.ResponseWriter, r *http.Request) {
	corpus, err := h.docs.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Corpus:   corpus,
		Pipeline: h.ingestor.Stats(),
	})
}
