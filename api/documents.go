package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/csw48/AI-autonomous-platform/internal/ingest"
	"github.com/csw48/AI-autonomous-platform/internal/store"
)

// Ingestor is the pipeline surface the documents API needs.
type Ingestor interface {
	Submit(ctx context.Context, filename, contentType string, data []byte) (store.Document, error)
	Resubmit(ctx context.Context, id uuid.UUID, contentType string, data []byte) (store.Document, error)
	Cancel(id uuid.UUID) error
	Stats() ingest.Stats
}

// DocumentReader is the store surface the documents API needs.
type DocumentReader interface {
	GetDocument(ctx context.Context, id uuid.UUID) (store.Document, error)
	ListDocuments(ctx context.Context, page store.Page) ([]store.Document, int64, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (store.Stats, error)
}

// FormatChecker reports whether an extractor exists for a content type.
// Satisfied by *extract.Registry.
type FormatChecker interface {
	Supports(contentType string) bool
}

// DocumentsHandler handles document upload and lifecycle endpoints.
type DocumentsHandler struct {
	ingestor       Ingestor
	docs           DocumentReader
	formats        FormatChecker
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewDocumentsHandler creates a documents handler. maxUploadBytes caps the
// accepted upload size; oversized requests get 413, uploads in a content
// type formats cannot parse get 415 before anything is stored.
func NewDocumentsHandler(ingestor Ingestor, docs DocumentReader, formats FormatChecker, maxUploadBytes int64, logger *slog.Logger) *DocumentsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentsHandler{
		ingestor:       ingestor,
		docs:           docs,
		formats:        formats,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents", h.upload)
	mux.HandleFunc("GET /api/documents", h.list)
	mux.HandleFunc("GET /api/documents/{id}", h.get)
	mux.HandleFunc("DELETE /api/documents/{id}", h.delete)
	mux.HandleFunc("POST /api/documents/{id}/resubmit", h.resubmit)
	mux.HandleFunc("POST /api/documents/{id}/cancel", h.cancel)
}

// documentResponse is the wire shape of a document.
type documentResponse struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toDocumentResponse(d store.Document) documentResponse {
	return documentResponse{
		ID:          d.ID.String(),
		Filename:    d.Filename,
		ContentType: d.ContentType,
		SizeBytes:   d.SizeBytes,
		Status:      string(d.Status),
		Error:       d.Error,
		ChunkCount:  d.ChunkCount,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// upload accepts a multipart form with a "file" field and queues it for
// indexing. Responds 202: indexing continues in the background and the
// client polls the document status.
func (h *DocumentsHandler) upload(w http.ResponseWriter, r *http.Request) {
	filename, contentType, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	if !h.supportedFormat(w, contentType) {
		return
	}

	doc, err := h.ingestor.Submit(r.Context(), filename, contentType, data)
	if errors.Is(err, ingest.ErrEmptyDocument) {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("document submission failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "submission_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, toDocumentResponse(doc))
}

func (h *DocumentsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	doc, err := h.docs.GetDocument(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// listResponse is the wire shape of a document listing.
type listResponse struct {
	Documents []documentResponse `json:"documents"`
	Total     int64              `json:"total"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
	Status    string             `json:"status,omitempty"`
}

func (h *DocumentsHandler) list(w http.ResponseWriter, r *http.Request) {
	page := store.Page{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if page.Limit > 200 {
		page.Limit = 200
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := store.Status(s)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "bad_request",
				fmt.Sprintf("unknown status %q", s))
			return
		}
		page.Status = status
	}

	docs, total, err := h.docs.ListDocuments(r.Context(), page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	resp := listResponse{
		Documents: make([]documentResponse, 0, len(docs)),
		Total:     total,
		Limit:     page.Limit,
		Offset:    page.Offset,
		Status:    string(page.Status),
	}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *DocumentsHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	// Stop a running ingestion first so it cannot re-create chunks after
	// the delete. An idle document is the common case.
	if err := h.ingestor.Cancel(id); err != nil && !errors.Is(err, ingest.ErrNotRunning) {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	err := h.docs.DeleteDocument(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentsHandler) resubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	_, contentType, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	if !h.supportedFormat(w, contentType) {
		return
	}

	doc, err := h.ingestor.Resubmit(r.Context(), id, contentType, data)
	switch {
	case errors.Is(err, ingest.ErrEmptyDocument):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ingest.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "already_running", err.Error())
	case errors.Is(err, ingest.ErrNotFailed):
		writeError(w, http.StatusConflict, "not_failed", err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	default:
		writeJSON(w, http.StatusAccepted, toDocumentResponse(doc))
	}
}

func (h *DocumentsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	err := h.ingestor.Cancel(id)
	if errors.Is(err, ingest.ErrNotRunning) {
		writeError(w, http.StatusConflict, "not_running", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// supportedFormat rejects content types no extractor handles before any
// document record exists. On rejection it writes 415 and returns false.
func (h *DocumentsHandler) supportedFormat(w http.ResponseWriter, contentType string) bool {
	if h.formats.Supports(contentType) {
		return true
	}
	writeError(w, http.StatusUnsupportedMediaType, "unsupported_format",
		fmt.Sprintf("no extractor for content type %q", contentType))
	return false
}

// readUpload extracts the "file" part from a multipart request, enforcing
// the upload size cap. On failure it writes the error response and returns
// ok=false.
func (h *DocumentsHandler) readUpload(w http.ResponseWriter, r *http.Request) (filename, contentType string, data []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large",
				"upload exceeds maximum size")
			return "", "", nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request",
			`multipart form with a "file" field required`)
		return "", "", nil, false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large",
				"upload exceeds maximum size")
			return "", "", nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read upload")
		return "", "", nil, false
	}

	return header.Filename, uploadContentType(header), data, true
}

// uploadContentType resolves the part's declared content type, defaulting
// to text/plain when the client sent none.
func uploadContentType(header *multipart.FileHeader) string {
	ct := header.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		return "text/plain"
	}
	return ct
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid document ID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
