package store

import (
	"time"

	"github.com/google/uuid"
)

// Status is the ingestion state of a document. Transitions move forward
// through the pipeline stages and terminate in StatusIndexed or
// StatusFailed; a resubmission resets a terminal document to StatusPending.
type Status string

const (
	StatusPending   Status = "pending"
	StatusParsing   Status = "parsing"
	StatusChunking  Status = "chunking"
	StatusEmbedding Status = "embedding"
	StatusIndexed   Status = "indexed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusIndexed || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusParsing, StatusChunking, StatusEmbedding, StatusIndexed, StatusFailed:
		return true
	}
	return false
}

// Document is the unit of ingestion: one uploaded file and its pipeline
// state. Chunks reference it by ID and are deleted with it.
type Document struct {
	ID          uuid.UUID
	Filename    string
	ContentType string
	SizeBytes   int64
	Status      Status

	// Error holds the stage-prefixed failure message when Status is
	// StatusFailed, empty otherwise.
	Error string

	ChunkCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Chunk is one embedded segment of a document.
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Content    string
	TokenCount int
	Embedding  []float32
	CreatedAt  time.Time
}

// Hit is a single search result with its raw channel score. Score semantics
// depend on the query: cosine similarity in [0, 1] for vector search,
// normalized ts_rank in [0, 1) for keyword search.
type Hit struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	Filename   string
	ChunkIndex int
	Content    string
	Score      float64
}

// Stats summarizes the indexed corpus.
type Stats struct {
	TotalDocuments int64          `json:"total_documents"`
	TotalChunks    int64          `json:"total_chunks"`
	ByStatus       map[Status]int `json:"by_status"`
}

// Page bounds a document listing. A non-empty Status restricts both the
// page and the total count to documents in that state.
type Page struct {
	Limit  int
	Offset int
	Status Status
}
