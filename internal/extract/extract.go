// Package extract turns uploaded file bytes into plain text for chunking.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedFormat indicates no extractor handles the content type.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrExtractionFailed indicates the bytes could not be decoded as text.
	ErrExtractionFailed = errors.New("text extraction failed")
)

// MinTextLength is the smallest extracted text accepted for indexing.
// Anything shorter carries no retrievable content and fails the parsing
// stage instead of producing an empty index entry.
const MinTextLength = 10

// Extractor converts raw document bytes into plain text.
type Extractor interface {
	// Supports reports whether the extractor handles the content type.
	Supports(contentType string) bool

	// Extract returns the document's text content.
	Extract(data []byte, contentType string) (string, error)
}

// Plain handles plain-text formats: text/plain, text/markdown, text/csv and
// friends. Input must be valid UTF-8.
type Plain struct{}

func (Plain) Supports(contentType string) bool {
	mt := mediaType(contentType)
	switch mt {
	case "text/plain", "text/markdown", "text/csv", "text/html", "application/json":
		return true
	}
	return strings.HasPrefix(mt, "text/")
}

func (Plain) Extract(data []byte, contentType string) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: content is not valid UTF-8", ErrExtractionFailed)
	}
	// Strip a BOM if present; editors on some platforms add one.
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	text := strings.TrimSpace(string(data))
	if len(text) < MinTextLength {
		return "", fmt.Errorf("%w: extracted text too short (%d bytes, need %d)",
			ErrExtractionFailed, len(text), MinTextLength)
	}
	return text, nil
}

// Registry dispatches to the first extractor supporting a content type.
type Registry struct {
	extractors []Extractor
}

// NewRegistry builds a registry. With no arguments it contains the default
// extractors: Plain and PDF.
func NewRegistry(extractors ...Extractor) *Registry {
	if len(extractors) == 0 {
		extractors = []Extractor{Plain{}, PDF{}}
	}
	return &Registry{extractors: extractors}
}

// Extract finds an extractor for contentType and runs it.
func (r *Registry) Extract(data []byte, contentType string) (string, error) {
	for _, e := range r.extractors {
		if e.Supports(contentType) {
			return e.Extract(data, contentType)
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
}

// Supports reports whether any registered extractor handles contentType.
func (r *Registry) Supports(contentType string) bool {
	for _, e := range r.extractors {
		if e.Supports(contentType) {
			return true
		}
	}
	return false
}

// mediaType strips parameters like "; charset=utf-8" from a Content-Type
// value and lowercases the rest.
func mediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
