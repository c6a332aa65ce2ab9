// Package chunker splits extracted document text into overlapping segments
// sized for embedding.
//
// Chunks prefer paragraph boundaries, then sentence boundaries, and fall
// back to hard character cuts when a single unit exceeds the chunk size.
// Each chunk after the first carries a verbatim prefix copied from the tail
// of the previous chunk so that cross-boundary context survives retrieval.
// The non-overlap spans of consecutive chunks tile the original text
// exactly; concatenating them reconstructs the input byte for byte.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

// ErrInvalidConfig indicates the chunking parameters cannot produce a valid
// segmentation (for example overlap >= max size).
var ErrInvalidConfig = errors.New("invalid chunker config")

// Config holds chunking parameters. Sizes are in bytes of UTF-8 text.
type Config struct {
	// MaxSize is the maximum total length of a chunk, overlap included.
	MaxSize int

	// Overlap is the number of trailing bytes of the previous chunk
	// prepended to the next one. Must be smaller than MaxSize.
	Overlap int
}

// Validate reports whether the configuration is usable.
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidConfig, c.MaxSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must be non-negative, got %d", ErrInvalidConfig, c.Overlap)
	}
	if c.Overlap >= c.MaxSize {
		return fmt.Errorf("%w: overlap %d must be smaller than max size %d", ErrInvalidConfig, c.Overlap, c.MaxSize)
	}
	return nil
}

// TextChunk is one segment of a document.
type TextChunk struct {
	// Index is the 0-based position of the chunk within the document.
	Index int

	// Text is the chunk content, overlap prefix included.
	Text string

	// Start and End delimit the non-overlap span in the original text:
	// Text without its overlap prefix equals original[Start:End].
	Start int
	End   int
}

// NonOverlap returns the chunk text without the overlap prefix.
func (c TextChunk) NonOverlap() string {
	return c.Text[len(c.Text)-(c.End-c.Start):]
}

// Splitter produces deterministic chunk sequences for a fixed configuration.
// It is stateless and safe for concurrent use.
type Splitter struct {
	cfg Config
}

// New creates a Splitter, rejecting unusable configurations up front.
func New(cfg Config) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Splitter{cfg: cfg}, nil
}

// Split returns a lazy sequence of chunks. The sequence is finite,
// restartable, and deterministic for identical input. Empty or
// whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) iter.Seq[TextChunk] {
	return func(yield func(TextChunk) bool) {
		if strings.TrimSpace(text) == "" {
			return
		}

		pos := 0
		index := 0
		for pos < len(text) {
			// The first chunk has no overlap prefix, so its fresh span may
			// use the full budget.
			budget := s.cfg.MaxSize
			if pos > 0 {
				budget -= s.cfg.Overlap
			}

			end := pos + budget
			if end >= len(text) {
				end = len(text)
			} else {
				end = cutPoint(text, pos, end)
			}

			prefixStart := pos - s.cfg.Overlap
			if prefixStart < 0 {
				prefixStart = 0
			}
			// Never start the overlap prefix mid-rune.
			for prefixStart < pos && isContinuation(text[prefixStart]) {
				prefixStart++
			}

			chunk := TextChunk{
				Index: index,
				Text:  text[prefixStart:end],
				Start: pos,
				End:   end,
			}
			if !yield(chunk) {
				return
			}

			pos = end
			index++
		}
	}
}

// Count returns the number of chunks Split would yield for text.
func (s *Splitter) Count(text string) int {
	n := 0
	for range s.Split(text) {
		n++
	}
	return n
}

// cutPoint picks the cut position within (start, limit], preferring a
// paragraph break, then a sentence end, then the hard limit.
func cutPoint(text string, start, limit int) int {
	window := text[start:limit]

	// Paragraph boundary: cut just after the blank line so the break stays
	// with the chunk that precedes it.
	if i := strings.LastIndex(window, "\n\n"); i > 0 {
		return start + i + 2
	}

	// Sentence boundary: terminal punctuation followed by whitespace.
	for i := len(window) - 2; i > 0; i-- {
		if isSentenceEnd(window[i]) && isSpace(window[i+1]) {
			return start + i + 2
		}
	}

	// Hard cut: back off to a rune boundary so neither side holds a torn
	// UTF-8 sequence.
	for limit > start+1 && isContinuation(text[limit]) {
		limit--
	}
	return limit
}

func isContinuation(b byte) bool {
	return b&0xC0 == 0x80
}

func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
