package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF extracts the text layer of PDF documents. Scanned PDFs without a
// text layer come out empty and fail the minimum-length check; OCR is not
// attempted.
type PDF struct{}

func (PDF) Supports(contentType string) bool {
	return mediaType(contentType) == "application/pdf"
}

func (PDF) Extract(data []byte, contentType string) (_ string, err error) {
	// The parser panics on some malformed files; turn that into an error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed PDF: %v", ErrExtractionFailed, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	var buf strings.Builder
	if _, err := io.Copy(&buf, content); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	text := strings.TrimSpace(buf.String())
	if len(text) < MinTextLength {
		return "", fmt.Errorf("%w: extracted text too short (%d bytes, need %d); scanned PDF without a text layer?",
			ErrExtractionFailed, len(text), MinTextLength)
	}
	return text, nil
}
