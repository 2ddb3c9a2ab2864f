package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// Extractor turns raw bytes of a given format into text and heading hints.
// Each extractor handles specific MIME types (e.g., PDF, Markdown).
type Extractor interface {
	// SupportedMIMETypes returns the MIME types this extractor handles.
	SupportedMIMETypes() []string

	// Extract converts raw content to text.
	Extract(ctx context.Context, raw []byte, mimeType string) (*domain.Extraction, error)
}

// ExtractorRegistry selects an extractor for a MIME type.
type ExtractorRegistry interface {
	// Register adds an extractor for all of its MIME types.
	Register(e Extractor)

	// Get returns the extractor for a MIME type.
	// Returns domain.ErrUnsupportedType when none matches.
	Get(mimeType string) (Extractor, error)
}
