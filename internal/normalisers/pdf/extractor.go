// Package pdf extracts text from PDF documents. Pages are separated by form
// feeds and document outline entries become heading hints.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

const pageBreak = "\f"

// Extractor handles PDF documents.
type Extractor struct{}

// New creates a new PDF extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"application/pdf"}
}

// Extract reads the text of every page. Encrypted or malformed files
// fail with domain.ErrInvalidInput.
func (e *Extractor) Extract(ctx context.Context, raw []byte, _ string) (ext *domain.Extraction, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The reader panics on some malformed object graphs.
	defer func() {
		if r := recover(); r != nil {
			ext, err = nil, fmt.Errorf("%w: pdf: %v", domain.ErrInvalidInput, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: pdf: %v", domain.ErrInvalidInput, err)
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: pdf page %d: %v", domain.ErrInvalidInput, i, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}

	return &domain.Extraction{
		Text:  strings.Join(pages, pageBreak),
		Hints: outlineHints(r.Outline(), 0, nil),
		Title: strings.TrimSpace(r.Trailer().Key("Info").Key("Title").Text()),
	}, nil
}

// outlineHints flattens the bookmark tree depth first.
func outlineHints(o pdf.Outline, depth int, hints []domain.StructuralHint) []domain.StructuralHint {
	if title := strings.TrimSpace(o.Title); depth > 0 && title != "" {
		hints = append(hints, domain.StructuralHint{Level: min(depth, 6), Text: title})
	}
	for _, child := range o.Child {
		hints = outlineHints(child, depth+1, hints)
	}
	return hints
}
