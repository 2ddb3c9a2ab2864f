// Package plaintext extracts text from plain text, source code and simple
// data formats. JSON is pretty-printed and CSV rows are flattened so the
// chunker sees one record per line.
package plaintext

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Extractor handles plain text documents.
type Extractor struct{}

// New creates a new plain text extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/x-go",
		"text/x-python",
		"text/x-rust",
		"text/x-java",
		"text/x-c",
		"text/x-c++",
		"text/x-ruby",
		"text/x-shellscript",
		"text/x-sql",
		"text/csv",
		"text/yaml",
		"text/toml",
		"text/javascript",
		"text/typescript",
		"text/css",
		"application/json",
		"application/x-yaml",
		"application/toml",
	}
}

// Extract returns the content as text. Invalid UTF-8 is passed through
// for the cleaner to repair.
func (e *Extractor) Extract(ctx context.Context, raw []byte, mimeType string) (*domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	switch {
	case mimeType == "application/json" || strings.HasSuffix(mimeType, "+json"):
		return &domain.Extraction{Text: prettyJSON(raw)}, nil
	case mimeType == "text/csv":
		return &domain.Extraction{Text: flattenCSV(raw)}, nil
	}
	return &domain.Extraction{Text: string(raw)}, nil
}

// prettyJSON indents valid JSON and returns anything else unchanged.
func prettyJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// flattenCSV joins the fields of each record with " | ".
func flattenCSV(raw []byte) string {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return string(raw)
	}

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		lines = append(lines, strings.Join(rec, " | "))
	}
	return strings.Join(lines, "\n")
}
