package normalisers

import (
	"fmt"
	"mime"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers/docx"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers/html"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers/markdown"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers/pdf"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry maps MIME types to extractors. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]driven.Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[string]driven.Extractor),
	}
}

// DefaultRegistry returns a registry with the built-in extractors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(html.New())
	r.Register(pdf.New())
	r.Register(docx.New())
	return r
}

// Register adds an extractor for all of its MIME types. A later
// registration replaces an earlier one for the same type.
func (r *Registry) Register(e driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range e.SupportedMIMETypes() {
		r.extractors[canonical(t)] = e
	}
}

// Get returns the extractor for a MIME type. Parameters such as charset
// are ignored. Unknown text/* types fall back to text/plain, and
// structured suffixes (+json, +xml) fall back to their base type.
func (r *Registry) Get(mimeType string) (driven.Extractor, error) {
	t := canonical(mimeType)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, candidate := range []string{t, suffixFallback(t), prefixFallback(t)} {
		if candidate == "" {
			continue
		}
		if e, ok := r.extractors[candidate]; ok {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedType, mimeType)
}

// SupportedMIMETypes returns the registered MIME types, sorted.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.extractors))
	for t := range r.extractors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func canonical(mimeType string) string {
	if t, _, err := mime.ParseMediaType(mimeType); err == nil {
		return t
	}
	t, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(t))
}

func suffixFallback(t string) string {
	switch {
	case strings.HasSuffix(t, "+json"):
		return "application/json"
	case strings.HasSuffix(t, "+xml"):
		return "application/xml"
	}
	return ""
}

func prefixFallback(t string) string {
	if strings.HasPrefix(t, "text/") {
		return "text/plain"
	}
	return ""
}
