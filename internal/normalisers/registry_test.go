package normalisers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers/docx"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers/html"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers/markdown"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers/pdf"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers/plaintext"
)

type stubExtractor struct {
	types []string
	text  string
}

func (s *stubExtractor) SupportedMIMETypes() []string { return s.types }

func (s *stubExtractor) Extract(_ context.Context, _ []byte, _ string) (*domain.Extraction, error) {
	return &domain.Extraction{Text: s.text}, nil
}

func TestDefaultRegistry_Get(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		mimeType string
		want     any
	}{
		{"text/plain", &plaintext.Extractor{}},
		{"text/plain; charset=utf-8", &plaintext.Extractor{}},
		{"TEXT/Markdown", &markdown.Extractor{}},
		{"text/html; charset=ISO-8859-1", &html.Extractor{}},
		{"application/xml", &html.Extractor{}},
		{"application/atom+xml", &html.Extractor{}},
		{"application/ld+json", &plaintext.Extractor{}},
		{"application/pdf", &pdf.Extractor{}},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", &docx.Extractor{}},
		{"text/x-unknown-language", &plaintext.Extractor{}},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			e, err := r.Get(tt.mimeType)
			require.NoError(t, err)
			assert.IsType(t, tt.want, e)
		})
	}
}

func TestRegistry_GetUnsupported(t *testing.T) {
	r := DefaultRegistry()

	for _, mimeType := range []string{"application/octet-stream", "image/png", ""} {
		e, err := r.Get(mimeType)
		assert.ErrorIs(t, err, domain.ErrUnsupportedType, mimeType)
		assert.Nil(t, e)
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubExtractor{types: []string{"text/plain"}, text: "first"})
	r.Register(&stubExtractor{types: []string{"Text/Plain"}, text: "second"})

	e, err := r.Get("text/plain")
	require.NoError(t, err)
	got, err := e.Extract(context.Background(), nil, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Text)
	assert.Equal(t, []string{"text/plain"}, r.SupportedMIMETypes())
}

func TestRegistry_NoFallbackWithoutPlaintext(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubExtractor{types: []string{"text/markdown"}})

	_, err := r.Get("text/csv")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestDefaultRegistry_ExtractsEndToEnd(t *testing.T) {
	e, err := DefaultRegistry().Get("text/markdown; charset=utf-8")
	require.NoError(t, err)

	got, err := e.Extract(context.Background(), []byte("# Title\n\nBody"), "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nBody", got.Text)
	assert.Equal(t, "Title", got.Title)
}
