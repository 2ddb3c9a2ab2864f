package identity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func TestCanonicalReference(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase host and scheme", "HTTPS://Example.COM/Docs", "https://example.com/Docs"},
		{"strip fragment", "https://example.com/a#section-2", "https://example.com/a"},
		{"strip trailing slash", "https://example.com/a/", "https://example.com/a"},
		{"sort query", "https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"drop default https port", "https://example.com:443/a", "https://example.com/a"},
		{"drop default http port", "http://example.com:80/a", "http://example.com/a"},
		{"keep other port", "http://example.com:8080/a", "http://example.com:8080/a"},
		{"clean path", "docs/./guide/../intro.md", "docs/intro.md"},
		{"trailing slash path", "/var/docs/", "/var/docs"},
		{"file url", "file:///var/docs/./a.md", "file:///var/docs/a.md"},
		{"surrounding space", "  notes.txt \n", "notes.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalReference(tt.in))
		})
	}
}

func TestDocID(t *testing.T) {
	id := DocID("https://example.com/a")
	assert.True(t, strings.HasPrefix(id, DocIDPrefix))
	assert.Len(t, id, len(DocIDPrefix)+DocIDWidth)

	assert.Equal(t, id, DocID("HTTPS://EXAMPLE.com:443/a/#top"))
	assert.NotEqual(t, id, DocID("https://example.com/b"))
}

func TestContentHash(t *testing.T) {
	h := ContentHash("hello world")
	assert.Len(t, h, ContentHashWidth)
	assert.Equal(t, h, ContentHash("hello world"))
	assert.NotEqual(t, h, ContentHash("hello world!"))
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "doc_abc#00003-0123abcd", ChunkID("doc_abc", 3, "0123abcdef456789"))
	assert.Equal(t, "doc_abc#12345-ab", ChunkID("doc_abc", 12345, "ab"))
}

func TestProcessor_Process(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	assert.Equal(t, "identity", p.Name())

	doc := &domain.Document{URI: "https://example.com/guide"}
	chunks := []domain.Chunk{
		{Text: "The first chunk of the guide.", ChunkIndex: 0},
		{Text: "The second chunk of the guide.", ChunkIndex: 1},
	}

	got, err := p.Process(context.Background(), doc, chunks)
	require.NoError(t, err)
	require.Len(t, got, 2)

	docID := DocID(doc.URI)
	for i, c := range got {
		assert.Equal(t, docID, c.DocID)
		assert.Equal(t, ContentHash(c.Text), c.ContentHash)
		assert.Equal(t, ChunkID(docID, i, c.ContentHash), c.ID)
		assert.NotZero(t, c.SimHash)
	}
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func TestProcessor_EditLeavesNeighboursStable(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	doc := &domain.Document{URI: "notes.md"}
	before, err := p.Process(context.Background(), doc, []domain.Chunk{
		{Text: "alpha", ChunkIndex: 0},
		{Text: "beta", ChunkIndex: 1},
		{Text: "gamma", ChunkIndex: 2},
	})
	require.NoError(t, err)

	after, err := p.Process(context.Background(), doc, []domain.Chunk{
		{Text: "alpha", ChunkIndex: 0},
		{Text: "beta, revised", ChunkIndex: 1},
		{Text: "gamma", ChunkIndex: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, before[0].ID, after[0].ID)
	assert.NotEqual(t, before[1].ID, after[1].ID)
	assert.Equal(t, before[2].ID, after[2].ID)
}

func TestProcessor_EmptyReference(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	_, err = p.Process(context.Background(), &domain.Document{}, []domain.Chunk{{Text: "x"}})
	var hashErr *domain.HashingError
	require.True(t, errors.As(err, &hashErr))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestProcessor_NoChunks(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	got, err := p.Process(context.Background(), &domain.Document{}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
