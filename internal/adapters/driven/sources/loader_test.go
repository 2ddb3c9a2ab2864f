package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/identity"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestParse_YAMLList(t *testing.T) {
	data := `
- id: handbook
  url: https://example.com/handbook
  title: Handbook
  tags:
    category: policy
    provider: acme
- url: https://example.com/faq
`
	got, err := Parse([]byte(data), FormatYAML)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, domain.Source{
		ID:    "handbook",
		URI:   "https://example.com/handbook",
		Title: "Handbook",
		Tags:  map[string]any{"category": "policy", "provider": "acme"},
	}, got[0])
	assert.Equal(t, identity.DocID("https://example.com/faq"), got[1].ID)
	assert.Empty(t, got[1].Title)
}

func TestParse_YAMLKeyed(t *testing.T) {
	data := "sources:\n  - url: a.md\n    title: A\n  - path: b.md\n"

	got, err := Parse([]byte(data), FormatYAML)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.md", got[0].URI)
	assert.Equal(t, "b.md", got[1].URI)
}

func TestParse_TOML(t *testing.T) {
	data := `
[[sources]]
id = "guide"
url = "https://example.com/guide"
title = "Guide"

[sources.tags]
category = "docs"
weight = 2

[[sources]]
path = "notes.txt"
`
	got, err := Parse([]byte(data), FormatTOML)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "guide", got[0].ID)
	assert.Equal(t, "docs", got[0].Tags["category"])
	assert.EqualValues(t, 2, got[0].Tags["weight"])
	assert.Equal(t, identity.DocID("notes.txt"), got[1].ID)
}

func TestParse_Empty(t *testing.T) {
	got, err := Parse([]byte("  \n"), FormatYAML)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"missing url", "- id: x\n  title: no url\n", FormatYAML},
		{"duplicate id", "- id: x\n  url: a\n- id: x\n  url: b\n", FormatYAML},
		{"duplicate default id", "- url: https://example.com/a\n- url: https://EXAMPLE.com/a/\n", FormatYAML},
		{"bad yaml", "sources: [unclosed", FormatYAML},
		{"bad toml", "[[sources]\nurl = 1", FormatTOML},
		{"unknown format", "", Format("ini")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestLoad_ResolvesRelativePaths(t *testing.T) {
	p := writeFile(t, "sources.yaml", `
- url: docs/a.md
- url: /abs/b.md
- url: https://example.com/c
- url: file:///tmp/d.txt
- url: ~/e.txt
`)
	got, err := Load(p)
	require.NoError(t, err)
	require.Len(t, got, 5)

	assert.Equal(t, filepath.Join(filepath.Dir(p), "docs", "a.md"), got[0].URI)
	assert.Equal(t, "/abs/b.md", got[1].URI)
	assert.Equal(t, "https://example.com/c", got[2].URI)
	assert.Equal(t, "file:///tmp/d.txt", got[3].URI)
	assert.Equal(t, "~/e.txt", got[4].URI)

	// IDs are derived from the reference as written.
	assert.Equal(t, identity.DocID("docs/a.md"), got[0].ID)
}

func TestLoad_TOMLByExtension(t *testing.T) {
	p := writeFile(t, "sources.TOML", "[[sources]]\nurl = \"https://example.com\"\n")

	got, err := Load(p)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://example.com", got[0].URI)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatTOML, FormatOf("x/sources.toml"))
	assert.Equal(t, FormatYAML, FormatOf("sources.yml"))
	assert.Equal(t, FormatYAML, FormatOf("sources.json"))
}
