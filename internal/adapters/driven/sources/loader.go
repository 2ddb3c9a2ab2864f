// Package sources loads the list of documents to ingest.
//
// A sources file is YAML (a top-level list or a "sources:" key) or TOML
// ("[[sources]]" tables). Each entry names a url, with optional id, title
// and tags. Relative paths are resolved against the file's directory.
package sources

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/fetch"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/identity"
)

// Format is the encoding of a sources file.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

type entry struct {
	ID    string         `yaml:"id" toml:"id"`
	URL   string         `yaml:"url" toml:"url"`
	Path  string         `yaml:"path" toml:"path"`
	Title string         `yaml:"title" toml:"title"`
	Tags  map[string]any `yaml:"tags" toml:"tags"`
}

type document struct {
	Sources []entry `yaml:"sources" toml:"sources"`
}

// FormatOf guesses the format from a file name. Anything that is not
// TOML is read as YAML, which also accepts JSON.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Load reads and validates a sources file.
func Load(path string) ([]domain.Source, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("sources file %s: %w", path, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	srcs, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("sources file %s: %w", path, err)
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve sources directory: %w", err)
	}
	for i := range srcs {
		srcs[i].URI = resolve(base, srcs[i].URI)
	}
	return srcs, nil
}

// Parse decodes sources without touching the filesystem. Missing IDs
// default to the document ID of the reference.
func Parse(data []byte, format Format) ([]domain.Source, error) {
	entries, err := decode(data, format)
	if err != nil {
		return nil, err
	}

	srcs := make([]domain.Source, 0, len(entries))
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		ref := strings.TrimSpace(e.URL)
		if ref == "" {
			ref = strings.TrimSpace(e.Path)
		}
		if ref == "" {
			return nil, fmt.Errorf("%w: source %d has no url", domain.ErrInvalidInput, i+1)
		}

		id := strings.TrimSpace(e.ID)
		if id == "" {
			id = identity.DocID(ref)
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: sources %d and %d share id %q", domain.ErrInvalidInput, prev+1, i+1, id)
		}
		seen[id] = i

		srcs = append(srcs, domain.Source{
			ID:    id,
			URI:   ref,
			Title: strings.TrimSpace(e.Title),
			Tags:  e.Tags,
		})
	}
	return srcs, nil
}

func decode(data []byte, format Format) ([]entry, error) {
	switch format {
	case FormatTOML:
		var doc document
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return doc.Sources, nil
	case FormatYAML:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 {
			return nil, nil
		}
		// The legacy layout is a bare list.
		var list []entry
		if err := yaml.Unmarshal(data, &list); err == nil {
			return list, nil
		}
		var doc document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return doc.Sources, nil
	}
	return nil, fmt.Errorf("%w: unknown sources format %q", domain.ErrInvalidInput, format)
}

// resolve anchors relative local paths at base.
func resolve(base, ref string) string {
	if fetch.Scheme(ref) != "file" || strings.HasPrefix(ref, "file://") ||
		strings.HasPrefix(ref, "~") || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(base, ref)
}
