// Package identity assigns stable identifiers to documents and chunks.
//
// A document ID is a hash of the canonical source reference. A chunk ID
// combines the document ID, the chunk's position and a hash of its text,
// so an edit to one chunk never changes the IDs of its neighbours.
package identity

import (
	"context"
	"crypto/sha1" //nolint:gosec // content fingerprint, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

const (
	// DocIDPrefix starts every document ID.
	DocIDPrefix = "doc_"

	// DocIDWidth is the number of hex digits of the reference hash kept.
	DocIDWidth = 12

	// ContentHashWidth is the number of hex digits of the text hash kept.
	ContentHashWidth = 16

	// chunkHashSuffix is how much of the content hash a chunk ID carries.
	chunkHashSuffix = 8
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// CanonicalReference normalises a URL or path so that equivalent
// references hash to the same document ID. URLs get a lower-case scheme and
// host, no default port, no fragment, sorted query parameters and no
// trailing slash. Paths are cleaned and use forward slashes.
func CanonicalReference(ref string) string {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil || len(u.Scheme) <= 1 {
		return canonicalPath(ref)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "file" {
		return "file://" + canonicalPath(u.Path)
	}

	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPorts[u.Scheme] {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	if u.RawQuery != "" {
		params := strings.Split(u.RawQuery, "&")
		sort.Strings(params)
		u.RawQuery = strings.Join(params, "&")
	}
	return u.String()
}

func canonicalPath(p string) string {
	if p == "" {
		return ""
	}
	cleaned := filepath.ToSlash(filepath.Clean(p))
	if len(cleaned) > 1 {
		cleaned = strings.TrimRight(cleaned, "/")
	}
	return cleaned
}

// DocID returns the stable document ID for a source reference.
func DocID(ref string) string {
	sum := sha256.Sum256([]byte(CanonicalReference(ref)))
	return DocIDPrefix + hex.EncodeToString(sum[:])[:DocIDWidth]
}

// ContentHash returns the position-independent hash of chunk text.
func ContentHash(text string) string {
	sum := sha1.Sum([]byte(text)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])[:ContentHashWidth]
}

// ChunkID combines document ID, position and content hash.
func ChunkID(docID string, index int, contentHash string) string {
	suffix := contentHash
	if len(suffix) > chunkHashSuffix {
		suffix = suffix[:chunkHashSuffix]
	}
	return fmt.Sprintf("%s#%05d-%s", docID, index, suffix)
}

// Processor assigns document IDs, content hashes, chunk IDs and simhash
// fingerprints. It implements the PostProcessor interface.
type Processor struct {
	hasher *SimHasher
}

// New creates an identity processor.
func New() (*Processor, error) {
	hasher, err := NewSimHasher()
	if err != nil {
		return nil, err
	}
	return &Processor{hasher: hasher}, nil
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "identity"
}

// Process fills in identity fields on every chunk.
func (p *Processor) Process(_ context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}
	if strings.TrimSpace(doc.URI) == "" {
		return nil, &domain.HashingError{Input: "document reference", Err: domain.ErrInvalidInput}
	}

	docID := DocID(doc.URI)
	for i := range chunks {
		c := &chunks[i]
		c.DocID = docID
		c.ContentHash = ContentHash(c.Text)
		c.ID = ChunkID(docID, c.ChunkIndex, c.ContentHash)

		sh, err := p.hasher.Sum(c.Text)
		if err != nil {
			return nil, err
		}
		c.SimHash = sh
	}
	return chunks, nil
}
