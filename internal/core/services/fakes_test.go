package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// fakeFetcher serves content from a map keyed by URI.
type fakeFetcher struct {
	mu      sync.Mutex
	content map[string]string
	calls   map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{content: make(map[string]string), calls: make(map[string]int)}
}

func (f *fakeFetcher) set(uri, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content[uri] = text
}

func (f *fakeFetcher) Fetch(_ context.Context, source domain.Source) (*domain.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[source.URI]++
	text, ok := f.content[source.URI]
	if !ok {
		return nil, fmt.Errorf("fetching %s: %w", source.URI, domain.ErrNotFound)
	}
	sum := sha256.Sum256([]byte(text))
	mime := "text/plain"
	switch {
	case strings.HasSuffix(source.URI, ".bin"):
		mime = "application/octet-stream"
	case strings.HasSuffix(source.URI, ".html"):
		mime = "text/html"
	}
	return &domain.FetchResult{
		Content:     []byte(text),
		MIMEType:    mime,
		Fingerprint: hex.EncodeToString(sum[:]),
		FetchedAt:   time.Now(),
	}, nil
}

// textExtractor passes content through unchanged.
type textExtractor struct{}

func (textExtractor) SupportedMIMETypes() []string { return []string{"text/plain"} }

func (textExtractor) Extract(_ context.Context, raw []byte, _ string) (*domain.Extraction, error) {
	return &domain.Extraction{Text: string(raw)}, nil
}

type fakeExtractors struct {
	byType map[string]driven.Extractor
}

func newFakeExtractors() *fakeExtractors {
	r := &fakeExtractors{byType: make(map[string]driven.Extractor)}
	r.Register(textExtractor{})
	return r
}

func (r *fakeExtractors) Register(e driven.Extractor) {
	for _, m := range e.SupportedMIMETypes() {
		r.byType[m] = e
	}
}

func (r *fakeExtractors) Get(mimeType string) (driven.Extractor, error) {
	e, ok := r.byType[mimeType]
	if !ok {
		return nil, fmt.Errorf("%s: %w", mimeType, domain.ErrUnsupportedType)
	}
	return e, nil
}

// countingPipeline records how often documents are chunked.
type countingPipeline struct {
	inner driven.PostProcessorPipeline

	mu    sync.Mutex
	calls int
}

func (p *countingPipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.inner.Process(ctx, doc)
}

func (p *countingPipeline) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// failingStore wraps a memory store and fails chosen operations.
type failingStore struct {
	*memory.CacheStore
	getErr error
	putErr error
}

func (s *failingStore) GetChunks(ctx context.Context, sourceID, fp string) (*domain.ChunkCacheEntry, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.CacheStore.GetChunks(ctx, sourceID, fp)
}

func (s *failingStore) PutChunks(ctx context.Context, entry *domain.ChunkCacheEntry) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.CacheStore.PutChunks(ctx, entry)
}

func (s *failingStore) GetEmbeddings(ctx context.Context, model string, hashes []string) (map[string][]float32, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.CacheStore.GetEmbeddings(ctx, model, hashes)
}

// fakeEmbedder returns deterministic vectors and can fail on chosen texts.
type fakeEmbedder struct {
	mu       sync.Mutex
	model    string
	calls    int
	texts    []string
	failOn   string
	failWith error
	short    bool
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, texts...)
	for _, t := range texts {
		if f.failOn != "" && t == f.failOn {
			return nil, f.failWith
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	if f.short {
		return out[:len(out)-1], nil
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int              { return 2 }
func (f *fakeEmbedder) ModelName() string            { return f.model }
func (f *fakeEmbedder) Ping(_ context.Context) error { return nil }
func (f *fakeEmbedder) Close() error                 { return nil }

func (f *fakeEmbedder) embedded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}
