package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure CacheStore implements the interface.
var _ driven.CacheStore = (*CacheStore)(nil)

type chunkKey struct {
	sourceID string
	settings string
}

type embeddingKey struct {
	contentHash string
	model       string
}

// CacheStore is an in-memory implementation of driven.CacheStore.
// Entries are copied on the way in and out so callers may mutate what they hold.
type CacheStore struct {
	mu         sync.RWMutex
	chunks     map[chunkKey]domain.ChunkCacheEntry
	embeddings map[embeddingKey]domain.EmbeddingCacheEntry
}

// NewCacheStore creates a new in-memory cache store.
func NewCacheStore() *CacheStore {
	return &CacheStore{
		chunks:     make(map[chunkKey]domain.ChunkCacheEntry),
		embeddings: make(map[embeddingKey]domain.EmbeddingCacheEntry),
	}
}

// GetChunks retrieves the entry for a source under a settings fingerprint.
func (s *CacheStore) GetChunks(_ context.Context, sourceID, settingsFingerprint string) (*domain.ChunkCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.chunks[chunkKey{sourceID, settingsFingerprint}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	entry.Chunks = copyChunks(entry.Chunks)
	return &entry, nil
}

// PutChunks replaces the entry for (SourceID, SettingsFingerprint).
func (s *CacheStore) PutChunks(_ context.Context, entry *domain.ChunkCacheEntry) error {
	stored := *entry
	stored.Chunks = copyChunks(entry.Chunks)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[chunkKey{entry.SourceID, entry.SettingsFingerprint}] = stored
	return nil
}

// ListChunks describes every chunk entry, ordered by source then fingerprint.
func (s *CacheStore) ListChunks(_ context.Context) ([]domain.ChunkCacheInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]domain.ChunkCacheInfo, 0, len(s.chunks))
	for _, e := range s.chunks {
		infos = append(infos, domain.ChunkCacheInfo{
			SourceID:            e.SourceID,
			SettingsFingerprint: e.SettingsFingerprint,
			ContentFingerprint:  e.ContentFingerprint,
			URI:                 e.URI,
			ChunkCount:          len(e.Chunks),
			CreatedAt:           e.CreatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].SourceID != infos[j].SourceID {
			return infos[i].SourceID < infos[j].SourceID
		}
		return infos[i].SettingsFingerprint < infos[j].SettingsFingerprint
	})
	return infos, nil
}

// GetEmbeddings returns cached vectors for the given content hashes.
func (s *CacheStore) GetEmbeddings(_ context.Context, model string, contentHashes []string) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string][]float32, len(contentHashes))
	for _, h := range contentHashes {
		if e, ok := s.embeddings[embeddingKey{h, model}]; ok {
			result[h] = append([]float32(nil), e.Vector...)
		}
	}
	return result, nil
}

// PutEmbeddings stores vectors keyed by content hash and model.
func (s *CacheStore) PutEmbeddings(_ context.Context, entries []domain.EmbeddingCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		e.Vector = append([]float32(nil), e.Vector...)
		s.embeddings[embeddingKey{e.ContentHash, e.Model}] = e
	}
	return nil
}

// Stats counts chunk entries and embeddings per model.
func (s *CacheStore) Stats(_ context.Context) (*domain.CacheStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &domain.CacheStats{
		ChunkEntries: len(s.chunks),
		Embeddings:   make(map[string]int),
	}
	for k := range s.embeddings {
		stats.Embeddings[k.model]++
	}
	return stats, nil
}

// Prune removes entries created before the cutoff.
func (s *CacheStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int
	for k, e := range s.chunks {
		if e.CreatedAt.Before(before) {
			delete(s.chunks, k)
			removed++
		}
	}
	for k, e := range s.embeddings {
		if e.CreatedAt.Before(before) {
			delete(s.embeddings, k)
			removed++
		}
	}
	return removed, nil
}

// Clear removes every entry.
func (s *CacheStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.chunks)
	clear(s.embeddings)
	return nil
}

// Close is a no-op.
func (s *CacheStore) Close() error {
	return nil
}

func copyChunks(in []domain.Chunk) []domain.Chunk {
	if in == nil {
		return nil
	}
	out := make([]domain.Chunk, len(in))
	copy(out, in)
	for i := range out {
		if out[i].HeadingPath != nil {
			out[i].HeadingPath = append([]string(nil), out[i].HeadingPath...)
		}
	}
	return out
}
