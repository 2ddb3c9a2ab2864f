package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// CacheStore persists chunk sets and embedding vectors.
// Implementations must replace chunk entries atomically.
type CacheStore interface {
	// GetChunks returns the entry for a source under a settings fingerprint.
	// Returns domain.ErrNotFound if absent, domain.ErrCorruptEntry if unreadable.
	GetChunks(ctx context.Context, sourceID, settingsFingerprint string) (*domain.ChunkCacheEntry, error)

	// PutChunks replaces the entry for (SourceID, SettingsFingerprint).
	PutChunks(ctx context.Context, entry *domain.ChunkCacheEntry) error

	// ListChunks describes every chunk entry without loading payloads.
	ListChunks(ctx context.Context) ([]domain.ChunkCacheInfo, error)

	// GetEmbeddings returns cached vectors for the given content hashes.
	// Missing hashes are simply absent from the result.
	GetEmbeddings(ctx context.Context, model string, contentHashes []string) (map[string][]float32, error)

	// PutEmbeddings stores vectors keyed by content hash.
	PutEmbeddings(ctx context.Context, entries []domain.EmbeddingCacheEntry) error

	// Stats counts chunk entries and embeddings per model.
	Stats(ctx context.Context) (*domain.CacheStats, error)

	// Prune removes entries created before the cutoff and reports how many.
	Prune(ctx context.Context, before time.Time) (int, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close() error
}
