package domain

import "time"

// CacheState is the lifecycle state of a chunk cache key.
type CacheState string

// Cache states.
const (
	// CacheMissing means no usable entry exists.
	CacheMissing CacheState = "missing"

	// CacheFresh means the entry may be reused as-is.
	CacheFresh CacheState = "fresh"

	// CacheStale means the entry exists but must be recomputed.
	CacheStale CacheState = "stale"
)

// String returns the string representation.
func (s CacheState) String() string {
	return string(s)
}

// ChunkCacheEntry holds the full chunk set computed for a source under one
// settings fingerprint. Entries are replaced wholesale, never patched.
type ChunkCacheEntry struct {
	SourceID            string
	SettingsFingerprint string

	// ContentFingerprint is the hash of the raw content the chunks came from.
	ContentFingerprint string

	// URI is the canonical reference the document ID was derived from.
	URI string

	CreatedAt time.Time
	Chunks    []Chunk
}

// Age returns how long ago the entry was created.
func (e *ChunkCacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// EmbeddingCacheEntry is a vector keyed by chunk content hash and model.
type EmbeddingCacheEntry struct {
	ContentHash string
	Model       string
	Vector      []float32
	CreatedAt   time.Time
}

// ChunkCacheInfo describes a chunk cache entry without its payload.
type ChunkCacheInfo struct {
	SourceID            string
	SettingsFingerprint string
	ContentFingerprint  string
	URI                 string
	ChunkCount          int
	CreatedAt           time.Time
}

// CacheStatus is the read-only report for one cache key.
type CacheStatus struct {
	Key        string
	SourceID   string
	URI        string
	ChunkCount int
	Age        time.Duration
	State      CacheState
}

// CacheStats summarises the embedding cache per model.
type CacheStats struct {
	ChunkEntries int
	Embeddings   map[string]int
}
