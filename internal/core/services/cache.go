package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

// CacheDecision is the outcome of a chunk cache lookup.
type CacheDecision struct {
	State domain.CacheState

	// Entry is set for FRESH and STALE decisions.
	Entry *domain.ChunkCacheEntry
}

// CacheManager decides whether cached chunk sets and embeddings can be
// reused. The store is the only state shared between concurrent source
// pipelines, so read-decide-write sequences hold a per-key lock.
type CacheManager struct {
	store     driven.CacheStore
	freshness time.Duration
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewCacheManager creates a cache manager over a store.
func NewCacheManager(store driven.CacheStore, settings domain.CacheSettings) *CacheManager {
	return &CacheManager{
		store:     store,
		freshness: settings.FreshnessWindow,
		now:       time.Now,
		locks:     make(map[string]*keyLock),
	}
}

// CacheKey joins a source ID and settings fingerprint.
func CacheKey(sourceID, settingsFingerprint string) string {
	return sourceID + "@" + settingsFingerprint
}

// Lock serialises work on one cache key and returns the unlock function.
func (m *CacheManager) Lock(key string) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// Lookup decides the state of a source's entry. An entry is FRESH only if it
// was computed from identical content for the same reference and is younger
// than the freshness window. Unreadable entries count as MISSING.
func (m *CacheManager) Lookup(ctx context.Context, source domain.Source, settingsFP, contentFP string) CacheDecision {
	entry, err := m.store.GetChunks(ctx, source.ID, settingsFP)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return CacheDecision{State: domain.CacheMissing}
	case err != nil:
		logger.Warn("cache: treating %s as missing: %v", CacheKey(source.ID, settingsFP), err)
		return CacheDecision{State: domain.CacheMissing}
	}

	switch {
	case entry.ContentFingerprint != contentFP:
		logger.Debug("cache: %s content changed", source.ID)
		return CacheDecision{State: domain.CacheStale, Entry: entry}
	case entry.URI != source.URI:
		logger.Debug("cache: %s reference changed", source.ID)
		return CacheDecision{State: domain.CacheStale, Entry: entry}
	case entry.Age(m.now()) >= m.freshness:
		logger.Debug("cache: %s expired", source.ID)
		return CacheDecision{State: domain.CacheStale, Entry: entry}
	}
	return CacheDecision{State: domain.CacheFresh, Entry: entry}
}

// Commit replaces a source's entry. Failures are logged and otherwise
// ignored: the next run recomputes.
func (m *CacheManager) Commit(ctx context.Context, entry *domain.ChunkCacheEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	if err := m.store.PutChunks(ctx, entry); err != nil {
		logger.Warn("cache: write %s: %v", CacheKey(entry.SourceID, entry.SettingsFingerprint), err)
	}
}

// Status reports every chunk entry. Entries written under another settings
// fingerprint, or older than the freshness window, are stale.
func (m *CacheManager) Status(ctx context.Context, settingsFP string) ([]domain.CacheStatus, error) {
	infos, err := m.store.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}

	now := m.now()
	statuses := make([]domain.CacheStatus, 0, len(infos))
	for _, info := range infos {
		age := now.Sub(info.CreatedAt)
		state := domain.CacheFresh
		if info.SettingsFingerprint != settingsFP || age >= m.freshness {
			state = domain.CacheStale
		}
		statuses = append(statuses, domain.CacheStatus{
			Key:        CacheKey(info.SourceID, info.SettingsFingerprint),
			SourceID:   info.SourceID,
			URI:        info.URI,
			ChunkCount: info.ChunkCount,
			Age:        age,
			State:      state,
		})
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Key < statuses[j].Key
	})
	return statuses, nil
}

// Stats returns entry counts from the store.
func (m *CacheManager) Stats(ctx context.Context) (*domain.CacheStats, error) {
	return m.store.Stats(ctx)
}

// Clear drops every chunk and embedding entry.
func (m *CacheManager) Clear(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Cleanup removes entries older than the given age.
func (m *CacheManager) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	n, err := m.store.Prune(ctx, m.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	if n > 0 {
		logger.Info("cache: pruned %d entries older than %s", n, olderThan)
	}
	return n, nil
}

// Embeddings returns cached vectors for content hashes under a model.
// A read failure is logged and reported as an empty result.
func (m *CacheManager) Embeddings(ctx context.Context, model string, hashes []string) map[string][]float32 {
	if len(hashes) == 0 {
		return map[string][]float32{}
	}
	vectors, err := m.store.GetEmbeddings(ctx, model, hashes)
	if err != nil {
		logger.Warn("cache: read embeddings for %s: %v", model, err)
		return map[string][]float32{}
	}
	return vectors
}

// StoreEmbeddings caches vectors keyed by content hash.
func (m *CacheManager) StoreEmbeddings(ctx context.Context, model string, vectors map[string][]float32) {
	if len(vectors) == 0 {
		return
	}
	now := m.now()
	entries := make([]domain.EmbeddingCacheEntry, 0, len(vectors))
	for hash, vec := range vectors {
		entries = append(entries, domain.EmbeddingCacheEntry{
			ContentHash: hash,
			Model:       model,
			Vector:      vec,
			CreatedAt:   now,
		})
	}
	if err := m.store.PutEmbeddings(ctx, entries); err != nil {
		logger.Warn("cache: write embeddings for %s: %v", model, err)
	}
}
