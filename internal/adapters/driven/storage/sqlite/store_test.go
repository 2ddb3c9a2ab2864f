package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "sercha-ingest-test-*")
	require.NoError(t, err)

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		assert.NoError(t, store.Close())
		assert.NoError(t, os.RemoveAll(tempDir))
	}

	return store, cleanup
}

func testEntry(sourceID, settingsFP string, createdAt time.Time) *domain.ChunkCacheEntry {
	return &domain.ChunkCacheEntry{
		SourceID:            sourceID,
		SettingsFingerprint: settingsFP,
		ContentFingerprint:  "content-1",
		URI:                 "https://example.com/" + sourceID,
		CreatedAt:           createdAt,
		Chunks: []domain.Chunk{
			{
				ID:          "doc_abc#00000-deadbeef",
				DocID:       "doc_abc",
				SourceID:    sourceID,
				Text:        "first chunk",
				ChunkIndex:  0,
				TotalChunks: 2,
				HeadingPath: []string{"Guide", "Install"},
				ContentHash: "deadbeefdeadbeef",
				SimHash:     0xfeedfacecafebeef,
				SectionType: domain.SectionStructured,
			},
			{
				ID:              "doc_abc#00001-cafebabe",
				DocID:           "doc_abc",
				SourceID:        sourceID,
				Text:            "second chunk",
				ChunkIndex:      1,
				TotalChunks:     2,
				ContentHash:     "cafebabecafebabe",
				IsLowSignal:     true,
				LowSignalReason: domain.LowSignalTooShort,
				RetrievalWeight: 0.49,
			},
		},
	}
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	assert.Equal(t, "cache.db", filepath.Base(store.Path()))
	_, err := os.Stat(store.Path())
	assert.NoError(t, err)
}

func TestNewStore_ReopenKeepsMigrationVersion(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NoError(t, store.PutChunks(context.Background(), testEntry("s1", "fp", time.Now())))
	require.NoError(t, store.Close())

	reopened, err := NewStore(tempDir)
	require.NoError(t, err)
	defer reopened.Close()

	var count int
	require.NoError(t, reopened.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)

	entry, err := reopened.GetChunks(context.Background(), "s1", "fp")
	require.NoError(t, err)
	assert.Len(t, entry.Chunks, 2)
}

func TestStore_PutAndGetChunks(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := testEntry("s1", "fp1", created)
	require.NoError(t, store.PutChunks(ctx, want))

	got, err := store.GetChunks(ctx, "s1", "fp1")
	require.NoError(t, err)
	assert.Equal(t, want.ContentFingerprint, got.ContentFingerprint)
	assert.Equal(t, want.URI, got.URI)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, want.Chunks, got.Chunks)
}

func TestStore_GetChunks_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.GetChunks(context.Background(), "missing", "fp")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_GetChunks_SettingsFingerprintIsPartOfKey(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.PutChunks(ctx, testEntry("s1", "fp1", time.Now())))

	_, err := store.GetChunks(ctx, "s1", "fp2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_PutChunks_Replaces(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.PutChunks(ctx, testEntry("s1", "fp", time.Now())))

	replacement := testEntry("s1", "fp", time.Now())
	replacement.ContentFingerprint = "content-2"
	replacement.Chunks = replacement.Chunks[:1]
	require.NoError(t, store.PutChunks(ctx, replacement))

	got, err := store.GetChunks(ctx, "s1", "fp")
	require.NoError(t, err)
	assert.Equal(t, "content-2", got.ContentFingerprint)
	assert.Len(t, got.Chunks, 1)
}

func TestStore_PutChunks_EmptyChunkSet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	entry := testEntry("s1", "fp", time.Now())
	entry.Chunks = nil
	require.NoError(t, store.PutChunks(ctx, entry))

	got, err := store.GetChunks(ctx, "s1", "fp")
	require.NoError(t, err)
	assert.Empty(t, got.Chunks)
}

func TestStore_GetChunks_CorruptPayload(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.PutChunks(ctx, testEntry("s1", "fp", time.Now())))
	_, err := store.db.Exec("UPDATE chunk_cache SET payload = '[{\"id\":' WHERE source_id = 's1'")
	require.NoError(t, err)

	_, err = store.GetChunks(ctx, "s1", "fp")
	assert.ErrorIs(t, err, domain.ErrCorruptEntry)
}

func TestStore_GetChunks_CountMismatch(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.PutChunks(ctx, testEntry("s1", "fp", time.Now())))
	_, err := store.db.Exec("UPDATE chunk_cache SET chunk_count = 5 WHERE source_id = 's1'")
	require.NoError(t, err)

	_, err = store.GetChunks(ctx, "s1", "fp")
	assert.ErrorIs(t, err, domain.ErrCorruptEntry)
}

func TestStore_ListChunks(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.PutChunks(ctx, testEntry("b", "fp", time.Now())))
	require.NoError(t, store.PutChunks(ctx, testEntry("a", "fp", time.Now())))

	infos, err := store.ListChunks(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].SourceID)
	assert.Equal(t, "b", infos[1].SourceID)
	assert.Equal(t, 2, infos[0].ChunkCount)
	assert.Equal(t, "https://example.com/a", infos[0].URI)
}

func TestStore_Embeddings(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.PutEmbeddings(ctx, []domain.EmbeddingCacheEntry{
		{ContentHash: "h1", Model: "m1", Vector: []float32{0.1, -0.2, 0.3}, CreatedAt: now},
		{ContentHash: "h2", Model: "m1", Vector: []float32{1, 2}, CreatedAt: now},
		{ContentHash: "h1", Model: "m2", Vector: []float32{9}, CreatedAt: now},
	}))

	got, err := store.GetEmbeddings(ctx, "m1", []string{"h1", "h2", "h3"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, -0.2, 0.3}, got["h1"])
	assert.Equal(t, []float32{1, 2}, got["h2"])
	_, ok := got["h3"]
	assert.False(t, ok)

	other, err := store.GetEmbeddings(ctx, "m2", []string{"h1", "h2"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]float32{"h1": {9}}, other)
}

func TestStore_GetEmbeddings_ManyHashes(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	hashes := make([]string, 0, maxQueryParams+20)
	entries := make([]domain.EmbeddingCacheEntry, 0, len(hashes))
	for i := 0; i < maxQueryParams+20; i++ {
		h := fmt.Sprintf("hash-%04d", i)
		hashes = append(hashes, h)
		entries = append(entries, domain.EmbeddingCacheEntry{
			ContentHash: h, Model: "m", Vector: []float32{float32(i)}, CreatedAt: time.Now(),
		})
	}
	require.NoError(t, store.PutEmbeddings(ctx, entries))

	got, err := store.GetEmbeddings(ctx, "m", hashes)
	require.NoError(t, err)
	assert.Len(t, got, len(hashes))
}

func TestStore_GetEmbeddings_SkipsBadBlob(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.PutEmbeddings(ctx, []domain.EmbeddingCacheEntry{
		{ContentHash: "h1", Model: "m", Vector: []float32{1, 2}, CreatedAt: time.Now()},
	}))
	_, err := store.db.Exec("UPDATE embedding_cache SET dimensions = 3")
	require.NoError(t, err)

	got, err := store.GetEmbeddings(ctx, "m", []string{"h1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_StatsPruneClear(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	old := time.Now().Add(-10 * 24 * time.Hour)
	recent := time.Now()

	require.NoError(t, store.PutChunks(ctx, testEntry("old", "fp", old)))
	require.NoError(t, store.PutChunks(ctx, testEntry("new", "fp", recent)))
	require.NoError(t, store.PutEmbeddings(ctx, []domain.EmbeddingCacheEntry{
		{ContentHash: "h1", Model: "m", Vector: []float32{1}, CreatedAt: old},
		{ContentHash: "h2", Model: "m", Vector: []float32{1}, CreatedAt: recent},
		{ContentHash: "h3", Model: "n", Vector: []float32{1}, CreatedAt: recent},
	}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChunkEntries)
	assert.Equal(t, map[string]int{"m": 2, "n": 1}, stats.Embeddings)

	removed, err := store.Prune(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.GetChunks(ctx, "old", "fp")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.GetChunks(ctx, "new", "fp")
	assert.NoError(t, err)

	require.NoError(t, store.Clear(ctx))
	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ChunkEntries)
	assert.Empty(t, stats.Embeddings)
}

func TestFloat32Conversion(t *testing.T) {
	in := []float32{0, 1.5, -3.25, 1e-7}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
	assert.Empty(t, bytesToFloat32Slice(nil))
}

func TestStore_ClosedDatabase(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.GetChunks(context.Background(), "s", "fp")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}
