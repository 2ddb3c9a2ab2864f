package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.CacheStore = (*Store)(nil)

// maxQueryParams bounds the IN list of a single embedding lookup.
const maxQueryParams = 500

// Store is the SQLite-backed chunk and embedding cache.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.sercha-ingest/data/cache.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".sercha-ingest", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "cache.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations and records each applied version.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_cache.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Chunk Cache ====================

// GetChunks returns the chunk set for a source under a settings fingerprint.
func (s *Store) GetChunks(ctx context.Context, sourceID, settingsFingerprint string) (*domain.ChunkCacheEntry, error) {
	entry := &domain.ChunkCacheEntry{
		SourceID:            sourceID,
		SettingsFingerprint: settingsFingerprint,
	}
	var (
		chunkCount int
		payload    string
		createdAt  int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT content_fingerprint, uri, chunk_count, payload, created_at
		FROM chunk_cache WHERE source_id = ? AND settings_fingerprint = ?
	`, sourceID, settingsFingerprint).Scan(&entry.ContentFingerprint, &entry.URI, &chunkCount, &payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying chunk cache: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &entry.Chunks); err != nil {
		return nil, fmt.Errorf("%w: decoding chunks for %s: %v", domain.ErrCorruptEntry, sourceID, err)
	}
	if len(entry.Chunks) != chunkCount {
		return nil, fmt.Errorf("%w: %s has %d chunks, expected %d",
			domain.ErrCorruptEntry, sourceID, len(entry.Chunks), chunkCount)
	}
	entry.CreatedAt = time.Unix(0, createdAt)

	return entry, nil
}

// PutChunks replaces the entry for (SourceID, SettingsFingerprint).
func (s *Store) PutChunks(ctx context.Context, entry *domain.ChunkCacheEntry) error {
	chunks := entry.Chunks
	if chunks == nil {
		chunks = []domain.Chunk{}
	}
	payload, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("marshalling chunks: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO chunk_cache
			(source_id, settings_fingerprint, content_fingerprint, uri, chunk_count, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.SourceID, entry.SettingsFingerprint, entry.ContentFingerprint, entry.URI,
		len(chunks), string(payload), entry.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("writing chunk cache: %w", err)
	}

	return tx.Commit()
}

// ListChunks describes every chunk entry without loading payloads.
func (s *Store) ListChunks(ctx context.Context) ([]domain.ChunkCacheInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, settings_fingerprint, content_fingerprint, uri, chunk_count, created_at
		FROM chunk_cache ORDER BY source_id, settings_fingerprint
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chunk cache: %w", err)
	}
	defer rows.Close()

	var infos []domain.ChunkCacheInfo
	for rows.Next() {
		var info domain.ChunkCacheInfo
		var createdAt int64
		if err := rows.Scan(&info.SourceID, &info.SettingsFingerprint, &info.ContentFingerprint,
			&info.URI, &info.ChunkCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chunk cache: %w", err)
		}
		info.CreatedAt = time.Unix(0, createdAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// ==================== Embedding Cache ====================

// GetEmbeddings returns cached vectors for content hashes under a model.
// Rows whose blob does not match their recorded dimensions are skipped.
func (s *Store) GetEmbeddings(ctx context.Context, model string, contentHashes []string) (map[string][]float32, error) {
	result := make(map[string][]float32, len(contentHashes))

	for start := 0; start < len(contentHashes); start += maxQueryParams {
		end := min(start+maxQueryParams, len(contentHashes))
		batch := contentHashes[start:end]

		args := make([]any, 0, len(batch)+1)
		args = append(args, model)
		for _, h := range batch {
			args = append(args, h)
		}

		//nolint:gosec // placeholders only, values are bound
		query := `SELECT content_hash, dimensions, vector FROM embedding_cache
			WHERE model = ? AND content_hash IN (?` + strings.Repeat(",?", len(batch)-1) + `)`

		if err := s.scanEmbeddings(ctx, query, args, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (s *Store) scanEmbeddings(ctx context.Context, query string, args []any, into map[string][]float32) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying embedding cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			hash string
			dims int
			blob []byte
		)
		if err := rows.Scan(&hash, &dims, &blob); err != nil {
			return fmt.Errorf("scanning embedding cache: %w", err)
		}
		if len(blob) != dims*4 {
			continue
		}
		into[hash] = bytesToFloat32Slice(blob)
	}
	return rows.Err()
}

// PutEmbeddings stores vectors keyed by content hash and model.
func (s *Store) PutEmbeddings(ctx context.Context, entries []domain.EmbeddingCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO embedding_cache (content_hash, model, dimensions, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing embedding insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ContentHash, e.Model, len(e.Vector),
			float32SliceToBytes(e.Vector), e.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("writing embedding %s: %w", e.ContentHash, err)
		}
	}

	return tx.Commit()
}

// ==================== Maintenance ====================

// Stats counts chunk entries and embeddings per model.
func (s *Store) Stats(ctx context.Context) (*domain.CacheStats, error) {
	stats := &domain.CacheStats{Embeddings: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunk_cache").Scan(&stats.ChunkEntries); err != nil {
		return nil, fmt.Errorf("counting chunk cache: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT model, COUNT(*) FROM embedding_cache GROUP BY model")
	if err != nil {
		return nil, fmt.Errorf("counting embedding cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var model string
		var count int
		if err := rows.Scan(&model, &count); err != nil {
			return nil, fmt.Errorf("scanning embedding counts: %w", err)
		}
		stats.Embeddings[model] = count
	}
	return stats, rows.Err()
}

// Prune removes entries created before the cutoff.
func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	return s.deleteWhere(ctx, "WHERE created_at < ?", before.UnixNano())
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.deleteWhere(ctx, "")
	return err
}

func (s *Store) deleteWhere(ctx context.Context, where string, args ...any) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, table := range []string{"chunk_cache", "embedding_cache"} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" "+where, args...) //nolint:gosec // fixed table names
		if err != nil {
			return 0, fmt.Errorf("deleting from %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("counting deleted rows: %w", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}
	return int(total), nil
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
