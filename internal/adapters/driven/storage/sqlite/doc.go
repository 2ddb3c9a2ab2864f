// Package sqlite provides a SQLite-based implementation of driven.CacheStore.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One database holds two tables:
//
//   - chunk_cache: one row per (source, settings fingerprint), the chunk set
//     serialised as JSON
//   - embedding_cache: one row per (content hash, model), the vector stored
//     as little-endian float32s
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha-ingest/data/cache.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode, and chunk entries are replaced inside a transaction.
package sqlite
