// Package domain defines the core entities of the ingestion pipeline.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Source: One input document reference with opaque tags
//   - Document: Normalised text plus its structural nodes (transient)
//   - StructuralNode: A heading path with the body text it governs
//   - Chunk: A token-bounded, identified, quality-scored segment
//   - ChunkCacheEntry / EmbeddingCacheEntry: Persisted cache records
//   - Settings: Every tunable that affects a run
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
