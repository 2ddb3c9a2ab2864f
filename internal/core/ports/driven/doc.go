// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Fetcher: Retrieves raw bytes and a content fingerprint for a source
//   - ExtractorRegistry: Selects an Extractor by MIME type
//   - TextNormaliser: Cleans extracted text
//   - StructureParser: Builds structural nodes from cleaned text
//   - TokenCounter: Deterministic token counts
//   - PostProcessorPipeline: Chunking, identity, enrichment, quality and dedup stages
//   - CacheStore: Chunk and embedding cache persistence
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Generates vectors. Without it, runs stop after chunking.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
