// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The CacheManager is the only owner of cache state. IngestService runs the
// per-source pipeline on a bounded worker pool and Embedder fans embedding
// batches out under a retry policy. Services never import adapters.
package services
