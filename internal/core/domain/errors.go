package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates no extractor handles a MIME type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrUnsupportedScheme indicates no fetcher handles a reference scheme.
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// Cache Errors.

	// ErrCorruptEntry indicates a cache record could not be decoded.
	ErrCorruptEntry = errors.New("corrupt cache entry")

	// Transport Errors.

	// ErrRateLimited indicates the remote API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient indicates a failure worth retrying.
	ErrTransient = errors.New("transient failure")
)

// ConfigurationError reports settings that cannot produce valid chunks.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// HashingError reports input that could not be hashed.
type HashingError struct {
	Input string
	Err   error
}

func (e *HashingError) Error() string {
	return fmt.Sprintf("hashing %s: %v", e.Input, e.Err)
}

func (e *HashingError) Unwrap() error {
	return e.Err
}

// BatchEmbeddingError names the chunks of an embedding batch that exhausted
// its retries, so a later run can resume just that batch.
type BatchEmbeddingError struct {
	Batch    int
	ChunkIDs []string
	Attempts int
	Err      error
}

func (e *BatchEmbeddingError) Error() string {
	return fmt.Sprintf("embedding batch %d failed after %d attempts (chunks %s): %v",
		e.Batch, e.Attempts, strings.Join(e.ChunkIDs, ", "), e.Err)
}

func (e *BatchEmbeddingError) Unwrap() error {
	return e.Err
}
