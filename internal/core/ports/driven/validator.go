package driven

import "github.com/custodia-labs/sercha-ingest/internal/core/domain"

// EmbeddingConfigValidator checks that an embedding configuration works by
// contacting the provider.
type EmbeddingConfigValidator interface {
	// ValidateEmbedding returns nil if the configuration is valid or not
	// configured at all.
	ValidateEmbedding(config *domain.EmbeddingSettings) error
}
