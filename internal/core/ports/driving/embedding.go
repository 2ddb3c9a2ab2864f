package driving

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// EmbedResult holds vectors keyed by chunk ID.
type EmbedResult struct {
	Vectors map[string][]float32

	// Reused counts distinct texts served from the embedding cache.
	Reused int

	// Computed counts distinct texts sent to the provider.
	Computed int
}

// Embeddings returns the vectors for chunks in the given order,
// skipping chunks that have no vector.
func (r *EmbedResult) Embeddings(chunks []domain.Chunk, model string) []domain.Embedding {
	out := make([]domain.Embedding, 0, len(chunks))
	for i := range chunks {
		vec, ok := r.Vectors[chunks[i].ID]
		if !ok {
			continue
		}
		out = append(out, domain.Embedding{
			ChunkID:     chunks[i].ID,
			ContentHash: chunks[i].ContentHash,
			Model:       model,
			Vector:      vec,
		})
	}
	return out
}

// EmbeddingService embeds chunks in batches with caller-side retries.
type EmbeddingService interface {
	// EmbedChunks embeds every chunk once per distinct content hash.
	// On partial failure it returns the successful vectors together with
	// an error joining one domain.BatchEmbeddingError per failed batch.
	EmbedChunks(ctx context.Context, chunks []domain.Chunk) (*EmbedResult, error)

	// Model returns the embedding model vectors are cached under.
	Model() string
}
