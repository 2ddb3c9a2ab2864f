package driving

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// IngestService turns sources into chunk sets, reusing cached work.
type IngestService interface {
	// Process returns the chunk set for one source. Chunks are served from
	// cache when the source content and chunking settings are unchanged.
	Process(ctx context.Context, source domain.Source) (*domain.SourceResult, error)

	// Run processes many sources concurrently and flags near-duplicates
	// across documents. A failing source does not stop the others.
	Run(ctx context.Context, sources []domain.Source) (*domain.RunReport, error)

	// CacheStatus reports every chunk cache key with its age and state.
	// It never changes cache state.
	CacheStatus(ctx context.Context) ([]domain.CacheStatus, error)

	// ClearCache forces every key back to MISSING.
	ClearCache(ctx context.Context) error

	// PruneCache removes entries older than the configured prune age.
	PruneCache(ctx context.Context) (int, error)

	// SettingsFingerprint returns the fingerprint chunks are cached under.
	SettingsFingerprint() string
}
