package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// Fetcher retrieves the raw content of a source.
// Retries, if any, are the fetcher's own concern.
type Fetcher interface {
	// Fetch returns the raw bytes along with a fingerprint of them.
	Fetch(ctx context.Context, source domain.Source) (*domain.FetchResult, error)
}
