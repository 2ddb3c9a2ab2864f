package main

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/embedding"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/fetch"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/services"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers/cleaner"
	"github.com/custodia-labs/sercha-ingest/internal/normalisers/structure"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors"
	"github.com/custodia-labs/sercha-ingest/internal/retry"
)

// newRuntime wires the pipeline for one command invocation.
func newRuntime(settings domain.Settings, opts cli.RuntimeOptions) (*cli.Runtime, error) {
	pipeline, err := postprocessors.DefaultRegistry().BuildPipeline(settings.Pipeline, settings.Chunking)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	store, err := sqlite.NewStore(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	cache := services.NewCacheManager(store, settings.Cache)

	fetchPolicy := retry.FromSettings(settings.Run.Retry)
	fetcher := fetch.NewComposite(
		fetch.NewFileFetcher(),
		fetch.NewHTTPFetcher(settings.Run.FetchTimeout, fetch.WithRetryPolicy(fetchPolicy)),
	)

	ingest := services.NewIngestService(services.IngestDeps{
		Fetcher:    fetcher,
		Extractors: normalisers.DefaultRegistry(),
		Normaliser: cleaner.New(),
		Parser:     structure.New(),
		Pipeline:   pipeline,
		Cache:      cache,
	}, settings)

	closers := []func() error{store.Close}
	rt := &cli.Runtime{
		Ingest:        ingest,
		Fetcher:       fetcher,
		Stats:         cache,
		CacheLocation: store.Path(),
	}

	client, err := embedding.CreateEmbeddingService(&settings.Embedding)
	switch {
	case err != nil:
		_ = store.Close()
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	case client == nil:
		logger.Debug("embedding disabled: provider %s is not configured", settings.Embedding.Provider)
	default:
		rt.Embedder = services.NewEmbedder(client, cache, settings.Embedding)
		closers = append(closers, client.Close)
	}

	rt.Close = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	return rt, nil
}
