package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
	"github.com/custodia-labs/sercha-ingest/internal/retry"
)

// Ensure Embedder implements the interface.
var _ driving.EmbeddingService = (*Embedder)(nil)

// Embedder computes chunk embeddings through a single-attempt client,
// reusing cached vectors and retrying failed batches.
type Embedder struct {
	client      driven.EmbeddingService
	cache       *CacheManager
	batchSize   int
	concurrency int
	policy      retry.Policy
	limiter     *retry.Limiter
}

// NewEmbedder creates an embedder. The cache may be nil.
func NewEmbedder(client driven.EmbeddingService, cache *CacheManager, settings domain.EmbeddingSettings) *Embedder {
	batchSize := settings.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	concurrency := settings.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	policy := retry.FromSettings(settings.Retry)
	policy.OnRetry = func(attempt int, err error) {
		logger.Warn("embedding: attempt %d failed, retrying: %v", attempt, err)
	}

	return &Embedder{
		client:      client,
		cache:       cache,
		batchSize:   batchSize,
		concurrency: concurrency,
		policy:      policy,
		limiter:     retry.NewLimiter(settings.RequestsPerSecond, concurrency),
	}
}

// Model returns the model vectors are cached under.
func (e *Embedder) Model() string {
	if e.client == nil {
		return ""
	}
	return e.client.ModelName()
}

// batch is a set of distinct content hashes embedded in one request.
type batch struct {
	index  int
	hashes []string
	texts  []string
}

// EmbedChunks embeds each distinct chunk text once. Cached vectors are
// reused; each successful batch is cached as soon as it completes, so a
// rerun after a failure only repeats the failed batches.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []domain.Chunk) (*driving.EmbedResult, error) {
	if e.client == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	model := e.client.ModelName()

	// Group chunk IDs by content hash in first-seen order.
	var hashes []string
	idsByHash := make(map[string][]string)
	textByHash := make(map[string]string)
	for i := range chunks {
		c := &chunks[i]
		if _, ok := idsByHash[c.ContentHash]; !ok {
			hashes = append(hashes, c.ContentHash)
			textByHash[c.ContentHash] = c.Text
		}
		idsByHash[c.ContentHash] = append(idsByHash[c.ContentHash], c.ID)
	}

	result := &driving.EmbedResult{Vectors: make(map[string][]float32, len(chunks))}

	var cached map[string][]float32
	if e.cache != nil {
		cached = e.cache.Embeddings(ctx, model, hashes)
	}

	var batches []batch
	var current batch
	for _, h := range hashes {
		if vec, ok := cached[h]; ok {
			for _, id := range idsByHash[h] {
				result.Vectors[id] = vec
			}
			result.Reused++
			continue
		}
		current.hashes = append(current.hashes, h)
		current.texts = append(current.texts, textByHash[h])
		if len(current.hashes) == e.batchSize {
			current.index = len(batches)
			batches = append(batches, current)
			current = batch{}
		}
	}
	if len(current.hashes) > 0 {
		current.index = len(batches)
		batches = append(batches, current)
	}

	if len(batches) == 0 {
		return result, nil
	}
	logger.Debug("embedding: %d batches for %d texts (%d cached)", len(batches), len(hashes)-result.Reused, result.Reused)

	var (
		mu   sync.Mutex
		errs []*domain.BatchEmbeddingError
		g    errgroup.Group
	)
	g.SetLimit(e.concurrency)

	for _, b := range batches {
		g.Go(func() error {
			vectors, attempts, err := e.embedBatch(ctx, b)
			if err != nil {
				var ids []string
				for _, h := range b.hashes {
					ids = append(ids, idsByHash[h]...)
				}
				mu.Lock()
				errs = append(errs, &domain.BatchEmbeddingError{
					Batch:    b.index,
					ChunkIDs: ids,
					Attempts: attempts,
					Err:      err,
				})
				mu.Unlock()
				return nil
			}

			byHash := make(map[string][]float32, len(vectors))
			for i, h := range b.hashes {
				byHash[h] = vectors[i]
			}
			if e.cache != nil {
				e.cache.StoreEmbeddings(ctx, model, byHash)
			}

			mu.Lock()
			for h, vec := range byHash {
				for _, id := range idsByHash[h] {
					result.Vectors[id] = vec
				}
			}
			result.Computed += len(b.hashes)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) == 0 {
		return result, nil
	}

	sort.Slice(errs, func(i, j int) bool { return errs[i].Batch < errs[j].Batch })
	joined := make([]error, len(errs))
	for i, err := range errs {
		logger.Error("%v", err)
		joined[i] = err
	}
	return result, errors.Join(joined...)
}

// embedBatch makes paced, retried single-attempt calls for one batch.
func (e *Embedder) embedBatch(ctx context.Context, b batch) ([][]float32, int, error) {
	var vectors [][]float32
	attempts, err := e.policy.Do(ctx, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		out, err := e.client.EmbedBatch(ctx, b.texts)
		if err != nil {
			e.limiter.Backoff(retry.RetryAfter(err))
			return err
		}
		if len(out) != len(b.texts) {
			return fmt.Errorf("expected %d vectors, got %d: %w", len(b.texts), len(out), domain.ErrTransient)
		}
		vectors = out
		return nil
	})
	return vectors, attempts, err
}
