package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/dedup"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/identity"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestDeps are the collaborators of an IngestService.
type IngestDeps struct {
	Fetcher    driven.Fetcher
	Extractors driven.ExtractorRegistry
	Normaliser driven.TextNormaliser
	Parser     driven.StructureParser
	Pipeline   driven.PostProcessorPipeline
	Cache      *CacheManager
}

// IngestService runs the fetch, extract, clean, parse and chunk pipeline
// per source, serving unchanged sources from the chunk cache.
type IngestService struct {
	deps        IngestDeps
	settingsFP  string
	workers     int
	pruneAfter  time.Duration
	maxDistance int
	now         func() time.Time
}

// NewIngestService creates an ingest service. Settings must already be
// valid; the settings fingerprint is fixed for the service's lifetime.
func NewIngestService(deps IngestDeps, settings domain.Settings) *IngestService {
	workers := settings.Run.Workers
	if workers <= 0 {
		workers = 1
	}

	maxDistance := dedup.DefaultMaxDistance
	if cfg := settings.Pipeline.GetProcessorConfig("dedup"); cfg != nil {
		switch v := cfg["max_distance"].(type) {
		case int:
			maxDistance = v
		case int64:
			maxDistance = int(v)
		case float64:
			maxDistance = int(v)
		}
	}

	return &IngestService{
		deps:        deps,
		settingsFP:  settings.Fingerprint(deps.Normaliser.RuleVersion()),
		workers:     workers,
		pruneAfter:  settings.Cache.PruneAfter,
		maxDistance: maxDistance,
		now:         time.Now,
	}
}

// SettingsFingerprint returns the fingerprint chunks are cached under.
func (s *IngestService) SettingsFingerprint() string {
	return s.settingsFP
}

// Process returns the chunk set for one source.
// The cache entry is only written once the full chunk set exists.
func (s *IngestService) Process(ctx context.Context, source domain.Source) (*domain.SourceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if source.ID == "" {
		source.ID = identity.DocID(source.URI)
	}

	fetched, err := s.deps.Fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source.URI, err)
	}

	unlock := s.deps.Cache.Lock(CacheKey(source.ID, s.settingsFP))
	defer unlock()

	result := &domain.SourceResult{
		Source: source,
		DocID:  identity.DocID(source.URI),
	}

	decision := s.deps.Cache.Lookup(ctx, source, s.settingsFP, fetched.Fingerprint)
	result.CacheState = decision.State
	if decision.State == domain.CacheFresh {
		logger.Debug("ingest: %s served from cache", source.ID)
		result.Chunks = decision.Entry.Chunks
		return result, nil
	}

	doc, err := s.document(ctx, source, fetched)
	if err != nil {
		return nil, err
	}

	chunks, err := s.deps.Pipeline.Process(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", source.URI, err)
	}

	s.deps.Cache.Commit(ctx, &domain.ChunkCacheEntry{
		SourceID:            source.ID,
		SettingsFingerprint: s.settingsFP,
		ContentFingerprint:  fetched.Fingerprint,
		URI:                 source.URI,
		CreatedAt:           s.now(),
		Chunks:              chunks,
	})

	logger.Debug("ingest: %s produced %d chunks (%s)", source.ID, len(chunks), decision.State)
	result.Chunks = chunks
	result.Diagnostics = doc.Diagnostics
	return result, nil
}

// document extracts, cleans and parses fetched content.
func (s *IngestService) document(ctx context.Context, source domain.Source, fetched *domain.FetchResult) (*domain.Document, error) {
	extractor, err := s.deps.Extractors.Get(fetched.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", source.URI, err)
	}
	extraction, err := extractor.Extract(ctx, fetched.Content, fetched.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", source.URI, err)
	}

	// Hints are matched against cleaned lines, so they get the same cleaning.
	hints := make([]domain.StructuralHint, 0, len(extraction.Hints))
	headings := make([]string, 0, len(extraction.Hints))
	for _, h := range extraction.Hints {
		h.Text = s.deps.Normaliser.Normalise(h.Text).Text
		if h.Text != "" {
			hints = append(hints, h)
			headings = append(headings, h.Text)
		}
	}

	cleaned := s.deps.Normaliser.Normalise(extraction.Text, headings...)
	if cleaned.Replaced > 0 {
		logger.Warn("ingest: %s: replaced %d malformed byte sequences", source.URI, cleaned.Replaced)
	}

	title := source.Title
	if title == "" {
		title = extraction.Title
	}

	return &domain.Document{
		SourceID: source.ID,
		URI:      source.URI,
		Title:    title,
		Text:     cleaned.Text,
		MIMEType: fetched.MIMEType,
		Language: extraction.Language,
		Nodes:    s.deps.Parser.Parse(cleaned.Text, hints),
		Diagnostics: domain.Diagnostics{
			ReplacedBytes: cleaned.Replaced,
			StrippedLines: cleaned.StrippedLines,
		},
	}, nil
}

// Run processes sources concurrently. Results keep the input order, a
// failing source is recorded without stopping the others, and chunks that
// resemble chunks of another document are flagged afterwards.
func (s *IngestService) Run(ctx context.Context, sources []domain.Source) (*domain.RunReport, error) {
	report := &domain.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
	}
	logger.Section("Run " + report.RunID)

	results := make([]*domain.SourceResult, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, source := range sources {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = s.Process(ctx, source)
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		if errs[i] != nil {
			if !errors.Is(errs[i], context.Canceled) {
				logger.Warn("ingest: %s failed: %v", sources[i].URI, errs[i])
			}
			report.Failures = append(report.Failures, domain.SourceFailure{Source: sources[i], Err: errs[i]})
			continue
		}
		if res.CacheState == domain.CacheFresh {
			report.CacheHits++
		} else {
			report.Recomputed++
		}
		report.DroppedDuplicates += res.Diagnostics.DroppedDuplicates
		report.Results = append(report.Results, *res)
	}

	sets := make([][]domain.Chunk, len(report.Results))
	for i := range report.Results {
		sets[i] = report.Results[i].Chunks
	}
	report.NearDuplicates = dedup.FlagAcross(sets, s.maxDistance)
	report.Elapsed = s.now().Sub(report.StartedAt)

	logger.Info("run %s: %d sources, %d from cache, %d recomputed, %d failed, %d near-duplicates",
		report.RunID, len(sources), report.CacheHits, report.Recomputed, len(report.Failures), report.NearDuplicates)

	return report, ctx.Err()
}

// CacheStatus reports every chunk cache key. It never changes cache state.
func (s *IngestService) CacheStatus(ctx context.Context) ([]domain.CacheStatus, error) {
	return s.deps.Cache.Status(ctx, s.settingsFP)
}

// ClearCache forces every key back to MISSING.
func (s *IngestService) ClearCache(ctx context.Context) error {
	return s.deps.Cache.Clear(ctx)
}

// PruneCache removes entries older than the configured prune age.
func (s *IngestService) PruneCache(ctx context.Context) (int, error) {
	return s.deps.Cache.Cleanup(ctx, s.pruneAfter)
}
