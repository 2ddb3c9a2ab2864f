package services

import (
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyMaxTokens       = "chunking.max_tokens"
	keyOverlapTokens   = "chunking.overlap_tokens"
	keyMinTokens       = "chunking.min_tokens"
	keyTokenizer       = "chunking.tokenizer"
	keyCacheFreshness  = "cache.freshness"
	keyCachePruneAfter = "cache.prune_after"
	keyEmbedProvider   = "embedding.provider"
	keyEmbedModel      = "embedding.model"
	keyEmbedBaseURL    = "embedding.base_url"
	keyEmbedAPIKey     = "embedding.api_key"
	keyEmbedBatchSize  = "embedding.batch_size"
	keyEmbedParallel   = "embedding.concurrency"
	keyEmbedRate       = "embedding.requests_per_second"
	keyRetryAttempts   = "retry.max_attempts"
	keyRetryBaseDelay  = "retry.base_delay"
	keyRetryMaxDelay   = "retry.max_delay"
	keyRetryJitter     = "retry.jitter"
	keyRunWorkers      = "run.workers"
	keyFetchTimeout    = "run.fetch_timeout"
	keyProcessors      = "pipeline.processors"
	keyDedupDistance   = "dedup.max_distance"
)

// SettingsService resolves settings from defaults, the config store and
// any overlays, in that order of precedence.
type SettingsService struct {
	configStore driven.ConfigStore
	overlays    []driven.SettingsOverlay
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, overlays ...driven.SettingsOverlay) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		overlays:    overlays,
	}
}

// Get retrieves the effective settings.
func (s *SettingsService) Get() (*domain.Settings, error) {
	d := domain.DefaultSettings()

	retry := domain.RetrySettings{
		MaxAttempts: s.getInt(keyRetryAttempts, d.Embedding.Retry.MaxAttempts),
		BaseDelay:   s.getDuration(keyRetryBaseDelay, d.Embedding.Retry.BaseDelay),
		MaxDelay:    s.getDuration(keyRetryMaxDelay, d.Embedding.Retry.MaxDelay),
		Jitter:      s.getFloat(keyRetryJitter, d.Embedding.Retry.Jitter),
	}

	settings := &domain.Settings{
		Chunking: domain.ChunkingSettings{
			MaxTokens:     s.getInt(keyMaxTokens, d.Chunking.MaxTokens),
			OverlapTokens: s.getInt(keyOverlapTokens, d.Chunking.OverlapTokens),
			MinTokens:     s.getInt(keyMinTokens, d.Chunking.MinTokens),
			Tokenizer:     s.getTokenizer(d.Chunking.Tokenizer),
		},
		Cache: domain.CacheSettings{
			FreshnessWindow: s.getDuration(keyCacheFreshness, d.Cache.FreshnessWindow),
			PruneAfter:      s.getDuration(keyCachePruneAfter, d.Cache.PruneAfter),
		},
		Embedding: domain.EmbeddingSettings{
			Provider:          s.getProvider(d.Embedding.Provider),
			Model:             s.getString(keyEmbedModel, d.Embedding.Model),
			BaseURL:           s.configStore.GetString(keyEmbedBaseURL), // empty means the provider default
			APIKey:            s.configStore.GetString(keyEmbedAPIKey),
			BatchSize:         s.getInt(keyEmbedBatchSize, d.Embedding.BatchSize),
			Concurrency:       s.getInt(keyEmbedParallel, d.Embedding.Concurrency),
			RequestsPerSecond: s.getFloat(keyEmbedRate, d.Embedding.RequestsPerSecond),
			Retry:             retry,
		},
		Run: domain.RunSettings{
			Workers:      s.getInt(keyRunWorkers, d.Run.Workers),
			FetchTimeout: s.getDuration(keyFetchTimeout, d.Run.FetchTimeout),
			Retry:        retry,
		},
		Pipeline: d.Pipeline,
	}

	if processors := s.configStore.GetStringSlice(keyProcessors); len(processors) > 0 {
		settings.Pipeline.Processors = processors
	}
	if _, ok := s.configStore.Get(keyDedupDistance); ok {
		settings.Pipeline.ProcessorConfigs["dedup"] = map[string]any{
			"max_distance": s.configStore.GetInt(keyDedupDistance),
		}
	}

	for _, overlay := range s.overlays {
		if err := overlay.Apply(settings); err != nil {
			return nil, fmt.Errorf("apply settings overlay: %w", err)
		}
	}

	return settings, nil
}

// Save persists settings to the config store. Overlays are not persisted.
func (s *SettingsService) Save(settings *domain.Settings) error {
	values := []struct {
		key   string
		value any
	}{
		{keyMaxTokens, settings.Chunking.MaxTokens},
		{keyOverlapTokens, settings.Chunking.OverlapTokens},
		{keyMinTokens, settings.Chunking.MinTokens},
		{keyTokenizer, settings.Chunking.Tokenizer.String()},
		{keyCacheFreshness, settings.Cache.FreshnessWindow.String()},
		{keyCachePruneAfter, settings.Cache.PruneAfter.String()},
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedBatchSize, settings.Embedding.BatchSize},
		{keyEmbedParallel, settings.Embedding.Concurrency},
		{keyEmbedRate, settings.Embedding.RequestsPerSecond},
		{keyRetryAttempts, settings.Embedding.Retry.MaxAttempts},
		{keyRetryBaseDelay, settings.Embedding.Retry.BaseDelay.String()},
		{keyRetryMaxDelay, settings.Embedding.Retry.MaxDelay.String()},
		{keyRetryJitter, settings.Embedding.Retry.Jitter},
		{keyRunWorkers, settings.Run.Workers},
		{keyFetchTimeout, settings.Run.FetchTimeout.String()},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	if settings.Embedding.APIKey != "" {
		if err := s.configStore.Set(keyEmbedAPIKey, settings.Embedding.APIKey); err != nil {
			return fmt.Errorf("save %s: %w", keyEmbedAPIKey, err)
		}
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// Validate checks the effective settings.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return settings.Validate()
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetDuration(key)
	if val <= 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getTokenizer(defaultVal domain.Tokenizer) domain.Tokenizer {
	val := s.configStore.GetString(keyTokenizer)
	if val == "" {
		return defaultVal
	}
	// Unknown values are kept so Validate can report them.
	return domain.Tokenizer(val)
}

func (s *SettingsService) getProvider(defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(keyEmbedProvider)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}
