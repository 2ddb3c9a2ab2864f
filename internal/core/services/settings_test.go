package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

type overlayFunc func(*domain.Settings) error

func (f overlayFunc) Apply(s *domain.Settings) error { return f(s) }

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())

	settings, err := service.Get()
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultSettings(), *settings)
	assert.Equal(t, domain.DefaultSettings(), service.GetDefaults())
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("chunking.max_tokens", int64(400))
	_ = store.Set("chunking.overlap_tokens", 0)
	_ = store.Set("chunking.tokenizer", "cl100k_base")
	_ = store.Set("cache.freshness", "12h")
	_ = store.Set("embedding.provider", "ollama")
	_ = store.Set("embedding.model", "nomic-embed-text")
	_ = store.Set("embedding.requests_per_second", 2.5)
	_ = store.Set("retry.jitter", 0.0)
	_ = store.Set("retry.max_attempts", 6)
	_ = store.Set("run.workers", 8)
	_ = store.Set("pipeline.processors", []any{"chunker", "identity"})
	_ = store.Set("dedup.max_distance", 5)

	settings, err := NewSettingsService(store).Get()
	require.NoError(t, err)

	assert.Equal(t, 400, settings.Chunking.MaxTokens)
	assert.Zero(t, settings.Chunking.OverlapTokens, "explicit zero overrides the default")
	assert.Equal(t, domain.TokenizerCL100K, settings.Chunking.Tokenizer)
	assert.Equal(t, 12*time.Hour, settings.Cache.FreshnessWindow)
	assert.Equal(t, domain.AIProviderOllama, settings.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", settings.Embedding.Model)
	assert.InDelta(t, 2.5, settings.Embedding.RequestsPerSecond, 1e-9)
	assert.Zero(t, settings.Embedding.Retry.Jitter)
	assert.Equal(t, 6, settings.Embedding.Retry.MaxAttempts)
	assert.Equal(t, settings.Embedding.Retry, settings.Run.Retry)
	assert.Equal(t, 8, settings.Run.Workers)
	assert.Equal(t, []string{"chunker", "identity"}, settings.Pipeline.Processors)
	assert.Equal(t, 5, settings.Pipeline.GetProcessorConfig("dedup")["max_distance"])
}

func TestSettingsService_Get_InvalidValues(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("embedding.provider", "invalid_provider")
	_ = store.Set("chunking.tokenizer", "gpt2")
	_ = store.Set("cache.freshness", "tomorrow")

	service := NewSettingsService(store)
	settings, err := service.Get()
	require.NoError(t, err)

	assert.Equal(t, domain.AIProviderOpenAI, settings.Embedding.Provider)
	assert.Equal(t, 24*time.Hour, settings.Cache.FreshnessWindow)
	assert.Equal(t, domain.Tokenizer("gpt2"), settings.Chunking.Tokenizer)

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, service.Validate(), &cfgErr)
	assert.Equal(t, "tokenizer", cfgErr.Field)
}

func TestSettingsService_Validate(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store)
	require.NoError(t, service.Validate())

	_ = store.Set("chunking.overlap_tokens", 700)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, service.Validate(), &cfgErr)
	assert.Equal(t, "overlap_tokens", cfgErr.Field)
}

func TestSettingsService_Overlays(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("chunking.max_tokens", 500)

	first := overlayFunc(func(s *domain.Settings) error {
		s.Chunking.MaxTokens = 300
		s.Embedding.Model = "from-env"
		return nil
	})
	second := overlayFunc(func(s *domain.Settings) error {
		s.Embedding.Model = "from-flag"
		return nil
	})

	settings, err := NewSettingsService(store, first, second).Get()
	require.NoError(t, err)
	assert.Equal(t, 300, settings.Chunking.MaxTokens)
	assert.Equal(t, "from-flag", settings.Embedding.Model)
}

func TestSettingsService_Overlay_Error(t *testing.T) {
	failing := overlayFunc(func(*domain.Settings) error { return errors.New("bad env") })

	_, err := NewSettingsService(memory.NewConfigStore(), failing).Get()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad env")
}

func TestSettingsService_SaveRoundTrip(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store)

	settings := domain.DefaultSettings()
	settings.Chunking.MaxTokens = 512
	settings.Chunking.Tokenizer = domain.TokenizerCL100K
	settings.Cache.FreshnessWindow = 6 * time.Hour
	settings.Embedding.Provider = domain.AIProviderOllama
	settings.Embedding.BaseURL = "http://localhost:11434"
	settings.Embedding.Retry.Jitter = 0.5
	settings.Run.FetchTimeout = 10 * time.Second
	settings.Run.Retry = settings.Embedding.Retry

	require.NoError(t, service.Save(&settings))
	_, hasKey := store.Get("embedding.api_key")
	assert.False(t, hasKey, "empty API keys are not written")

	loaded, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, settings.Chunking, loaded.Chunking)
	assert.Equal(t, settings.Cache, loaded.Cache)
	assert.Equal(t, settings.Embedding, loaded.Embedding)
	assert.Equal(t, settings.Run, loaded.Run)
}

func TestSettingsService_Save_APIKey(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store)

	settings := domain.DefaultSettings()
	settings.Embedding.APIKey = "sk-test"
	require.NoError(t, service.Save(&settings))

	loaded, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", loaded.Embedding.APIKey)
}
