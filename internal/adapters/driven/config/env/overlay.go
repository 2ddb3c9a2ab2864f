// Package env overlays settings from environment variables and an optional
// .env file. Process environment wins over the file; both win over the
// config store.
package env

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Overlay implements the interface.
var _ driven.SettingsOverlay = (*Overlay)(nil)

// Vars are the recognised variables. Unset variables leave fields nil.
type Vars struct {
	MaxTokens      *int           `env:"MAX_TOKENS"`
	OverlapTokens  *int           `env:"OVERLAP_TOKENS"`
	MinTokens      *int           `env:"MIN_TOKENS"`
	Tokenizer      *string        `env:"TOKENIZER"`
	CacheFreshness *time.Duration `env:"CACHE_FRESHNESS"`

	EmbedProvider    *string `env:"EMBED_PROVIDER"`
	EmbedModel       *string `env:"EMBED_MODEL"`
	EmbedBatch       *int    `env:"EMBED_BATCH"`
	EmbedConcurrency *int    `env:"EMBED_CONCURRENCY"`

	// EmbeddingDelay is the pause between embedding requests, in seconds.
	EmbeddingDelay *float64 `env:"EMBEDDING_DELAY"`

	OpenAIAPIKey  *string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL *string `env:"OPENAI_BASE_URL"`
	OllamaURL     *string `env:"OLLAMA_URL"`

	// MaxRetries is the total number of attempts per remote call.
	MaxRetries *int `env:"MAX_RETRIES"`

	Workers *int `env:"WORKERS"`

	// Timeout bounds each fetch, in seconds.
	Timeout *int `env:"TIMEOUT"`
}

// Overlay applies Vars on top of stored settings.
type Overlay struct {
	dotenvPath string
	environ    map[string]string
}

// Option configures an Overlay.
type Option func(*Overlay)

// WithDotenv reads variables from the given file. A missing file is ignored.
func WithDotenv(path string) Option {
	return func(o *Overlay) {
		o.dotenvPath = path
	}
}

// WithEnviron replaces the process environment, mainly for tests.
func WithEnviron(vars map[string]string) Option {
	return func(o *Overlay) {
		o.environ = vars
	}
}

// New creates an overlay reading ".env" and the process environment.
func New(opts ...Option) *Overlay {
	o := &Overlay{dotenvPath: ".env"}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load resolves the variables without applying them.
func (o *Overlay) Load() (*Vars, error) {
	merged := make(map[string]string)

	if o.dotenvPath != "" {
		fileVars, err := godotenv.Read(o.dotenvPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading %s: %w", o.dotenvPath, err)
		default:
			for k, v := range fileVars {
				merged[k] = v
			}
		}
	}

	environ := o.environ
	if environ == nil {
		environ = env.ToMap(os.Environ())
	}
	for k, v := range environ {
		merged[k] = v
	}

	var vars Vars
	if err := env.ParseWithOptions(&vars, env.Options{Environment: merged}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &vars, nil
}

// Apply overlays every set variable onto settings.
func (o *Overlay) Apply(settings *domain.Settings) error {
	vars, err := o.Load()
	if err != nil {
		return err
	}
	return vars.apply(settings)
}

func (v *Vars) apply(s *domain.Settings) error {
	setInt(&s.Chunking.MaxTokens, v.MaxTokens)
	setInt(&s.Chunking.OverlapTokens, v.OverlapTokens)
	setInt(&s.Chunking.MinTokens, v.MinTokens)
	if v.Tokenizer != nil {
		s.Chunking.Tokenizer = domain.Tokenizer(*v.Tokenizer)
	}
	if v.CacheFreshness != nil {
		s.Cache.FreshnessWindow = *v.CacheFreshness
	}

	if v.EmbedProvider != nil {
		provider := domain.AIProvider(*v.EmbedProvider)
		if !provider.IsValid() {
			return &domain.ConfigurationError{Field: "EMBED_PROVIDER", Reason: "unknown provider " + *v.EmbedProvider}
		}
		if provider != s.Embedding.Provider {
			s.Embedding.Provider = provider
			s.Embedding.Model = domain.DefaultEmbeddingModels()[provider]
			s.Embedding.BaseURL = ""
		}
	}
	setString(&s.Embedding.Model, v.EmbedModel)
	setInt(&s.Embedding.BatchSize, v.EmbedBatch)
	setInt(&s.Embedding.Concurrency, v.EmbedConcurrency)

	if v.EmbeddingDelay != nil {
		switch {
		case *v.EmbeddingDelay < 0:
			return &domain.ConfigurationError{Field: "EMBEDDING_DELAY", Reason: "must not be negative"}
		case *v.EmbeddingDelay == 0:
			s.Embedding.RequestsPerSecond = 0
		default:
			s.Embedding.RequestsPerSecond = 1 / *v.EmbeddingDelay
		}
	}

	switch s.Embedding.Provider {
	case domain.AIProviderOpenAI:
		setString(&s.Embedding.APIKey, v.OpenAIAPIKey)
		setString(&s.Embedding.BaseURL, v.OpenAIBaseURL)
	case domain.AIProviderOllama:
		setString(&s.Embedding.BaseURL, v.OllamaURL)
	}

	if v.MaxRetries != nil {
		s.Embedding.Retry.MaxAttempts = *v.MaxRetries
		s.Run.Retry.MaxAttempts = *v.MaxRetries
	}
	setInt(&s.Run.Workers, v.Workers)
	if v.Timeout != nil {
		s.Run.FetchTimeout = time.Duration(*v.Timeout) * time.Second
	}
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}
