package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

const unknownDescription = "Unknown"

// Tokenizer identifies a token counting scheme.
type Tokenizer string

// Available tokenizers.
const (
	// TokenizerWord counts word runs and individual symbols.
	TokenizerWord Tokenizer = "word"

	// TokenizerCL100K is the BPE encoding used by OpenAI embedding models.
	TokenizerCL100K Tokenizer = "cl100k_base"
)

// IsValid returns true if the tokenizer is recognised.
func (t Tokenizer) IsValid() bool {
	switch t {
	case TokenizerWord, TokenizerCL100K:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t Tokenizer) String() string {
	return string(t)
}

// Description returns a human-readable description of the tokenizer.
func (t Tokenizer) Description() string {
	switch t {
	case TokenizerWord:
		return "Word (words and symbols)"
	case TokenizerCL100K:
		return "cl100k_base (BPE)"
	default:
		return unknownDescription
	}
}

// AIProvider identifies an embedding service provider.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	default:
		return unknownDescription
	}
}

// ChunkingSettings holds every parameter that affects chunk output.
type ChunkingSettings struct {
	// MaxTokens is the upper bound on tokens per chunk.
	MaxTokens int

	// OverlapTokens is the budget re-included from the previous chunk.
	OverlapTokens int

	// MinTokens is the size below which chunks are merged or flagged.
	MinTokens int

	// Tokenizer selects the token counter.
	Tokenizer Tokenizer
}

// Validate reports settings that cannot produce valid chunks.
func (c ChunkingSettings) Validate() error {
	switch {
	case c.MaxTokens <= 0:
		return &ConfigurationError{Field: "max_tokens", Reason: "must be positive"}
	case c.OverlapTokens < 0:
		return &ConfigurationError{Field: "overlap_tokens", Reason: "must not be negative"}
	case c.OverlapTokens >= c.MaxTokens:
		return &ConfigurationError{Field: "overlap_tokens", Reason: "must be less than max_tokens"}
	case c.MinTokens < 0:
		return &ConfigurationError{Field: "min_tokens", Reason: "must not be negative"}
	case c.MinTokens > c.MaxTokens:
		return &ConfigurationError{Field: "min_tokens", Reason: "must not exceed max_tokens"}
	case !c.Tokenizer.IsValid():
		return &ConfigurationError{Field: "tokenizer", Reason: "unknown tokenizer " + string(c.Tokenizer)}
	}
	return nil
}

// Fingerprint hashes every setting that changes chunk output: the chunking
// parameters, the cleaning rule version and the post-processor stages with
// their configs. Two runs share cached chunks only if this matches.
func (s Settings) Fingerprint(ruleVersion string) string {
	c := s.Chunking
	// json.Marshal keeps struct field order and sorts map keys.
	payload, _ := json.Marshal(struct {
		MaxTokens        int                       `json:"max_tokens"`
		OverlapTokens    int                       `json:"overlap_tokens"`
		MinTokens        int                       `json:"min_tokens"`
		Tokenizer        string                    `json:"tokenizer"`
		RuleVersion      string                    `json:"rule_version"`
		Processors       []string                  `json:"processors"`
		ProcessorConfigs map[string]map[string]any `json:"processor_configs"`
	}{
		c.MaxTokens, c.OverlapTokens, c.MinTokens, string(c.Tokenizer), ruleVersion,
		s.Pipeline.Processors, s.Pipeline.activeConfigs(),
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}

// CacheSettings holds cache behaviour configuration.
type CacheSettings struct {
	// FreshnessWindow is how long an entry may be reused.
	FreshnessWindow time.Duration

	// PruneAfter is the age after which entries are removed by prune.
	PruneAfter time.Duration
}

// RetrySettings configures retries around single-attempt remote calls.
type RetrySettings struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Jitter is the fraction of each delay that is randomised, in [0, 1].
	Jitter float64
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// BatchSize is the number of texts per request.
	BatchSize int

	// Concurrency is the number of batches in flight.
	Concurrency int

	// RequestsPerSecond paces requests to the provider. Zero disables pacing.
	RequestsPerSecond float64

	Retry RetrySettings
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// RunSettings controls source-level parallelism and fetching.
type RunSettings struct {
	// Workers is the number of sources processed concurrently.
	Workers int

	// FetchTimeout bounds each remote fetch.
	FetchTimeout time.Duration

	Retry RetrySettings
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config for extensibility - new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	// Key is processor name, value is processor-specific config.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor.
// Returns nil if no config exists.
func (c PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// activeConfigs returns the non-empty configs of processors that run.
// Configs of processors outside the stage list cannot affect output.
func (c PipelineConfig) activeConfigs() map[string]map[string]any {
	active := make(map[string]map[string]any)
	for _, name := range c.Processors {
		if cfg := c.GetProcessorConfig(name); len(cfg) > 0 {
			active[name] = cfg
		}
	}
	return active
}

// Settings aggregates all configuration for a run.
type Settings struct {
	Chunking  ChunkingSettings
	Cache     CacheSettings
	Embedding EmbeddingSettings
	Run       RunSettings
	Pipeline  PipelineConfig
}

// Validate checks every section that can be wrong independently of I/O.
func (s Settings) Validate() error {
	if err := s.Chunking.Validate(); err != nil {
		return err
	}
	if s.Embedding.BatchSize <= 0 {
		return &ConfigurationError{Field: "embedding.batch_size", Reason: "must be positive"}
	}
	if s.Embedding.Concurrency <= 0 {
		return &ConfigurationError{Field: "embedding.concurrency", Reason: "must be positive"}
	}
	if s.Run.Workers <= 0 {
		return &ConfigurationError{Field: "run.workers", Reason: "must be positive"}
	}
	if s.Cache.FreshnessWindow <= 0 {
		return &ConfigurationError{Field: "cache.freshness", Reason: "must be positive"}
	}
	return nil
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	retry := RetrySettings{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
	return Settings{
		Chunking: ChunkingSettings{
			MaxTokens:     700,
			OverlapTokens: 80,
			MinTokens:     40,
			Tokenizer:     TokenizerWord,
		},
		Cache: CacheSettings{
			FreshnessWindow: 24 * time.Hour,
			PruneAfter:      7 * 24 * time.Hour,
		},
		Embedding: EmbeddingSettings{
			Provider:          AIProviderOpenAI,
			Model:             "text-embedding-3-small",
			BatchSize:         64,
			Concurrency:       4,
			RequestsPerSecond: 10,
			Retry:             retry,
		},
		Run: RunSettings{
			Workers:      4,
			FetchTimeout: 30 * time.Second,
			Retry:        retry,
		},
		Pipeline: DefaultPipelineConfig(),
	}
}

// DefaultPipelineConfig returns the default stage order.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Processors: []string{"chunker", "identity", "enrich", "quality", "dedup"},
		ProcessorConfigs: map[string]map[string]any{
			"dedup": {
				"max_distance": 3,
			},
		},
	}
}

// AllTokenizers returns all available tokenizers.
func AllTokenizers() []Tokenizer {
	return []Tokenizer{TokenizerWord, TokenizerCL100K}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}
