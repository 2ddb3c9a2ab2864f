package postprocessors

import (
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/chunker"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/dedup"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/enrich"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/identity"
	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/quality"
	"github.com/custodia-labs/sercha-ingest/internal/tokenizer"
)

// RegisterDefaults registers all built-in processors with the registry.
func RegisterDefaults(r *Registry) {
	r.Register("chunker", buildChunker)
	r.Register("identity", buildIdentity)
	r.Register("enrich", buildEnrich)
	r.Register("quality", buildQuality)
	r.Register("dedup", buildDedup)
}

// DefaultRegistry returns a registry with the built-in processors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// buildChunker creates a chunker processor from generic config.
// Supported config keys:
//   - max_tokens (int): token budget per chunk (default: 700)
//   - overlap_tokens (int): tokens re-included from the previous chunk (default: 80)
//   - min_tokens (int): merge threshold (default: 40)
//   - tokenizer (string): "word" or "cl100k_base" (default: word)
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	counter, err := tokenizer.New(domain.Tokenizer(getStringFromConfig(cfg, "tokenizer")))
	if err != nil {
		return nil, err
	}

	var opts []chunker.Option
	if v, ok := lookupInt(cfg, "max_tokens"); ok {
		opts = append(opts, chunker.WithMaxTokens(v))
	}
	if v, ok := lookupInt(cfg, "overlap_tokens"); ok {
		opts = append(opts, chunker.WithOverlap(v))
	}
	if v, ok := lookupInt(cfg, "min_tokens"); ok {
		opts = append(opts, chunker.WithMinTokens(v))
	}

	return chunker.New(counter, opts...)
}

func buildIdentity(_ map[string]any) (driven.PostProcessor, error) {
	return identity.New()
}

func buildEnrich(_ map[string]any) (driven.PostProcessor, error) {
	return enrich.New(), nil
}

// buildQuality reads min_tokens for the too_short rule.
func buildQuality(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []quality.Option
	if v, ok := lookupInt(cfg, "min_tokens"); ok {
		opts = append(opts, quality.WithMinTokens(v))
	}
	return quality.New(opts...), nil
}

// buildDedup reads max_distance, the near-duplicate threshold in bits.
func buildDedup(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []dedup.Option
	if v, ok := lookupInt(cfg, "max_distance"); ok {
		opts = append(opts, dedup.WithMaxDistance(v))
	}
	return dedup.New(opts...), nil
}

// lookupInt extracts an int from a generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func lookupInt(cfg map[string]any, key string) (int, bool) {
	val, ok := cfg[key]
	if !ok {
		return 0, false
	}

	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func getStringFromConfig(cfg map[string]any, key string) string {
	s, _ := cfg[key].(string)
	return s
}
