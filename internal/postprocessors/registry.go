package postprocessors

import (
	"fmt"
	"maps"
	"sort"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// BuilderFunc creates a PostProcessor from generic config.
// Config is a map of processor-specific settings parsed from user config.
type BuilderFunc func(cfg map[string]any) (driven.PostProcessor, error)

// Registry maps processor names to their builders.
type Registry struct {
	builders map[string]BuilderFunc
}

// NewRegistry creates a new processor registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]BuilderFunc),
	}
}

// Register adds a processor builder to the registry.
// Name should be unique and match the processor's Name() return value.
func (r *Registry) Register(name string, builder BuilderFunc) {
	r.builders[name] = builder
}

// Build creates a processor by name with the given config.
func (r *Registry) Build(name string, cfg map[string]any) (driven.PostProcessor, error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown processor: %s", name)
	}
	return builder(cfg)
}

// Has returns true if a processor with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.builders[name]
	return ok
}

// Names returns all registered processor names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildPipeline assembles the configured stages. Chunking settings are
// passed to every stage under the keys max_tokens, overlap_tokens,
// min_tokens and tokenizer; per-processor config takes precedence.
func (r *Registry) BuildPipeline(cfg domain.PipelineConfig, chunking domain.ChunkingSettings) (*Pipeline, error) {
	if err := chunking.Validate(); err != nil {
		return nil, err
	}

	base := map[string]any{
		"max_tokens":     chunking.MaxTokens,
		"overlap_tokens": chunking.OverlapTokens,
		"min_tokens":     chunking.MinTokens,
		"tokenizer":      string(chunking.Tokenizer),
	}

	pipeline := NewPipeline()
	for _, name := range cfg.Processors {
		stageCfg := maps.Clone(base)
		maps.Copy(stageCfg, cfg.GetProcessorConfig(name))

		processor, err := r.Build(name, stageCfg)
		if err != nil {
			return nil, err
		}
		pipeline.Add(processor)
	}
	return pipeline, nil
}
