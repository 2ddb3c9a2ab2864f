// Package cli provides the cobra command tree for sercha-ingest.
//
// Services are injected by main through SetServices. Commands that need a
// pipeline build one per invocation from the effective settings, so flag
// overrides such as --model change the settings fingerprint as expected.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

var version = "dev"

// Global flags.
var (
	verbose bool
	dataDir string
)

// Injected services.
var (
	settingsService    driving.SettingsService
	runtimeFactory     RuntimeFactory
	embeddingValidator driven.EmbeddingConfigValidator
)

// CacheStatsReader reports embedding cache counts.
type CacheStatsReader interface {
	Stats(ctx context.Context) (*domain.CacheStats, error)
}

// Runtime bundles the services one command invocation works with.
type Runtime struct {
	Ingest driving.IngestService

	// Embedder is nil when no embedding provider is configured.
	Embedder driving.EmbeddingService

	Fetcher driven.Fetcher
	Stats   CacheStatsReader

	// CacheLocation describes where the cache lives, for reports.
	CacheLocation string

	// Close releases stores and clients. May be nil.
	Close func() error
}

// RuntimeOptions carries global flags into a RuntimeFactory.
type RuntimeOptions struct {
	DataDir string
}

// RuntimeFactory builds a Runtime for validated settings.
type RuntimeFactory func(settings domain.Settings, opts RuntimeOptions) (*Runtime, error)

var rootCmd = &cobra.Command{
	Use:   "sercha-ingest",
	Short: "Chunk, cache and embed documents for retrieval",
	Long: `sercha-ingest turns a list of documents into retrieval-ready chunks.

Documents are fetched, cleaned, split along their heading structure into
token-bounded chunks with overlap, scored for quality and deduplicated.
Chunk sets are cached per source and settings fingerprint, so unchanged
documents are not reprocessed on the next run.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "cache directory (default ~/.sercha-ingest/data)")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// SetServices injects the settings service and the runtime factory.
func SetServices(settings driving.SettingsService, factory RuntimeFactory) {
	settingsService = settings
	runtimeFactory = factory
}

// SetEmbeddingValidator injects the validator used when configuring a
// provider. Without one, configurations are saved unchecked.
func SetEmbeddingValidator(v driven.EmbeddingConfigValidator) {
	embeddingValidator = v
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadSettings returns the effective settings with overrides applied.
// The result is validated before any document is touched.
func loadSettings(overrides ...func(*domain.Settings)) (domain.Settings, error) {
	if settingsService == nil {
		return domain.Settings{}, errors.New("settings service not configured")
	}
	settings, err := settingsService.Get()
	if err != nil {
		return domain.Settings{}, err
	}
	s := *settings
	for _, apply := range overrides {
		apply(&s)
	}
	if err := s.Validate(); err != nil {
		return domain.Settings{}, err
	}
	return s, nil
}

// openRuntime builds a runtime for the given settings.
// The returned closer is always safe to call.
func openRuntime(settings domain.Settings) (*Runtime, func(), error) {
	if runtimeFactory == nil {
		return nil, func() {}, errors.New("ingest service not configured")
	}
	rt, err := runtimeFactory(settings, RuntimeOptions{DataDir: dataDir})
	if err != nil {
		return nil, func() {}, err
	}
	closer := func() {
		if rt.Close == nil {
			return
		}
		if err := rt.Close(); err != nil {
			logger.Warn("closing: %v", err)
		}
	}
	return rt, closer, nil
}
