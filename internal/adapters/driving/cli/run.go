package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/output"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/sources"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

var (
	runSources       string
	runOutput        string
	runModel         string
	runBatchSize     int
	runWorkers       int
	runClearCache    bool
	runShowCacheInfo bool
	runSkipEmbed     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process sources into chunks and embeddings",
	Long: `Fetches every source in the sources file, chunks it and embeds the chunks.

Sources whose content and chunking settings are unchanged are served from
the cache. Output is written as JSON Lines under the output directory:
chunks/<category>/<doc_id>.jsonl, embeds/<category>/<doc_id>.jsonl and a
summary.json with run statistics.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runSources, "sources", "s", "sources.yaml", "sources file (YAML or TOML)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "data", "output directory")
	runCmd.Flags().StringVar(&runModel, "model", "", "embedding model (overrides settings)")
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "texts per embedding request (overrides settings)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "sources processed concurrently (overrides settings)")
	runCmd.Flags().BoolVar(&runClearCache, "clear-cache", false, "clear all caches before processing")
	runCmd.Flags().BoolVar(&runShowCacheInfo, "cache-info", false, "show cache information and exit")
	runCmd.Flags().BoolVar(&runSkipEmbed, "skip-embed", false, "write chunks without embeddings")
	rootCmd.AddCommand(runCmd)
}

// runOverrides applies the run flags on top of the effective settings.
func runOverrides(s *domain.Settings) {
	if runModel != "" {
		s.Embedding.Model = runModel
	}
	if runBatchSize > 0 {
		s.Embedding.BatchSize = runBatchSize
	}
	if runWorkers > 0 {
		s.Run.Workers = runWorkers
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(runOverrides)
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	rt, closeRuntime, err := openRuntime(settings)
	if err != nil {
		return err
	}
	defer closeRuntime()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if runShowCacheInfo {
		return printCacheInfo(ctx, cmd, rt)
	}

	if runClearCache {
		if err := rt.Ingest.ClearCache(ctx); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		cmd.Println("All caches cleared.")
	}

	srcs, err := sources.Load(runSources)
	if err != nil {
		return err
	}
	if len(srcs) == 0 {
		cmd.Printf("No sources in %s.\n", runSources)
		return nil
	}

	summary, err := ingest(ctx, rt, srcs, output.NewWriter(runOutput), !runSkipEmbed)
	if summary != nil {
		printRunSummary(cmd, summary, runOutput)
	}
	return err
}

// ingest runs the pipeline over srcs, embeds the chunks when asked and
// writes the output. A summary is returned whenever output was written,
// even if embedding partially failed.
func ingest(ctx context.Context, rt *Runtime, srcs []domain.Source, w *output.Writer, embed bool) (*output.Summary, error) {
	logger.Section("Processing")
	logger.Info("Processing %d sources (settings %s)", len(srcs), rt.Ingest.SettingsFingerprint())

	report, err := rt.Ingest.Run(ctx, srcs)
	if err != nil {
		return nil, fmt.Errorf("run failed: %w", err)
	}
	for _, f := range report.Failures {
		logger.Warn("source %s failed: %v", f.Source.ID, f.Err)
	}

	var (
		embeddings []domain.Embedding
		model      string
		embedErr   error
	)
	switch {
	case !embed:
		logger.Info("Skipping embeddings")
	case rt.Embedder == nil:
		logger.Warn("embedding provider not configured, writing chunks only")
	default:
		logger.Section("Embedding")
		chunks := report.Chunks()
		model = rt.Embedder.Model()
		res, err := rt.Embedder.EmbedChunks(ctx, chunks)
		if err != nil {
			embedErr = fmt.Errorf("embedding incomplete: %w", err)
			logger.Warn("%v", embedErr)
		}
		if res != nil {
			embeddings = res.Embeddings(chunks, model)
			logger.Info("Embeddings: %d reused, %d computed", res.Reused, res.Computed)
		}
	}

	summary, err := w.Write(report, embeddings, model)
	if err != nil {
		return nil, fmt.Errorf("writing output: %w", err)
	}

	if len(report.Results) == 0 && len(report.Failures) > 0 {
		errs := make([]error, 0, len(report.Failures))
		for _, f := range report.Failures {
			errs = append(errs, fmt.Errorf("%s: %w", f.Source.ID, f.Err))
		}
		return summary, fmt.Errorf("all %d sources failed: %w", len(report.Failures), errors.Join(errs...))
	}
	return summary, embedErr
}

func printRunSummary(cmd *cobra.Command, s *output.Summary, dir string) {
	st := newStyles(cmd.OutOrStdout())

	cmd.Println()
	cmd.Println(st.Title.Render("Run Summary"))
	cmd.Printf("  %s %s\n", st.Label.Render("Run:"), s.RunID)
	cmd.Printf("  %s %d (%d failed)\n", st.Label.Render("Sources:"), s.Sources, s.Failed)
	cmd.Printf("  %s %d cached, %d recomputed\n", st.Label.Render("Cache:"), s.CacheHits, s.Recomputed)
	cmd.Printf("  %s %d\n", st.Label.Render("Chunks:"), s.TotalChunks)
	if s.EmbeddingModel != "" {
		cmd.Printf("  %s %d (%s)\n", st.Label.Render("Embeddings:"), s.TotalEmbeddings, s.EmbeddingModel)
	}
	cmd.Printf("  %s %d near-duplicates, %d dropped\n",
		st.Label.Render("Duplicates:"), s.NearDuplicates, s.DroppedDuplicates)
	cmd.Printf("  %s %d (%.1f%%)\n", st.Label.Render("Low signal:"), s.LowSignal, s.LowSignalPercentage)

	if len(s.Categories) > 0 {
		names := make([]string, 0, len(s.Categories))
		for name := range s.Categories {
			names = append(names, name)
		}
		sort.Strings(names)
		cmd.Println(st.Label.Render("  Categories:"))
		for _, name := range names {
			cmd.Printf("    %-20s %d\n", name, s.Categories[name])
		}
	}

	for _, f := range s.Failures {
		cmd.Println(st.Error.Render(fmt.Sprintf("  failed %s: %s", f.SourceID, f.Error)))
	}
	cmd.Printf("  %s %s (%.1fs)\n", st.Muted.Render("Output:"), dir, s.ElapsedSeconds)
}
