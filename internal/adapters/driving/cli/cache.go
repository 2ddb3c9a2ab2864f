package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

var cacheOlderThan time.Duration

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the chunk and embedding cache",
	RunE:  runCacheInfo,
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cache entries and their state",
	Long: `Lists every chunk cache entry with its age and state.

An entry is fresh when it was written under the current settings
fingerprint within the freshness window, and stale otherwise. Listing
never changes cache state.`,
	RunE: runCacheInfo,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every chunk and embedding entry",
	RunE:  runCacheClear,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove entries older than a given age",
	RunE:  runCachePrune,
}

func init() {
	cachePruneCmd.Flags().DurationVar(&cacheOlderThan, "older-than", 0, "age threshold (default from settings, 168h)")
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheInfo(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	rt, closeRuntime, err := openRuntime(settings)
	if err != nil {
		return err
	}
	defer closeRuntime()

	return printCacheInfo(cmd.Context(), cmd, rt)
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	rt, closeRuntime, err := openRuntime(settings)
	if err != nil {
		return err
	}
	defer closeRuntime()

	if err := rt.Ingest.ClearCache(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	cmd.Println("All caches cleared.")
	return nil
}

func runCachePrune(cmd *cobra.Command, _ []string) error {
	if cacheOlderThan < 0 {
		return fmt.Errorf("--older-than must not be negative, got %s", cacheOlderThan)
	}
	settings, err := loadSettings(func(s *domain.Settings) {
		if cacheOlderThan > 0 {
			s.Cache.PruneAfter = cacheOlderThan
		}
	})
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	rt, closeRuntime, err := openRuntime(settings)
	if err != nil {
		return err
	}
	defer closeRuntime()

	n, err := rt.Ingest.PruneCache(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to prune cache: %w", err)
	}
	cmd.Printf("Removed %d entries older than %s.\n", n, settings.Cache.PruneAfter)
	return nil
}

func printCacheInfo(ctx context.Context, cmd *cobra.Command, rt *Runtime) error {
	statuses, err := rt.Ingest.CacheStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	st := newStyles(cmd.OutOrStdout())
	cmd.Println(st.Title.Render("Cache Information"))
	if rt.CacheLocation != "" {
		cmd.Printf("  %s %s\n", st.Label.Render("Location:"), rt.CacheLocation)
	}
	cmd.Printf("  %s %s\n", st.Label.Render("Settings:"), rt.Ingest.SettingsFingerprint())
	cmd.Printf("  %s %d\n", st.Label.Render("Chunk entries:"), len(statuses))

	if rt.Stats != nil {
		stats, err := rt.Stats.Stats(ctx)
		if err != nil {
			return fmt.Errorf("failed to read cache stats: %w", err)
		}
		models := make([]string, 0, len(stats.Embeddings))
		for m := range stats.Embeddings {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			cmd.Printf("  %s %d (%s)\n", st.Label.Render("Embeddings:"), stats.Embeddings[m], m)
		}
	}

	if len(statuses) == 0 {
		cmd.Println(st.Muted.Render("  (empty)"))
		return nil
	}

	cmd.Println()
	for _, s := range statuses {
		state := st.stateStyle(s.State.String()).Render(fmt.Sprintf("%-7s", s.State))
		cmd.Printf("  %s %-24s %4d chunks  %6.1fh  %s\n",
			state, s.SourceID, s.ChunkCount, s.Age.Hours(), st.Muted.Render(s.URI))
	}
	return nil
}
