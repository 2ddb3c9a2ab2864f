package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/sources"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

var verifySources string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every source can be fetched",
	Long: `Fetches every source in the sources file without processing it and
reports which are accessible, grouped by the "provider" tag.
Exits with an error if any source cannot be fetched.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVarP(&verifySources, "sources", "s", "sources.yaml", "sources file (YAML or TOML)")
	rootCmd.AddCommand(verifyCmd)
}

// verifyResult is the fetch outcome of one source.
type verifyResult struct {
	Source domain.Source
	Err    error
}

func runVerify(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	srcs, err := sources.Load(verifySources)
	if err != nil {
		return err
	}

	rt, closeRuntime, err := openRuntime(settings)
	if err != nil {
		return err
	}
	defer closeRuntime()

	results := verifyAll(cmd.Context(), rt.Fetcher, srcs, settings.Run.Workers)

	st := newStyles(cmd.OutOrStdout())
	cmd.Println(st.Title.Render(fmt.Sprintf("Verifying %d sources from %s", len(srcs), verifySources)))

	failed := 0
	for _, group := range groupByProvider(results) {
		cmd.Println()
		cmd.Println(st.Label.Render(group.provider))
		for _, r := range group.results {
			if r.Err == nil {
				cmd.Printf("  %s %s\n", st.Success.Render("ok  "), r.Source.ID)
				continue
			}
			failed++
			cmd.Printf("  %s %s\n", st.Error.Render("FAIL"), r.Source.ID)
			cmd.Printf("       %s\n", st.Muted.Render(r.Source.URI))
			cmd.Printf("       %v\n", r.Err)
		}
	}

	cmd.Println()
	cmd.Printf("Accessible: %d/%d\n", len(results)-failed, len(results))
	if failed > 0 {
		return fmt.Errorf("%d of %d sources are not accessible", failed, len(results))
	}
	return nil
}

// verifyAll fetches every source with at most workers in flight.
// Results are in source order.
func verifyAll(ctx context.Context, f driven.Fetcher, srcs []domain.Source, workers int) []verifyResult {
	results := make([]verifyResult, len(srcs))
	if f == nil {
		for i, s := range srcs {
			results[i] = verifyResult{Source: s, Err: errors.New("fetcher not configured")}
		}
		return results
	}

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, s := range srcs {
		g.Go(func() error {
			_, err := f.Fetch(ctx, s)
			results[i] = verifyResult{Source: s, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

type providerGroup struct {
	provider string
	results  []verifyResult
}

func groupByProvider(results []verifyResult) []providerGroup {
	index := make(map[string]int)
	var groups []providerGroup
	for _, r := range results {
		provider, _ := r.Source.Tags["provider"].(string)
		if provider == "" {
			provider = "Unknown"
		}
		i, ok := index[provider]
		if !ok {
			i = len(groups)
			index[provider] = i
			groups = append(groups, providerGroup{provider: provider})
		}
		groups[i].results = append(groups[i].results, r)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].provider < groups[j].provider
	})
	return groups
}
