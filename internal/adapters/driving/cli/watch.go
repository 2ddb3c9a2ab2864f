package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/fetch"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/output"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/sources"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

var (
	watchSources   string
	watchOutput    string
	watchDebounce  time.Duration
	watchSkipEmbed bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-process local sources whenever they change",
	Long: `Runs the pipeline once, then watches every local file source and the
sources file itself. When any of them changes the pipeline runs again;
unchanged sources are served from the cache. Remote sources are only
fetched on each run. Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchSources, "sources", "s", "sources.yaml", "sources file (YAML or TOML)")
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "data", "output directory")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "quiet period before re-running")
	watchCmd.Flags().BoolVar(&watchSkipEmbed, "skip-embed", false, "write chunks without embeddings")
	rootCmd.AddCommand(watchCmd)
}

// watchSet is the set of paths that trigger a run.
type watchSet struct {
	sourcesFile string
	files       map[string]bool
}

// newWatchSet collects the sources file and every local file source.
func newWatchSet(sourcesFile string, srcs []domain.Source) (*watchSet, error) {
	abs, err := filepath.Abs(sourcesFile)
	if err != nil {
		return nil, fmt.Errorf("resolve sources file: %w", err)
	}
	ws := &watchSet{
		sourcesFile: abs,
		files:       map[string]bool{abs: true},
	}
	for _, s := range srcs {
		if fetch.Scheme(s.URI) != "file" {
			continue
		}
		p, err := fetch.LocalPath(s.URI)
		if err != nil {
			logger.Warn("watch: skipping %s: %v", s.ID, err)
			continue
		}
		if p, err = filepath.Abs(p); err == nil {
			ws.files[p] = true
		}
	}
	return ws, nil
}

// dirs returns the directories to watch. Watching directories rather than
// files survives editors that save by renaming over the original.
func (w *watchSet) dirs() []string {
	seen := make(map[string]bool)
	for f := range w.files {
		seen[filepath.Dir(f)] = true
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// relevant reports whether an event touches a watched file.
func (w *watchSet) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return w.files[filepath.Clean(event.Name)]
}

func runWatch(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	srcs, err := sources.Load(watchSources)
	if err != nil {
		return err
	}
	ws, err := newWatchSet(watchSources, srcs)
	if err != nil {
		return err
	}

	rt, closeRuntime, err := openRuntime(settings)
	if err != nil {
		return err
	}
	defer closeRuntime()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool)
	addDirs := func() {
		for _, d := range ws.dirs() {
			if watched[d] {
				continue
			}
			if err := watcher.Add(d); err != nil {
				logger.Warn("watch: %s: %v", d, err)
				continue
			}
			watched[d] = true
		}
	}
	addDirs()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	writer := output.NewWriter(watchOutput)
	process := func() {
		summary, err := ingest(ctx, rt, srcs, writer, !watchSkipEmbed)
		if summary != nil {
			printRunSummary(cmd, summary, watchOutput)
		}
		if err != nil {
			logger.Error("%v", err)
		}
	}

	process()
	cmd.Printf("Watching %d files. Press Ctrl-C to stop.\n", len(ws.files))

	relevant := func(e fsnotify.Event) bool { return ws.relevant(e) }
	return watchLoop(ctx, watcher.Events, watcher.Errors, relevant, watchDebounce, func(changed []string) {
		for _, p := range changed {
			if p != ws.sourcesFile {
				continue
			}
			reloaded, err := sources.Load(watchSources)
			if err != nil {
				logger.Error("reload sources: %v", err)
				return
			}
			next, err := newWatchSet(watchSources, reloaded)
			if err != nil {
				logger.Error("reload sources: %v", err)
				return
			}
			srcs, ws = reloaded, next
			addDirs()
			logger.Info("Reloaded %d sources", len(srcs))
			break
		}
		cmd.Printf("\n%d file(s) changed, re-running.\n", len(changed))
		process()
	})
}

// watchLoop collects relevant events and calls onChange with the changed
// paths once no new event has arrived for the debounce period. It returns
// when ctx is done or the event channel closes.
func watchLoop(
	ctx context.Context,
	events <-chan fsnotify.Event,
	errs <-chan error,
	relevant func(fsnotify.Event) bool,
	debounce time.Duration,
	onChange func(changed []string),
) error {
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	pending := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			logger.Debug("watch: %s", event)
			pending[filepath.Clean(event.Name)] = true
			timer.Reset(debounce)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			logger.Warn("watch: %v", err)
		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			onChange(changed)
		}
	}
}
