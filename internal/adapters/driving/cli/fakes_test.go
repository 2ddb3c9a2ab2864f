package cli

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
)

// mockSettingsService implements driving.SettingsService for testing.
type mockSettingsService struct {
	settings domain.Settings
	saved    *domain.Settings
	err      error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{settings: domain.DefaultSettings()}
}

func (m *mockSettingsService) Get() (*domain.Settings, error) {
	if m.err != nil {
		return nil, m.err
	}
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(settings *domain.Settings) error {
	s := *settings
	m.saved = &s
	return nil
}

func (m *mockSettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

func (m *mockSettingsService) Validate() error {
	return m.settings.Validate()
}

// mockIngestService implements driving.IngestService for testing.
type mockIngestService struct {
	report   *domain.RunReport
	runErr   error
	statuses []domain.CacheStatus
	pruned   int

	runs    int
	cleared bool
	sources []domain.Source
}

func (m *mockIngestService) Process(_ context.Context, source domain.Source) (*domain.SourceResult, error) {
	return &domain.SourceResult{Source: source}, nil
}

func (m *mockIngestService) Run(_ context.Context, sources []domain.Source) (*domain.RunReport, error) {
	m.runs++
	m.sources = sources
	if m.runErr != nil {
		return nil, m.runErr
	}
	return m.report, nil
}

func (m *mockIngestService) CacheStatus(_ context.Context) ([]domain.CacheStatus, error) {
	return m.statuses, nil
}

func (m *mockIngestService) ClearCache(_ context.Context) error {
	m.cleared = true
	return nil
}

func (m *mockIngestService) PruneCache(_ context.Context) (int, error) {
	return m.pruned, nil
}

func (m *mockIngestService) SettingsFingerprint() string {
	return "fp-test"
}

// mockEmbedder implements driving.EmbeddingService for testing.
type mockEmbedder struct {
	err   error
	calls int
}

func (m *mockEmbedder) EmbedChunks(_ context.Context, chunks []domain.Chunk) (*driving.EmbedResult, error) {
	m.calls++
	res := &driving.EmbedResult{Vectors: make(map[string][]float32)}
	for i, c := range chunks {
		if m.err != nil && i > 0 {
			break
		}
		res.Vectors[c.ID] = []float32{0.1, 0.2}
		res.Computed++
	}
	return res, m.err
}

func (m *mockEmbedder) Model() string {
	return "test-model"
}

type mockFetcher struct {
	failing map[string]bool
}

func (m *mockFetcher) Fetch(_ context.Context, source domain.Source) (*domain.FetchResult, error) {
	if m.failing[source.ID] {
		return nil, domain.ErrNotFound
	}
	return &domain.FetchResult{Content: []byte("x"), MIMEType: "text/plain"}, nil
}

type mockStats struct{}

func (mockStats) Stats(_ context.Context) (*domain.CacheStats, error) {
	return &domain.CacheStats{ChunkEntries: 1, Embeddings: map[string]int{"test-model": 3}}, nil
}

// testRuntime records the settings it was built with.
type testRuntime struct {
	rt       *Runtime
	settings domain.Settings
	opts     RuntimeOptions
	built    int
	closed   int
}

func (r *testRuntime) factory(settings domain.Settings, opts RuntimeOptions) (*Runtime, error) {
	r.settings = settings
	r.opts = opts
	r.built++
	r.rt.Close = func() error {
		r.closed++
		return nil
	}
	return r.rt, nil
}

func sampleReport() *domain.RunReport {
	return &domain.RunReport{
		RunID: "run-1",
		Results: []domain.SourceResult{
			{
				Source: domain.Source{ID: "guide", URI: "/docs/guide.md", Tags: map[string]any{"category": "Guides"}},
				DocID:  "abc123def456",
				Chunks: []domain.Chunk{
					{ID: "abc123def456-0000-aaaa", DocID: "abc123def456", Text: "first", ContentHash: "h1", TotalChunks: 2},
					{ID: "abc123def456-0001-bbbb", DocID: "abc123def456", Text: "second", ContentHash: "h2", ChunkIndex: 1, TotalChunks: 2},
				},
			},
		},
		CacheHits:  0,
		Recomputed: 1,
		StartedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Elapsed:    time.Second,
	}
}

// setupCLITest injects mocks and resets command flags.
func setupCLITest(ingest *mockIngestService, embedder driving.EmbeddingService) (*testRuntime, *mockSettingsService, func()) {
	oldSettings, oldFactory := settingsService, runtimeFactory

	settings := newMockSettingsService()
	rt := &testRuntime{rt: &Runtime{
		Ingest:        ingest,
		Embedder:      embedder,
		Fetcher:       &mockFetcher{},
		Stats:         mockStats{},
		CacheLocation: "/tmp/cache.db",
	}}
	SetServices(settings, rt.factory)
	resetFlags()

	return rt, settings, func() {
		settingsService, runtimeFactory = oldSettings, oldFactory
		resetFlags()
		rootCmd.SetArgs(nil)
	}
}

func resetFlags() {
	dataDir = ""
	runSources, runOutput, runModel = "sources.yaml", "data", ""
	runBatchSize, runWorkers = 0, 0
	runClearCache, runShowCacheInfo, runSkipEmbed = false, false, false
	cacheOlderThan = 0
	verifySources = "sources.yaml"
}

func execute(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

var errBoom = errors.New("boom")
