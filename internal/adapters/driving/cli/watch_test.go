package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func TestNewWatchSet(t *testing.T) {
	dir := t.TempDir()
	sourcesFile := filepath.Join(dir, "sources.yaml")
	srcs := []domain.Source{
		{ID: "a", URI: filepath.Join(dir, "docs", "a.md")},
		{ID: "b", URI: "file://" + filepath.Join(dir, "b.pdf")},
		{ID: "c", URI: "https://example.com/c"},
	}

	ws, err := newWatchSet(sourcesFile, srcs)
	require.NoError(t, err)

	assert.Equal(t, sourcesFile, ws.sourcesFile)
	assert.Len(t, ws.files, 3)
	assert.True(t, ws.files[filepath.Join(dir, "docs", "a.md")])
	assert.True(t, ws.files[filepath.Join(dir, "b.pdf")])
	assert.Equal(t, []string{dir, filepath.Join(dir, "docs")}, ws.dirs())
}

func TestWatchSet_Relevant(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "a.md")
	ws, err := newWatchSet(filepath.Join(dir, "sources.yaml"), []domain.Source{{ID: "a", URI: watched}})
	require.NoError(t, err)

	tests := []struct {
		name     string
		event    fsnotify.Event
		expected bool
	}{
		{"write", fsnotify.Event{Name: watched, Op: fsnotify.Write}, true},
		{"create", fsnotify.Event{Name: watched, Op: fsnotify.Create}, true},
		{"remove", fsnotify.Event{Name: watched, Op: fsnotify.Remove}, true},
		{"rename", fsnotify.Event{Name: watched, Op: fsnotify.Rename}, true},
		{"chmod ignored", fsnotify.Event{Name: watched, Op: fsnotify.Chmod}, false},
		{"other file ignored", fsnotify.Event{Name: filepath.Join(dir, "b.md"), Op: fsnotify.Write}, false},
		{"sources file", fsnotify.Event{Name: filepath.Join(dir, "sources.yaml"), Op: fsnotify.Write}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ws.relevant(tt.event))
		})
	}
}

func TestWatchLoop_DebouncesEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan fsnotify.Event)
	errs := make(chan error)
	changes := make(chan []string, 4)
	relevant := func(e fsnotify.Event) bool { return e.Name != "/ignored" }

	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, events, errs, relevant, 200*time.Millisecond, func(changed []string) {
			changes <- changed
		})
	}()

	events <- fsnotify.Event{Name: "/docs/b.md", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "/ignored", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "/docs/a.md", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "/docs/b.md", Op: fsnotify.Write}
	errs <- errBoom

	select {
	case changed := <-changes:
		assert.Equal(t, []string{"/docs/a.md", "/docs/b.md"}, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not stop")
	}
}

func TestWatchLoop_StopsWhenEventsClose(t *testing.T) {
	events := make(chan fsnotify.Event)
	close(events)

	err := watchLoop(context.Background(), events, nil, func(fsnotify.Event) bool { return true }, time.Millisecond, func([]string) {
		t.Fatal("unexpected change")
	})
	assert.NoError(t, err)
}
