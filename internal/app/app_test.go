package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Itsme23476/filescout/internal/config"
)

// testConfig builds an offline configuration: static embedder, text
// extraction only, isolated data dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Extraction.Provider = "none"
	cfg.Embeddings.Provider = "static"
	cfg.Indexing.Workers = 2
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIndexThenSearch(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "budget_notes.txt"), "quarterly budget planning for the team offsite")
	writeFile(t, filepath.Join(root, "recipe.txt"), "pasta with tomato sauce and basil")

	run, err := a.Index(context.Background(), root, false)
	require.NoError(t, err)
	assert.True(t, run.Done)
	assert.Equal(t, 2, run.Scanned)
	assert.Equal(t, 2, run.Enriched)

	results, err := a.Search(context.Background(), "budget")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "budget_notes.txt", results[0].Record.Name)
	assert.Greater(t, results[0].Lexical, 0.0)
}

func TestIndexIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")

	_, err := a.Index(context.Background(), root, false)
	require.NoError(t, err)

	run, err := a.Index(context.Background(), root, false)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Enriched)
	assert.Equal(t, 1, run.Skipped)
}

func TestDeletionCascades(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	root := t.TempDir()
	gone := filepath.Join(root, "gone.txt")
	writeFile(t, gone, "temporary contents")
	writeFile(t, filepath.Join(root, "keep.txt"), "permanent contents")

	_, err := a.Index(context.Background(), root, false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(gone))
	_, err = a.Index(context.Background(), root, false)
	require.NoError(t, err)

	results, err := a.Search(context.Background(), "temporary")
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "gone.txt", r.Record.Name)
	}
}

func TestPredicateNarrowing(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "report.txt"), "annual report text")
	writeFile(t, filepath.Join(root, "main.go"), "package main")

	_, err := a.Index(context.Background(), root, false)
	require.NoError(t, err)

	results, err := a.Search(context.Background(), "type:code")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "main.go", results[0].Record.Name)
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "memo.txt"), "remember the milk")

	a1, err := New(context.Background(), cfg)
	require.NoError(t, err)
	_, err = a1.Index(context.Background(), root, false)
	require.NoError(t, err)
	require.NoError(t, a1.Close())

	// A fresh App over the same data dir sees the existing index.
	a2 := newTestApp(t, cfg)
	results, err := a2.Search(context.Background(), "milk")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "memo.txt", results[0].Record.Name)

	stats, err := a2.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)
}

func TestForceReindex(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")

	_, err := a.Index(context.Background(), root, false)
	require.NoError(t, err)

	run, err := a.Index(context.Background(), root, true)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Enriched)
}

func TestRunStatus(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")

	run, err := a.Index(context.Background(), root, false)
	require.NoError(t, err)

	got, err := a.RunStatus(context.Background(), run.ID)
	require.NoError(t, err)
	assert.True(t, got.Done)
	assert.Equal(t, run.Scanned, got.Scanned)
}

func TestRemoveRoot(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha content")

	_, err := a.Index(context.Background(), root, false)
	require.NoError(t, err)

	removed, err := a.RemoveRoot(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats, err := a.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalFiles)
}

func TestIndexRejectsNonDirectory(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	_, err := a.Index(context.Background(), filepath.Join(t.TempDir(), "missing"), false)
	require.Error(t, err)
}

func TestSearchHistoryTracked(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha content")

	_, err := a.Index(context.Background(), root, false)
	require.NoError(t, err)

	_, err = a.Search(context.Background(), "alpha")
	require.NoError(t, err)

	history, err := a.RecentSearches(context.Background(), 5)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, "alpha", history[0].Query)
}

func TestStatsByCategory(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "text one")
	writeFile(t, filepath.Join(root, "b.txt"), "text two")
	writeFile(t, filepath.Join(root, "main.go"), "package main")

	_, err := a.Index(context.Background(), root, false)
	require.NoError(t, err)

	stats, err := a.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, 2, stats.ByCategory["text"])
	assert.Equal(t, 1, stats.ByCategory["code"])
}
