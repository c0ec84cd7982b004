package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Itsme23476/filescout/internal/embed"
	scouterr "github.com/Itsme23476/filescout/internal/errors"
	"github.com/Itsme23476/filescout/internal/extract"
	"github.com/Itsme23476/filescout/internal/store"
)

type fakeExtractor struct {
	mu       sync.Mutex
	calls    int
	supports map[string]bool
	result   *extract.Result
	err      error
}

func (f *fakeExtractor) Extract(_ context.Context, _ extract.FileInput) (*extract.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeExtractor) Name() string { return "fake" }

func (f *fakeExtractor) Supports(category string) bool {
	if f.supports == nil {
		return true
	}
	return f.supports[category]
}

func (f *fakeExtractor) Close() error { return nil }

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastRetry() scouterr.RetryPolicy {
	return scouterr.RetryPolicy{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
	}
}

func newTestPipeline(t *testing.T, extractors []extract.Extractor, embedder embed.Embedder) (*Pipeline, store.MetadataStore, store.VectorIndex) {
	t.Helper()
	dir := t.TempDir()

	meta, err := store.NewSQLiteStore(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	vectors, err := store.NewHNSWIndex(embed.StaticDimensions)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	p := New(meta, vectors, extractors, embedder, Options{
		Workers: 2,
		Retry:   fastRetry(),
	})
	return p, meta, vectors
}

func TestRunIndexesFreshRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "beach.jpg"), []byte("jpeg-bytes"))
	writeFile(t, filepath.Join(root, "notes.txt"), []byte("meeting notes"))

	ext := &fakeExtractor{result: &extract.Result{Caption: "a beach", Tags: []string{"beach"}}}
	p, meta, vectors := newTestPipeline(t, []extract.Extractor{ext}, embed.NewStaticEmbedder())

	run, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	assert.True(t, run.Done)
	assert.Equal(t, 2, run.Scanned)
	assert.Equal(t, 2, run.Enriched)
	assert.Equal(t, 0, run.Failed)
	assert.Equal(t, 2, run.Cursor)
	assert.False(t, run.FinishedAt.IsZero())

	rec, err := meta.GetByPath(context.Background(), filepath.Join(root, "beach.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "a beach", rec.Caption)
	assert.Equal(t, []string{"beach"}, rec.Tags)
	assert.Equal(t, store.StatusComplete, rec.Status)
	assert.NotEmpty(t, rec.EmbeddingID)
	assert.NotEmpty(t, rec.ContentHash)

	assert.Equal(t, 2, vectors.Count())
}

func TestRunSkipsUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("aa"))
	writeFile(t, filepath.Join(root, "b.txt"), []byte("bb"))

	ext := &fakeExtractor{result: &extract.Result{OCRText: "text"}}
	p, _, _ := newTestPipeline(t, []extract.Extractor{ext}, embed.NewStaticEmbedder())

	_, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	firstCalls := ext.callCount()
	assert.Equal(t, 2, firstCalls)

	run, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Skipped)
	assert.Equal(t, 0, run.Enriched)
	assert.Equal(t, firstCalls, ext.callCount(), "unchanged files must not be re-extracted")
}

func TestRunForceReenriches(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("aa"))

	ext := &fakeExtractor{result: &extract.Result{OCRText: "text"}}
	p, _, _ := newTestPipeline(t, []extract.Extractor{ext}, embed.NewStaticEmbedder())

	_, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	p.opts.Force = true
	run, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Enriched)
	assert.Equal(t, 2, ext.callCount())
}

func TestRunReenrichesModifiedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	writeFile(t, path, []byte("version one"))

	ext := &fakeExtractor{result: &extract.Result{OCRText: "text"}}
	p, meta, _ := newTestPipeline(t, []extract.Extractor{ext}, embed.NewStaticEmbedder())

	_, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	firstRec, err := meta.GetByPath(context.Background(), path)
	require.NoError(t, err)

	// Content and size change; backdate mtime check by rewriting
	writeFile(t, path, []byte("version two, longer"))
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(time.Second)))

	run, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Enriched)

	rec, err := meta.GetByPath(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, firstRec.Identity, rec.Identity, "identity is path-derived and stable")
	assert.NotEqual(t, firstRec.ContentHash, rec.ContentHash)
}

func TestRunRemovesVanishedFiles(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "keep.txt")
	gone := filepath.Join(root, "gone.txt")
	writeFile(t, keep, []byte("k"))
	writeFile(t, gone, []byte("g"))

	ext := &fakeExtractor{result: &extract.Result{OCRText: "t"}}
	p, meta, vectors := newTestPipeline(t, []extract.Extractor{ext}, embed.NewStaticEmbedder())

	_, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, vectors.Count())

	require.NoError(t, os.Remove(gone))

	_, err = p.Run(context.Background(), root)
	require.NoError(t, err)

	_, err = meta.GetByPath(context.Background(), gone)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, vectors.Count())

	_, err = meta.GetByPath(context.Background(), keep)
	assert.NoError(t, err)
}

func TestRunExtractionFailureKeepsRecord(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "broken.jpg"), []byte("x"))

	ext := &fakeExtractor{err: extract.NewFailure(extract.KindMalformed, errors.New("bad image"))}
	p, meta, _ := newTestPipeline(t, []extract.Extractor{ext}, embed.NewStaticEmbedder())

	run, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failed)
	assert.True(t, run.Done)

	// Malformed files are not retried
	assert.Equal(t, 1, ext.callCount())

	rec, err := meta.GetByPath(context.Background(), filepath.Join(root, "broken.jpg"))
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
	assert.NotEmpty(t, rec.EmbeddingID, "failed files stay searchable by structural metadata")
}

func TestRunRetriesUnavailableExtractor(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), []byte("x"))

	ext := &fakeExtractor{err: extract.NewFailure(extract.KindUnavailable, errors.New("down"))}
	p, _, _ := newTestPipeline(t, []extract.Extractor{ext}, embed.NewStaticEmbedder())

	run, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 2, ext.callCount(), "unavailable providers get retried")
}

func TestRunUnsupportedCategorySkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "song.mp3"), []byte("audio"))

	ext := &fakeExtractor{supports: map[string]bool{"image": true}, result: &extract.Result{}}
	p, meta, _ := newTestPipeline(t, []extract.Extractor{ext}, embed.NewStaticEmbedder())

	run, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 0, ext.callCount())

	rec, err := meta.GetByPath(context.Background(), filepath.Join(root, "song.mp3"))
	require.NoError(t, err)
	assert.Equal(t, store.StatusSkipped, rec.Status)
	assert.NotEmpty(t, rec.EmbeddingID, "name and category still get embedded")
}

func TestRunResumesUnfinishedRun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("aa"))
	writeFile(t, filepath.Join(root, "b.txt"), []byte("bb"))

	ext := &fakeExtractor{result: &extract.Result{OCRText: "t"}}
	p, meta, _ := newTestPipeline(t, []extract.Extractor{ext}, embed.NewStaticEmbedder())

	first, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	require.True(t, first.Done)

	// Simulate a crash after both files were processed but before the
	// run was marked done.
	interrupted := &store.IndexRun{
		ID:        "interrupted-run",
		Root:      root,
		StartedAt: time.Now(),
		Scanned:   2,
		Cursor:    2,
	}
	require.NoError(t, meta.SaveRun(context.Background(), interrupted))

	callsBefore := ext.callCount()
	resumed, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, "interrupted-run", resumed.ID, "unfinished run is resumed, not restarted")
	assert.True(t, resumed.Done)
	assert.Equal(t, callsBefore, ext.callCount(), "files before the cursor are not reprocessed")
}

func TestRunResumeRevalidatesCursor(t *testing.T) {
	root := t.TempDir()
	pathA := filepath.Join(root, "a.txt")
	writeFile(t, pathA, []byte("aa"))
	writeFile(t, filepath.Join(root, "b.txt"), []byte("bb"))

	ext := &fakeExtractor{result: &extract.Result{OCRText: "t"}}
	p, meta, _ := newTestPipeline(t, []extract.Extractor{ext}, embed.NewStaticEmbedder())

	_, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	// File "a" changed after the cursor passed it; the resumed run must
	// rewind to re-enrich it.
	writeFile(t, pathA, []byte("changed content"))
	require.NoError(t, os.Chtimes(pathA, time.Now(), time.Now().Add(time.Second)))

	interrupted := &store.IndexRun{
		ID:        "stale-cursor",
		Root:      root,
		StartedAt: time.Now(),
		Cursor:    2,
	}
	require.NoError(t, meta.SaveRun(context.Background(), interrupted))

	callsBefore := ext.callCount()
	resumed, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, resumed.Done)
	assert.Greater(t, ext.callCount(), callsBefore, "rewound cursor reprocesses the changed file")
}

func TestRunSelfHealsMissingEmbedding(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("aa"))

	ext := &fakeExtractor{result: &extract.Result{OCRText: "t"}}

	// First run without an embedder leaves records vectorless.
	p, meta, vectors := newTestPipeline(t, []extract.Extractor{ext}, nil)
	_, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	rec, err := meta.GetByPath(context.Background(), filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	require.Empty(t, rec.EmbeddingID)

	p.embedder = embed.NewStaticEmbedder()
	run, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Enriched)

	rec, err = meta.GetByPath(context.Background(), filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.EmbeddingID)
	assert.Equal(t, 1, vectors.Count())
}

func TestRunSelfHealsLostVector(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	writeFile(t, path, []byte("aa"))

	ext := &fakeExtractor{result: &extract.Result{OCRText: "t"}}
	p, meta, _ := newTestPipeline(t, []extract.Extractor{ext}, embed.NewStaticEmbedder())

	_, err := p.Run(context.Background(), root)
	require.NoError(t, err)

	// Simulate a crash before the vector index was saved: the record
	// keeps its embedding ID but the index comes back empty.
	fresh, err := store.NewHNSWIndex(embed.StaticDimensions)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fresh.Close() })
	p.vectors = fresh

	run, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Enriched, "a record pointing at a lost vector is re-embedded")
	assert.Equal(t, 1, fresh.Count())

	rec, err := meta.GetByPath(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, fresh.Contains(rec.EmbeddingID))
}

func TestRunUnreadableFileKeepsRecord(t *testing.T) {
	ext := &fakeExtractor{result: &extract.Result{OCRText: "t"}}
	p, meta, _ := newTestPipeline(t, []extract.Extractor{ext}, embed.NewStaticEmbedder())

	// The walk saw the file but it vanished before processing, so every
	// read fails.
	root := t.TempDir()
	path := filepath.Join(root, "ghost.txt")
	entry := FileEntry{
		Path:     path,
		Name:     "ghost.txt",
		Ext:      Extension("ghost.txt"),
		Category: Categorize("ghost.txt"),
		Size:     10,
		ModTime:  time.Now(),
	}

	out := p.processFile(context.Background(), root, entry)
	assert.Equal(t, outcomeFailed, out)

	rec, err := meta.Get(context.Background(), Identity(path))
	require.NoError(t, err, "unreadable files still get a record")
	assert.Equal(t, store.StatusFailed, rec.Status)
	assert.Equal(t, "ghost.txt", rec.Name)
	assert.Equal(t, path, rec.Path)
}

func TestRunLockPreventsConcurrentRuns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("aa"))

	lockPath := filepath.Join(t.TempDir(), "index.lock")
	held := flock.New(lockPath)
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = held.Unlock() }()

	ext := &fakeExtractor{result: &extract.Result{}}
	p, _, _ := newTestPipeline(t, []extract.Extractor{ext}, embed.NewStaticEmbedder())
	p.opts.LockPath = lockPath

	_, err = p.Run(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another indexing run is active")
}

func TestRemoveRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("aa"))
	writeFile(t, filepath.Join(root, "b.txt"), []byte("bb"))

	ext := &fakeExtractor{result: &extract.Result{OCRText: "t"}}
	p, meta, vectors := newTestPipeline(t, []extract.Extractor{ext}, embed.NewStaticEmbedder())

	_, err := p.Run(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, 2, vectors.Count())

	removed, err := p.RemoveRoot(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, vectors.Count())

	records, err := meta.ScanRoot(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestIdentityStable(t *testing.T) {
	a := Identity("/photos/beach.jpg")
	b := Identity("/photos/beach.jpg")
	c := Identity("/photos/other.jpg")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestEmbeddingText(t *testing.T) {
	rec := &store.FileRecord{
		Name:     "beach.jpg",
		Category: "image",
		Tags:     []string{"beach", "sunset"},
		Caption:  "a sandy beach",
		OCRText:  "some sign text",
	}
	text := EmbeddingText(rec)
	assert.Contains(t, text, "beach.jpg")
	assert.Contains(t, text, "image")
	assert.Contains(t, text, "beach sunset")
	assert.Contains(t, text, "a sandy beach")
	assert.Contains(t, text, "some sign text")
}

func TestEmbeddingTextTruncates(t *testing.T) {
	rec := &store.FileRecord{
		Name:    "big.txt",
		OCRText: string(make([]byte, 20000)),
	}
	assert.LessOrEqual(t, len(EmbeddingText(rec)), maxEmbedTextLen)
}
