// Package app wires configuration, stores, providers, the ingestion
// pipeline, and the query engine into one facade. The CLI talks only
// to this package.
package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Itsme23476/filescout/internal/config"
	"github.com/Itsme23476/filescout/internal/embed"
	scouterr "github.com/Itsme23476/filescout/internal/errors"
	"github.com/Itsme23476/filescout/internal/extract"
	"github.com/Itsme23476/filescout/internal/pipeline"
	"github.com/Itsme23476/filescout/internal/search"
	"github.com/Itsme23476/filescout/internal/store"
	"github.com/Itsme23476/filescout/internal/watcher"
)

const (
	metadataFileName = "metadata.db"
	indexFileName    = "vectors.hnsw"
	lockFileName     = "index.lock"
)

// App owns every long-lived component of a filescout instance.
type App struct {
	Config *config.Config

	meta       store.MetadataStore
	vectors    store.VectorIndex
	embedder   embed.Embedder
	extractors []extract.Extractor
	engine     *search.Engine

	indexPath string
	lockPath  string
}

// New builds a fully wired App from configuration. The data directory
// is created if missing; an existing vector index is loaded and its
// dimensions checked against the configured embedder.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	dataDir := cfg.Paths.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}

	meta, err := store.NewSQLiteStore(filepath.Join(dataDir, metadataFileName))
	if err != nil {
		return nil, err
	}

	embedder, err := embed.NewFromConfig(ctx, cfg.Embeddings)
	if err != nil {
		_ = meta.Close()
		return nil, err
	}
	embedder = embed.NewCachedEmbedder(embedder, cfg.Search.CacheSize)

	indexPath := filepath.Join(dataDir, indexFileName)
	vectors, err := openVectorIndex(indexPath, embedder.Dimensions())
	if err != nil {
		_ = embedder.Close()
		_ = meta.Close()
		return nil, err
	}

	extractors, err := extract.NewFromConfig(cfg.Extraction)
	if err != nil {
		_ = vectors.Close()
		_ = embedder.Close()
		_ = meta.Close()
		return nil, err
	}

	engine, err := search.NewEngine(meta, vectors, embedder, search.Options{
		MaxResults:         cfg.Search.MaxResults,
		SemanticCandidates: cfg.Search.SemanticCandidates,
	})
	if err != nil {
		_ = vectors.Close()
		_ = embedder.Close()
		_ = meta.Close()
		return nil, err
	}

	return &App{
		Config:     cfg,
		meta:       meta,
		vectors:    vectors,
		embedder:   embedder,
		extractors: extractors,
		engine:     engine,
		indexPath:  indexPath,
		lockPath:   filepath.Join(dataDir, lockFileName),
	}, nil
}

// openVectorIndex loads an existing index or creates a fresh one sized
// to the embedder. A stored index with different dimensions is refused
// rather than silently mixed.
func openVectorIndex(path string, embedderDims int) (store.VectorIndex, error) {
	storedDims, err := store.ReadIndexDimensions(path)
	if err != nil {
		return nil, err
	}

	if storedDims > 0 && storedDims != embedderDims {
		return nil, scouterr.New(scouterr.ErrCodeDimensionMismatch,
			store.ErrDimensionMismatch{Expected: storedDims, Got: embedderDims}.Error(), nil).
			WithSuggestion("run 'filescout index --force' to rebuild with the current embedder")
	}

	dims := embedderDims
	if storedDims > 0 {
		dims = storedDims
	}

	idx, err := store.NewHNSWIndex(dims)
	if err != nil {
		return nil, err
	}
	if storedDims > 0 {
		if err := idx.Load(path); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// pipelineFor builds a pipeline run configuration from the app wiring.
func (a *App) pipelineFor(force bool) *pipeline.Pipeline {
	retry := scouterr.DefaultRetryPolicy()
	retry.MaxRetries = a.Config.Extraction.MaxRetries

	return pipeline.New(a.meta, a.vectors, a.extractors, a.embedder, pipeline.Options{
		Workers:       a.Config.Indexing.Workers,
		MaxFileSizeMB: a.Config.Indexing.MaxFileSizeMB,
		Retry:         retry,
		Force:         force,
		LockPath:      a.lockPath,
	})
}

// Index ingests root. With force set, unchanged files are re-enriched
// and any resumable run state is ignored.
func (a *App) Index(ctx context.Context, root string, force bool) (*store.IndexRun, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeInvalidPath, err)
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return nil, scouterr.New(scouterr.ErrCodeInvalidPath, "not a directory: "+absRoot, err)
	}

	run, runErr := a.pipelineFor(force).Run(ctx, absRoot)

	// Persist whatever made it into the index, even on a failed or
	// cancelled run.
	if err := a.vectors.Save(a.indexPath); err != nil {
		slog.Error("index_save_failed", slog.String("error", err.Error()))
		if runErr == nil {
			runErr = err
		}
	}
	return run, runErr
}

// Reindex force-rebuilds the enrichment for every file under root.
func (a *App) Reindex(ctx context.Context, root string) (*store.IndexRun, error) {
	return a.Index(ctx, root, true)
}

// RunStatus returns the stored state of an index run by ID.
func (a *App) RunStatus(ctx context.Context, runID string) (*store.IndexRun, error) {
	return a.meta.GetRun(ctx, runID)
}

// Search executes a query and returns scored results.
func (a *App) Search(ctx context.Context, query string) ([]*search.Result, error) {
	return a.engine.Search(ctx, query)
}

// Stats returns index statistics for the status command.
func (a *App) Stats(ctx context.Context) (*store.Stats, error) {
	return a.meta.Stats(ctx)
}

// RecentSearches returns the newest entries from the search history.
func (a *App) RecentSearches(ctx context.Context, limit int) ([]*store.SearchEntry, error) {
	return a.meta.RecentSearches(ctx, limit)
}

// RemoveRoot drops every record and vector under root and persists the
// shrunken index.
func (a *App) RemoveRoot(ctx context.Context, root string) (int, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return 0, scouterr.Wrap(scouterr.ErrCodeInvalidPath, err)
	}

	removed, err := a.pipelineFor(false).RemoveRoot(ctx, absRoot)
	if err != nil {
		return removed, err
	}
	return removed, a.vectors.Save(a.indexPath)
}

// Watch indexes root, then re-indexes on every debounced batch of
// filesystem changes until ctx is cancelled.
func (a *App) Watch(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return scouterr.Wrap(scouterr.ErrCodeInvalidPath, err)
	}

	if _, err := a.Index(ctx, absRoot, false); err != nil {
		return err
	}

	w, err := watcher.New(watcher.Options{
		DebounceWindow: a.Config.WatchDebounceDuration(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	go func() { _ = w.Start(ctx, absRoot) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-w.Batches():
			if !ok {
				return nil
			}
			slog.Info("watch_batch", slog.Int("events", len(batch)))
			// The pipeline's own diffing keeps this incremental; only
			// changed files are re-enriched.
			if _, err := a.Index(ctx, absRoot, false); err != nil {
				slog.Error("watch_reindex_failed", slog.String("error", err.Error()))
			}
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// Close releases every component. Safe to call once.
func (a *App) Close() error {
	var firstErr error
	for _, e := range a.extractors {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.meta.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
