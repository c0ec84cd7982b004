// Package pipeline walks indexed roots, enriches files through the
// configured extractors, embeds their metadata text, and keeps the
// metadata store and vector index consistent. Runs are resumable: a
// durable cursor advances only over a contiguous prefix of processed
// files, so an interrupted run redoes at most the in-flight window.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Itsme23476/filescout/internal/embed"
	scouterr "github.com/Itsme23476/filescout/internal/errors"
	"github.com/Itsme23476/filescout/internal/extract"
	"github.com/Itsme23476/filescout/internal/store"
)

// maxEmbedTextLen bounds the text blob handed to the embedder.
const maxEmbedTextLen = 5000

// maxInlineReadSize bounds how much file content is loaded into memory
// for extraction and hashing in one read.
const maxInlineReadSize = 32 * 1024 * 1024

// Options configures a Pipeline.
type Options struct {
	Workers       int
	MaxFileSizeMB int
	Retry         scouterr.RetryPolicy
	Force         bool   // Re-enrich files even if unchanged
	LockPath      string // flock path guarding the data dir, empty disables
}

// Pipeline ingests one root at a time.
type Pipeline struct {
	meta       store.MetadataStore
	vectors    store.VectorIndex
	extractors []extract.Extractor
	embedder   embed.Embedder
	opts       Options
}

// New creates a Pipeline.
func New(meta store.MetadataStore, vectors store.VectorIndex, extractors []extract.Extractor, embedder embed.Embedder, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialDelay == 0 {
		opts.Retry = scouterr.DefaultRetryPolicy()
	}
	return &Pipeline{
		meta:       meta,
		vectors:    vectors,
		extractors: extractors,
		embedder:   embedder,
		opts:       opts,
	}
}

// Identity derives the stable record ID for an absolute path.
func Identity(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:16]
}

// outcome is the per-file processing result fed to the collector.
type outcome int

const (
	outcomeEnriched outcome = iota
	outcomeFailed
	outcomeSkipped
)

// Run ingests root. If an unfinished run exists for the root it is
// resumed from its cursor; otherwise a new run starts. Returns the
// completed run record.
func (p *Pipeline) Run(ctx context.Context, root string) (*store.IndexRun, error) {
	if p.opts.LockPath != "" {
		lock := flock.New(p.opts.LockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
		}
		if !locked {
			return nil, scouterr.New(scouterr.ErrCodeInvalidInput,
				"another indexing run is active", nil).
				WithSuggestion("wait for it to finish or remove the stale lock file")
		}
		defer func() { _ = lock.Unlock() }()
	}

	entries, err := Walk(root, int64(p.opts.MaxFileSizeMB)*1024*1024)
	if err != nil {
		return nil, err
	}

	run, err := p.resumeOrStart(ctx, root, entries)
	if err != nil {
		return nil, err
	}

	slog.Info("index_started",
		slog.String("run_id", run.ID),
		slog.String("root", root),
		slog.Int("files", len(entries)),
		slog.Int("cursor", run.Cursor),
	)

	if err := p.process(ctx, run, entries); err != nil {
		// Persist progress before surfacing the error so the next run
		// resumes instead of restarting.
		_ = p.meta.SaveRun(context.WithoutCancel(ctx), run)
		return run, err
	}

	deleted, err := p.removeVanished(ctx, root, entries)
	if err != nil {
		return run, err
	}

	run.Done = true
	run.FinishedAt = time.Now()
	if err := p.meta.SaveRun(ctx, run); err != nil {
		return run, err
	}

	slog.Info("index_complete",
		slog.String("run_id", run.ID),
		slog.Int("scanned", run.Scanned),
		slog.Int("enriched", run.Enriched),
		slog.Int("failed", run.Failed),
		slog.Int("skipped", run.Skipped),
		slog.Int("deleted", deleted),
	)
	return run, nil
}

// resumeOrStart reuses an unfinished run for root when its cursor is
// still valid against the current listing, otherwise starts fresh.
func (p *Pipeline) resumeOrStart(ctx context.Context, root string, entries []FileEntry) (*store.IndexRun, error) {
	if !p.opts.Force {
		if prev, err := p.meta.UnfinishedRun(ctx, root); err == nil {
			prev.Cursor = p.validateCursor(ctx, prev.Cursor, entries)
			prev.Scanned = len(entries)
			slog.Info("index_resumed", slog.String("run_id", prev.ID), slog.Int("cursor", prev.Cursor))
			return prev, nil
		} else if err != store.ErrNotFound {
			return nil, err
		}
	}

	run := &store.IndexRun{
		ID:        uuid.NewString(),
		Root:      root,
		StartedAt: time.Now(),
		Scanned:   len(entries),
	}
	return run, p.meta.SaveRun(ctx, run)
}

// validateCursor re-checks the already-processed prefix. Files may have
// changed or vanished between runs; the cursor shrinks to the longest
// prefix whose records still match the filesystem.
func (p *Pipeline) validateCursor(ctx context.Context, cursor int, entries []FileEntry) int {
	if cursor > len(entries) {
		return 0
	}
	for i := 0; i < cursor; i++ {
		rec, err := p.meta.Get(ctx, Identity(entries[i].Path))
		if err != nil {
			return i
		}
		if !rec.ModTime.Equal(entries[i].ModTime) || rec.Size != entries[i].Size {
			return i
		}
	}
	return cursor
}

// process runs the extraction worker pool over entries beyond the
// cursor, advancing the cursor over the contiguous completed prefix
// and persisting the run after each advance.
func (p *Pipeline) process(ctx context.Context, run *store.IndexRun, entries []FileEntry) error {
	start := run.Cursor
	if start >= len(entries) {
		return nil
	}

	var mu sync.Mutex
	done := make([]bool, len(entries))
	for i := 0; i < start; i++ {
		done[i] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for i := start; i < len(entries); i++ {
		i := i
		g.Go(func() error {
			// Cancellation takes effect between files, never mid-file.
			if err := gctx.Err(); err != nil {
				return err
			}

			result := p.processFile(gctx, run.Root, entries[i])

			mu.Lock()
			defer mu.Unlock()

			switch result {
			case outcomeEnriched:
				run.Enriched++
			case outcomeFailed:
				run.Failed++
			case outcomeSkipped:
				run.Skipped++
			}

			done[i] = true
			advanced := false
			for run.Cursor < len(done) && done[run.Cursor] {
				run.Cursor++
				advanced = true
			}
			if advanced {
				// Persist with a detached context so an in-flight
				// cancellation still records completed work.
				if err := p.meta.SaveRun(context.WithoutCancel(gctx), run); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// processFile ingests one file: diff against the store, extract,
// persist metadata, then embed and attach the vector.
func (p *Pipeline) processFile(ctx context.Context, root string, entry FileEntry) outcome {
	identity := Identity(entry.Path)

	existing, err := p.meta.Get(ctx, identity)
	if err != nil && err != store.ErrNotFound {
		slog.Error("record_lookup_failed", slog.String("path", entry.Path), slog.String("error", err.Error()))
		return outcomeFailed
	}

	if existing != nil && !p.opts.Force && p.unchanged(existing, entry) {
		// Self-healing: a record whose vector never landed, or whose
		// vector the index lost before a save, gets re-embedded even
		// though its metadata is current.
		if p.embedder != nil &&
			(existing.EmbeddingID == "" || !p.vectors.Contains(existing.EmbeddingID)) {
			if err := p.attachEmbedding(ctx, existing); err == nil {
				return outcomeEnriched
			}
		}
		return outcomeSkipped
	}

	data, contentHash, err := p.readContent(entry)
	if err != nil {
		slog.Warn("read_failed", slog.String("path", entry.Path), slog.String("error", err.Error()))
		// An unreadable file still gets a record so it stays findable
		// by name and path.
		failed := &store.FileRecord{
			Identity:  identity,
			Path:      entry.Path,
			Root:      root,
			Name:      entry.Name,
			Extension: entry.Ext,
			Category:  entry.Category,
			Size:      entry.Size,
			ModTime:   entry.ModTime,
			Status:    store.StatusFailed,
			IndexedAt: time.Now(),
		}
		if existing != nil {
			failed.ContentHash = existing.ContentHash
			failed.EmbeddingID = existing.EmbeddingID
			failed.Caption = existing.Caption
			failed.OCRText = existing.OCRText
			failed.Tags = existing.Tags
		}
		if err := p.meta.Upsert(ctx, failed); err != nil {
			slog.Error("upsert_failed", slog.String("path", entry.Path), slog.String("error", err.Error()))
		}
		return outcomeFailed
	}

	// Unchanged content under a touched mtime: refresh the stat fields,
	// keep the enrichment.
	if existing != nil && !p.opts.Force && existing.ContentHash == contentHash &&
		existing.Status == store.StatusComplete {
		existing.ModTime = entry.ModTime
		existing.Size = entry.Size
		existing.IndexedAt = time.Now()
		if err := p.meta.Upsert(ctx, existing); err != nil {
			return outcomeFailed
		}
		return outcomeSkipped
	}

	rec := &store.FileRecord{
		Identity:    identity,
		Path:        entry.Path,
		Root:        root,
		Name:        entry.Name,
		Extension:   entry.Ext,
		Category:    entry.Category,
		Size:        entry.Size,
		ModTime:     entry.ModTime,
		ContentHash: contentHash,
		Status:      store.StatusInProgress,
		IndexedAt:   time.Now(),
	}
	if existing != nil {
		rec.EmbeddingID = existing.EmbeddingID
	}

	result, status := p.runExtractors(ctx, entry, data)
	rec.Caption = result.Caption
	rec.OCRText = result.OCRText
	rec.Tags = result.Tags
	rec.Status = status

	// Metadata lands before the vector; a crash between the two leaves
	// an empty EmbeddingID that the next run repairs.
	if err := p.meta.Upsert(ctx, rec); err != nil {
		slog.Error("upsert_failed", slog.String("path", entry.Path), slog.String("error", err.Error()))
		return outcomeFailed
	}

	if p.embedder != nil {
		if err := p.attachEmbedding(ctx, rec); err != nil {
			slog.Warn("embedding_failed", slog.String("path", entry.Path), slog.String("error", err.Error()))
			rec.Status = store.StatusFailed
			_ = p.meta.Upsert(ctx, rec)
			return outcomeFailed
		}
	}

	switch rec.Status {
	case store.StatusFailed:
		return outcomeFailed
	case store.StatusSkipped:
		return outcomeSkipped
	default:
		return outcomeEnriched
	}
}

// unchanged reports whether the stored record still matches the file
// and needs no re-enrichment.
func (p *Pipeline) unchanged(rec *store.FileRecord, entry FileEntry) bool {
	if rec.Status != store.StatusComplete && rec.Status != store.StatusSkipped {
		return false
	}
	return rec.ModTime.Equal(entry.ModTime) && rec.Size == entry.Size
}

// readContent loads file bytes for extraction and computes the content
// hash. Categories that no extractor inspects are hashed via streaming
// without retaining the data.
func (p *Pipeline) readContent(entry FileEntry) ([]byte, string, error) {
	needsData := false
	for _, e := range p.extractors {
		if e.Supports(entry.Category) {
			needsData = true
			break
		}
	}

	if needsData && entry.Size <= maxInlineReadSize {
		data, err := os.ReadFile(entry.Path)
		if err != nil {
			return nil, "", err
		}
		sum := sha256.Sum256(data)
		return data, hex.EncodeToString(sum[:]), nil
	}

	f, err := os.Open(entry.Path)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, "", err
	}
	return nil, hex.EncodeToString(h.Sum(nil)), nil
}

// runExtractors applies every supporting extractor with the retry
// policy and folds their results. The returned status is Complete only
// when every supporting extractor was attempted without permanent
// failure, Skipped when none support the category.
func (p *Pipeline) runExtractors(ctx context.Context, entry FileEntry, data []byte) (*extract.Result, store.EnrichmentStatus) {
	input := extract.FileInput{
		Path:     entry.Path,
		Category: entry.Category,
		Size:     entry.Size,
		Data:     data,
	}

	merged := &extract.Result{}
	attempted := 0
	failed := 0

	for _, e := range p.extractors {
		if !e.Supports(entry.Category) {
			continue
		}
		attempted++

		var result *extract.Result
		err := p.opts.Retry.Do(ctx, func() error {
			r, extractErr := e.Extract(ctx, input)
			if extractErr != nil {
				f := extract.AsFailure(extractErr)
				if f.Retryable() {
					return scouterr.Wrap(scouterr.ErrCodeProviderUnavailable, extractErr)
				}
				return scouterr.Wrap(scouterr.ErrCodeMalformedFile, extractErr)
			}
			result = r
			return nil
		})
		if err != nil {
			failed++
			slog.Warn("extraction_failed",
				slog.String("extractor", e.Name()),
				slog.String("path", entry.Path),
				slog.String("error", err.Error()),
			)
			continue
		}
		merged.Merge(result)
	}

	switch {
	case attempted == 0:
		return merged, store.StatusSkipped
	case failed > 0:
		return merged, store.StatusFailed
	default:
		return merged, store.StatusComplete
	}
}

// attachEmbedding embeds the record's metadata text and stores the
// vector, then writes the embedding ID back onto the record.
func (p *Pipeline) attachEmbedding(ctx context.Context, rec *store.FileRecord) error {
	vec, err := p.embedder.Embed(ctx, EmbeddingText(rec))
	if err != nil {
		return err
	}

	embID, err := p.vectors.Add(ctx, rec.Identity, vec)
	if err != nil {
		return err
	}

	rec.EmbeddingID = embID
	return p.meta.Upsert(ctx, rec)
}

// EmbeddingText builds the text blob that represents a file in vector
// space: name, category, tags, caption, then extracted text, truncated.
func EmbeddingText(rec *store.FileRecord) string {
	parts := []string{rec.Name, rec.Category}
	if len(rec.Tags) > 0 {
		parts = append(parts, strings.Join(rec.Tags, " "))
	}
	if rec.Caption != "" {
		parts = append(parts, rec.Caption)
	}
	if rec.OCRText != "" {
		parts = append(parts, rec.OCRText)
	}

	text := strings.Join(parts, "\n")
	if len(text) > maxEmbedTextLen {
		text = text[:maxEmbedTextLen]
	}
	return text
}

// removeVanished deletes records whose files no longer exist under
// root, cascading into the vector index.
func (p *Pipeline) removeVanished(ctx context.Context, root string, entries []FileEntry) (int, error) {
	records, err := p.meta.ScanRoot(ctx, root)
	if err != nil {
		return 0, err
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Path] = true
	}

	deleted := 0
	for _, rec := range records {
		if present[rec.Path] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		embID, err := p.meta.Delete(ctx, rec.Identity)
		if err != nil {
			return deleted, err
		}
		if embID != "" {
			if err := p.vectors.Remove(ctx, embID); err != nil {
				return deleted, err
			}
		}
		deleted++
		slog.Debug("record_removed", slog.String("path", rec.Path))
	}
	return deleted, nil
}

// RemoveRoot deletes every record and vector under root.
func (p *Pipeline) RemoveRoot(ctx context.Context, root string) (int, error) {
	embIDs, err := p.meta.DeleteByRoot(ctx, root)
	if err != nil {
		return 0, err
	}
	for _, id := range embIDs {
		if err := p.vectors.Remove(ctx, id); err != nil {
			return 0, err
		}
	}
	slog.Info("root_removed", slog.String("root", root), slog.Int("vectors", len(embIDs)))
	return len(embIDs), nil
}
