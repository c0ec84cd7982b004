// Package store provides metadata persistence (SQLite) and the vector
// index (HNSW). This is the persistence layer for all indexed data.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EnrichmentStatus tracks how far a file has progressed through the
// extraction pipeline.
type EnrichmentStatus string

const (
	// StatusPending means the file is known but not yet enriched.
	StatusPending EnrichmentStatus = "pending"
	// StatusInProgress means extraction is currently running.
	StatusInProgress EnrichmentStatus = "in_progress"
	// StatusComplete means every configured extractor was attempted.
	StatusComplete EnrichmentStatus = "complete"
	// StatusFailed means at least one extractor failed permanently.
	// The file remains searchable by its structural metadata.
	StatusFailed EnrichmentStatus = "failed"
	// StatusSkipped means the file was deliberately not enriched
	// (unsupported type, oversize, or extraction disabled).
	StatusSkipped EnrichmentStatus = "skipped"
)

// FileRecord is the durable metadata for one indexed file.
type FileRecord struct {
	Identity    string           // Stable ID: hex SHA256(absolute path), truncated
	Path        string           // Absolute path
	Root        string           // Indexed root this file belongs to
	Name        string           // Base name
	Extension   string           // Lowercase extension without dot
	Category    string           // Derived category (image, pdf, document, ...)
	Size        int64            // File size in bytes
	ModTime     time.Time        // Last modification time
	ContentHash string           // SHA256 of content, for change detection
	Caption     string           // Vision-generated description
	OCRText     string           // Extracted text
	Tags        []string         // Vision-generated tags
	Status      EnrichmentStatus // Enrichment progress
	EmbeddingID string           // Vector index entry, empty if none
	IndexedAt   time.Time        // When last written by the pipeline
}

// HasOCR reports whether text extraction produced content.
func (r *FileRecord) HasOCR() bool { return r.OCRText != "" }

// HasVision reports whether vision analysis produced a caption.
func (r *FileRecord) HasVision() bool { return r.Caption != "" }

// Predicates narrow a candidate set before scoring. Zero values mean
// "no constraint". All set predicates must hold (conjunctive).
type Predicates struct {
	Root      string   // Restrict to one indexed root
	Category  string   // Exact category match
	Tags      []string // Every tag must be present
	HasOCR    bool     // Require non-empty OCR text
	HasVision bool     // Require non-empty caption
}

// Empty reports whether no predicate is set.
func (p Predicates) Empty() bool {
	return p.Root == "" && p.Category == "" && len(p.Tags) == 0 && !p.HasOCR && !p.HasVision
}

// IndexRun records the durable progress of one ingestion pass so an
// interrupted run can resume without redoing completed work.
type IndexRun struct {
	ID         string    // UUID
	Root       string    // Root being indexed
	StartedAt  time.Time
	FinishedAt time.Time // Zero until Done
	Scanned    int       // Files discovered by the walk
	Enriched   int       // Files fully enriched this run
	Failed     int       // Files with permanent extraction failures
	Skipped    int       // Files skipped (unchanged, unsupported, oversize)
	Cursor     int       // Contiguous count of processed files, in walk order
	Done       bool
}

// Stats summarizes the index for the status command.
type Stats struct {
	TotalFiles    int
	ByCategory    map[string]int
	WithOCR       int
	WithCaption   int
	Complete      int
	Failed        int
	Pending       int
	LastIndexedAt time.Time
}

// SearchEntry is one remembered query.
type SearchEntry struct {
	Query       string
	ResultCount int
	ExecutedAt  time.Time
}

// MetadataStore persists file records, index runs, and search history.
type MetadataStore interface {
	// Record operations
	Upsert(ctx context.Context, rec *FileRecord) error
	Get(ctx context.Context, identity string) (*FileRecord, error)
	GetMany(ctx context.Context, identities []string) ([]*FileRecord, error)
	GetByPath(ctx context.Context, path string) (*FileRecord, error)
	// Delete removes a record and returns its embedding ID so the caller
	// can cascade removal into the vector index. Deleting a missing
	// identity is a no-op.
	Delete(ctx context.Context, identity string) (embeddingID string, err error)
	// DeleteByRoot removes every record under root and returns the
	// embedding IDs that need cascading.
	DeleteByRoot(ctx context.Context, root string) ([]string, error)
	QueryByPredicates(ctx context.Context, p Predicates) ([]*FileRecord, error)
	// ScanRoot returns all records under root ordered by path.
	ScanRoot(ctx context.Context, root string) ([]*FileRecord, error)

	// Run operations (resumable ingestion)
	SaveRun(ctx context.Context, run *IndexRun) error
	GetRun(ctx context.Context, id string) (*IndexRun, error)
	UnfinishedRun(ctx context.Context, root string) (*IndexRun, error)

	// Search history
	RecordSearch(ctx context.Context, query string, resultCount int) error
	RecentSearches(ctx context.Context, limit int) ([]*SearchEntry, error)

	// Statistics
	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Close() error
}

// Neighbor is one semantic search hit.
type Neighbor struct {
	EmbeddingID string
	Score       float32 // Cosine similarity mapped to [0, 1]
}

// VectorIndex provides approximate nearest neighbour search over file
// embeddings. The metric is cosine; vectors are normalized on insert.
type VectorIndex interface {
	// Add inserts or replaces the vector for identity and returns the
	// embedding ID to store on the file record.
	Add(ctx context.Context, identity string, vector []float32) (string, error)
	// Remove deletes by embedding ID. Unknown IDs are a no-op.
	Remove(ctx context.Context, embeddingID string) error
	// Nearest returns up to k hits ordered by score descending, ties
	// broken by embedding ID ascending. An empty index yields an empty
	// slice.
	Nearest(ctx context.Context, query []float32, k int) ([]Neighbor, error)
	Contains(embeddingID string) bool
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'filescout index --force')", e.Expected, e.Got)
}

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1
