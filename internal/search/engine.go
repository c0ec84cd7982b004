package search

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Itsme23476/filescout/internal/embed"
	scouterr "github.com/Itsme23476/filescout/internal/errors"
	"github.com/Itsme23476/filescout/internal/store"
)

// Lexical field weights. Name matches dominate; a tag hit alone ranks
// below any content hit. Directory components count too, so a term
// matching a parent folder still surfaces its files.
const (
	weightName    = 4.0
	weightCaption = 3.0
	weightOCR     = 2.0
	weightPath    = 1.5
	weightTag     = 1.0
)

// semanticBlend scales similarity when lexical evidence exists. The
// semantic leg refines lexical order but never overrides it; with no
// lexical hits similarity stands alone as the fallback score.
const semanticBlend = 0.25

// Options configures the engine.
type Options struct {
	MaxResults         int // Cap on returned results
	SemanticCandidates int // Neighbours fetched from the vector index
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{MaxResults: 20, SemanticCandidates: 50}
}

// Result is one scored hit. MatchedFields names the record fields the
// query terms hit ("name", "path", "caption", "ocr", "tags"), plus
// "semantic" when vector similarity contributed to the score.
type Result struct {
	Record        *store.FileRecord
	Score         float64
	Lexical       float64
	Similarity    float64
	MatchedFields []string
}

// Engine executes parsed queries against the metadata store and the
// vector index.
type Engine struct {
	meta     store.MetadataStore
	vectors  store.VectorIndex
	embedder embed.Embedder
	opts     Options
}

// NewEngine creates a query engine. The embedder may be nil; semantic
// scoring is then disabled and queries run lexically.
func NewEngine(meta store.MetadataStore, vectors store.VectorIndex, embedder embed.Embedder, opts Options) (*Engine, error) {
	if meta == nil {
		return nil, scouterr.New(scouterr.ErrCodeInvalidInput, "metadata store is required", nil)
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultOptions().MaxResults
	}
	if opts.SemanticCandidates <= 0 {
		opts.SemanticCandidates = DefaultOptions().SemanticCandidates
	}
	return &Engine{meta: meta, vectors: vectors, embedder: embedder, opts: opts}, nil
}

// Search parses and executes a query. Results are ordered by score
// descending with ties broken by identity, so identical queries over
// an unchanged index return identical rankings.
func (e *Engine) Search(ctx context.Context, query string) ([]*Result, error) {
	start := time.Now()

	parsed := Parse(query)
	if parsed.Empty() {
		return nil, nil
	}

	candidates, err := e.meta.QueryByPredicates(ctx, parsed.Predicates)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeSearchFailed, err)
	}

	var results []*Result
	if len(parsed.Terms) == 0 {
		// Predicates only: the candidate set is the answer, already in
		// deterministic path order.
		results = make([]*Result, 0, len(candidates))
		for _, rec := range candidates {
			results = append(results, &Result{Record: rec})
		}
	} else {
		results, err = e.score(ctx, parsed, candidates)
		if err != nil {
			return nil, err
		}
	}

	if len(results) > e.opts.MaxResults {
		results = results[:e.opts.MaxResults]
	}

	if err := e.meta.RecordSearch(ctx, query, len(results)); err != nil {
		slog.Warn("search_history_write_failed", slog.String("error", err.Error()))
	}

	slog.Info("search_executed",
		slog.String("query", query),
		slog.Int("candidates", len(candidates)),
		slog.Int("results", len(results)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}

// score runs the lexical and semantic legs over the candidate set in
// parallel and blends them.
func (e *Engine) score(ctx context.Context, parsed ParsedQuery, candidates []*store.FileRecord) ([]*Result, error) {
	similarities := make(map[string]float32)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sims, err := e.semanticLeg(gctx, parsed.FreeText)
		if err != nil {
			// Semantic degradation is not a query failure; lexical
			// results still answer the query.
			slog.Warn("semantic_search_degraded", slog.String("error", err.Error()))
			return nil
		}
		for id, score := range sims {
			similarities[id] = score
		}
		return nil
	})

	lexical := make([]float64, len(candidates))
	matched := make([][]string, len(candidates))
	g.Go(func() error {
		for i, rec := range candidates {
			if err := gctx.Err(); err != nil {
				return err
			}
			lexical[i], matched[i] = lexicalScore(parsed.Terms, rec)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeSearchFailed, err)
	}

	results := make([]*Result, 0, len(candidates))
	for i, rec := range candidates {
		sim := float64(similarities[rec.EmbeddingID])
		lex := lexical[i]

		var final float64
		if lex > 0 {
			final = lex + semanticBlend*sim
		} else {
			final = sim
		}
		if final <= 0 {
			continue
		}
		fields := matched[i]
		if sim > 0 {
			fields = append(fields, "semantic")
		}
		results = append(results, &Result{
			Record:        rec,
			Score:         final,
			Lexical:       lex,
			Similarity:    sim,
			MatchedFields: fields,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.Identity < results[j].Record.Identity
	})
	return results, nil
}

// semanticLeg embeds the free text and returns similarity by embedding
// ID for the nearest neighbours.
func (e *Engine) semanticLeg(ctx context.Context, freeText string) (map[string]float32, error) {
	if e.embedder == nil || e.vectors == nil || e.vectors.Count() == 0 {
		return nil, nil
	}

	vec, err := e.embedder.Embed(ctx, freeText)
	if err != nil {
		return nil, err
	}

	neighbors, err := e.vectors.Nearest(ctx, vec, e.opts.SemanticCandidates)
	if err != nil {
		return nil, err
	}

	sims := make(map[string]float32, len(neighbors))
	for _, n := range neighbors {
		sims[n.EmbeddingID] = n.Score
	}
	return sims, nil
}

// lexicalScore sums field-weighted term hits and reports which fields
// matched. A file matching more of the query in stronger fields scores
// higher. The name is excluded from the path leg so it is never
// counted twice.
func lexicalScore(terms []string, rec *store.FileRecord) (float64, []string) {
	name := strings.ToLower(rec.Name)
	dir := strings.ToLower(filepath.Dir(rec.Path))
	caption := strings.ToLower(rec.Caption)
	ocr := strings.ToLower(rec.OCRText)

	var score float64
	var hitName, hitPath, hitCaption, hitOCR, hitTags bool
	for _, term := range terms {
		if strings.Contains(name, term) {
			score += weightName
			hitName = true
		}
		if dir != "." && strings.Contains(dir, term) {
			score += weightPath
			hitPath = true
		}
		if caption != "" && strings.Contains(caption, term) {
			score += weightCaption
			hitCaption = true
		}
		if ocr != "" && strings.Contains(ocr, term) {
			score += weightOCR
			hitOCR = true
		}
		for _, tag := range rec.Tags {
			if strings.Contains(strings.ToLower(tag), term) {
				score += weightTag
				hitTags = true
				break
			}
		}
	}

	var fields []string
	if hitName {
		fields = append(fields, "name")
	}
	if hitPath {
		fields = append(fields, "path")
	}
	if hitCaption {
		fields = append(fields, "caption")
	}
	if hitOCR {
		fields = append(fields, "ocr")
	}
	if hitTags {
		fields = append(fields, "tags")
	}
	return score, fields
}
