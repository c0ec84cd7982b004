package ui

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Itsme23476/filescout/internal/search"
	"github.com/Itsme23476/filescout/internal/store"
)

// Printer writes human-readable command output.
type Printer struct {
	out    io.Writer
	styles Styles
}

// NewPrinter creates a Printer. noColor disables styling.
func NewPrinter(out io.Writer, noColor bool) *Printer {
	return &Printer{out: out, styles: GetStyles(noColor)}
}

// Results renders search hits, one block per file.
func (p *Printer) Results(query string, results []*search.Result) {
	if len(results) == 0 {
		fmt.Fprintf(p.out, "No results for %q\n", query)
		return
	}

	fmt.Fprintf(p.out, "%s\n\n", p.styles.Header.Render(fmt.Sprintf("%d results for %q", len(results), query)))
	for i, r := range results {
		fmt.Fprintf(p.out, "%2d. %s %s\n", i+1,
			p.styles.Accent.Render(r.Record.Path),
			p.styles.Score.Render(fmt.Sprintf("(score %.2f)", r.Score)))

		if r.Record.Caption != "" {
			fmt.Fprintf(p.out, "    %s\n", p.styles.Label.Render(r.Record.Caption))
		}
		if len(r.Record.Tags) > 0 {
			fmt.Fprintf(p.out, "    %s\n", p.styles.Dim.Render("tags: "+joinTags(r.Record.Tags)))
		}
		if len(r.MatchedFields) > 0 {
			fmt.Fprintf(p.out, "    %s\n", p.styles.Dim.Render("matched: "+joinTags(r.MatchedFields)))
		}
	}
}

// RunSummary renders an index run outcome.
func (p *Printer) RunSummary(run *store.IndexRun, elapsed time.Duration) {
	fmt.Fprintf(p.out, "%s\n", p.styles.Header.Render("Indexed "+run.Root))
	fmt.Fprintf(p.out, "  scanned:  %d\n", run.Scanned)
	fmt.Fprintf(p.out, "  enriched: %d\n", run.Enriched)
	if run.Failed > 0 {
		fmt.Fprintf(p.out, "  failed:   %s\n", p.styles.Warning.Render(fmt.Sprintf("%d", run.Failed)))
	}
	fmt.Fprintf(p.out, "  skipped:  %d\n", run.Skipped)
	fmt.Fprintf(p.out, "  elapsed:  %s\n", elapsed.Round(time.Millisecond))
}

// Stats renders index statistics.
func (p *Printer) Stats(stats *store.Stats) {
	fmt.Fprintf(p.out, "%s\n", p.styles.Header.Render("Index status"))
	fmt.Fprintf(p.out, "  files:        %d\n", stats.TotalFiles)
	fmt.Fprintf(p.out, "  with caption: %d\n", stats.WithCaption)
	fmt.Fprintf(p.out, "  with text:    %d\n", stats.WithOCR)
	if stats.Failed > 0 {
		fmt.Fprintf(p.out, "  failed:       %s\n", p.styles.Warning.Render(fmt.Sprintf("%d", stats.Failed)))
	}
	if !stats.LastIndexedAt.IsZero() {
		fmt.Fprintf(p.out, "  last indexed: %s\n", stats.LastIndexedAt.Format(time.RFC3339))
	}

	if len(stats.ByCategory) > 0 {
		fmt.Fprintf(p.out, "\n%s\n", p.styles.Label.Render("By category:"))
		for _, cat := range sortedKeys(stats.ByCategory) {
			fmt.Fprintf(p.out, "  %-10s %d\n", cat, stats.ByCategory[cat])
		}
	}
}

// History renders recent searches.
func (p *Printer) History(entries []*store.SearchEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(p.out, "\n%s\n", p.styles.Label.Render("Recent searches:"))
	for _, e := range entries {
		fmt.Fprintf(p.out, "  %-30q %d results\n", e.Query, e.ResultCount)
	}
}

// Errorf renders an error line.
func (p *Printer) Errorf(format string, args ...any) {
	fmt.Fprintf(p.out, "%s\n", p.styles.Error.Render(fmt.Sprintf(format, args...)))
}

func joinTags(tags []string) string {
	s := ""
	for i, tag := range tags {
		if i > 0 {
			s += ", "
		}
		s += tag
	}
	return s
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
