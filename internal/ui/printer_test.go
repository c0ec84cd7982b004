package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Itsme23476/filescout/internal/search"
	"github.com/Itsme23476/filescout/internal/store"
)

func TestPrinterResults(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	p.Results("beach", []*search.Result{
		{
			Record: &store.FileRecord{
				Path:    "/photos/beach.jpg",
				Caption: "a sandy beach",
				Tags:    []string{"beach", "sunset"},
			},
			Score:         8.25,
			MatchedFields: []string{"name", "caption", "semantic"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "/photos/beach.jpg")
	assert.Contains(t, out, "a sandy beach")
	assert.Contains(t, out, "beach, sunset")
	assert.Contains(t, out, "8.25")
	assert.Contains(t, out, "matched: name, caption, semantic")
}

func TestPrinterNoResults(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	p.Results("nothing", nil)
	assert.Contains(t, buf.String(), "No results")
}

func TestPrinterRunSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	p.RunSummary(&store.IndexRun{
		Root: "/photos", Scanned: 10, Enriched: 7, Failed: 1, Skipped: 2,
	}, 1500*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "/photos")
	assert.Contains(t, out, "scanned:  10")
	assert.Contains(t, out, "failed:   1")
}

func TestPrinterStats(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	p.Stats(&store.Stats{
		TotalFiles:  3,
		WithCaption: 1,
		WithOCR:     2,
		ByCategory:  map[string]int{"text": 2, "image": 1},
	})

	out := buf.String()
	assert.Contains(t, out, "files:        3")
	assert.Contains(t, out, "image")
	assert.Contains(t, out, "text")
}
