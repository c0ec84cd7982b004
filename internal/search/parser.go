// Package search implements the hybrid query engine: structured
// predicates narrow the candidate set, lexical field-weighted scoring
// ranks it, and a semantic leg over the vector index fills in matches
// that share no vocabulary with the query.
package search

import (
	"strings"

	"github.com/Itsme23476/filescout/internal/store"
)

// ParsedQuery is the structured form of a user query.
type ParsedQuery struct {
	Predicates store.Predicates
	FreeText   string   // Remaining query text after operators are removed
	Terms      []string // Lowercased free-text terms for lexical scoring
}

// Empty reports whether the query constrains nothing.
func (q ParsedQuery) Empty() bool {
	return q.Predicates.Empty() && q.FreeText == ""
}

// categoryAliases maps operator values users actually type onto the
// category names assigned at indexing time.
var categoryAliases = map[string]string{
	"image": "image", "images": "image", "img": "image",
	"photo": "image", "photos": "image", "picture": "image", "pictures": "image",
	"pdf": "pdf", "pdfs": "pdf",
	"document": "document", "documents": "document", "doc": "document", "docs": "document",
	"video": "video", "videos": "video",
	"audio": "audio", "music": "audio",
	"code":    "code",
	"archive": "archive", "archives": "archive",
	"text": "text", "txt": "text",
	"misc": "misc",
}

// Parse splits a query into predicates and free text. Operators are
// type:/label: (category), tag:, and has:ocr / has:vision. A malformed
// operator is not an error; its token degrades to free text so the
// query still runs.
func Parse(query string) ParsedQuery {
	var parsed ParsedQuery
	var free []string

	for _, token := range strings.Fields(query) {
		op, value, found := strings.Cut(token, ":")
		if !found || value == "" {
			free = append(free, token)
			continue
		}

		switch strings.ToLower(op) {
		case "type", "label":
			if cat, ok := categoryAliases[strings.ToLower(value)]; ok {
				parsed.Predicates.Category = cat
			} else {
				free = append(free, token)
			}
		case "tag":
			parsed.Predicates.Tags = append(parsed.Predicates.Tags, strings.ToLower(value))
		case "has":
			switch strings.ToLower(value) {
			case "ocr", "text":
				parsed.Predicates.HasOCR = true
			case "vision", "caption":
				parsed.Predicates.HasVision = true
			default:
				free = append(free, token)
			}
		default:
			// Unknown operator, or a plain token containing a colon
			free = append(free, token)
		}
	}

	parsed.FreeText = strings.Join(free, " ")
	parsed.Terms = termsOf(parsed.FreeText)
	return parsed
}

// termsOf lowercases and splits free text into scoring terms.
func termsOf(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'.,!?()[]`)
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}
