package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// maxTextBytes bounds how much file content lands in the searchable
// text field.
const maxTextBytes = 64 * 1024

// TextProvider reads plain text and code files directly. No model is
// involved; the content itself becomes the searchable text.
type TextProvider struct{}

// NewTextProvider creates the plain text extractor.
func NewTextProvider() *TextProvider {
	return &TextProvider{}
}

// Extract reads the file content into OCRText.
func (p *TextProvider) Extract(ctx context.Context, input FileInput) (*Result, error) {
	if !p.Supports(input.Category) {
		return nil, NewFailure(KindUnsupported, fmt.Errorf("category %q", input.Category))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := input.Data
	if data == nil {
		var err error
		data, err = os.ReadFile(input.Path)
		if err != nil {
			return nil, NewFailure(KindMalformed, err)
		}
	}

	if len(data) > maxTextBytes {
		data = data[:maxTextBytes]
	}
	if !utf8.Valid(data) {
		return nil, NewFailure(KindMalformed, fmt.Errorf("%s is not valid UTF-8", input.Path))
	}

	return &Result{OCRText: strings.TrimSpace(string(data))}, nil
}

// Name identifies the provider.
func (p *TextProvider) Name() string { return "text" }

// Supports reports which categories this provider handles.
func (p *TextProvider) Supports(category string) bool {
	return category == "text" || category == "code"
}

// Close releases resources.
func (p *TextProvider) Close() error { return nil }

// Verify interface implementation
var _ Extractor = (*TextProvider)(nil)
