// Package extract enriches files with AI-derived metadata: captions,
// tags, and extracted text. Providers are interchangeable behind the
// Extractor interface; failures carry a kind so callers can decide
// between retrying, falling back, and skipping.
package extract

import (
	"context"
	"fmt"
)

// FileInput is one file handed to an extractor. Data holds the raw
// bytes for image-based providers; text providers read from Path.
type FileInput struct {
	Path     string
	Category string // image, pdf, text, code, ...
	Size     int64
	Data     []byte // Raw content, may be nil for path-based extractors
}

// Result carries whatever subset of enrichment the provider produced.
// Empty fields mean "not produced", not failure.
type Result struct {
	Caption string
	Tags    []string
	OCRText string
}

// Merge folds other into r, keeping existing non-empty fields.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	if r.Caption == "" {
		r.Caption = other.Caption
	}
	if r.OCRText == "" {
		r.OCRText = other.OCRText
	}
	if len(other.Tags) > 0 {
		seen := make(map[string]bool, len(r.Tags))
		for _, t := range r.Tags {
			seen[t] = true
		}
		for _, t := range other.Tags {
			if !seen[t] {
				r.Tags = append(r.Tags, t)
				seen[t] = true
			}
		}
	}
}

// Empty reports whether the result carries no enrichment at all.
func (r *Result) Empty() bool {
	return r.Caption == "" && r.OCRText == "" && len(r.Tags) == 0
}

// FailureKind classifies extraction failures.
type FailureKind string

const (
	// KindUnavailable means the provider cannot be reached. Retryable,
	// and the trigger for cloud fallback.
	KindUnavailable FailureKind = "unavailable"
	// KindUnsupported means the provider does not handle this file type.
	KindUnsupported FailureKind = "unsupported"
	// KindTimeout means the provider did not answer in time. Retryable.
	KindTimeout FailureKind = "timeout"
	// KindMalformed means the file content could not be processed.
	KindMalformed FailureKind = "malformed"
)

// Failure is a typed extraction error.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("extraction %s: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("extraction %s", f.Kind)
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether retrying the same provider can help.
func (f *Failure) Retryable() bool {
	return f.Kind == KindUnavailable || f.Kind == KindTimeout
}

// NewFailure builds a Failure.
func NewFailure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// AsFailure extracts a *Failure from an error chain, or wraps unknown
// errors as malformed.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	if f, ok := err.(*Failure); ok {
		return f
	}
	return &Failure{Kind: KindMalformed, Err: err}
}

// Extractor produces enrichment for one file.
type Extractor interface {
	// Extract analyzes the file. On failure the error is (or wraps) a
	// *Failure carrying the failure kind.
	Extract(ctx context.Context, input FileInput) (*Result, error)

	// Name identifies the provider for logging.
	Name() string

	// Supports reports whether the provider handles this category.
	Supports(category string) bool

	// Close releases resources.
	Close() error
}
