package extract

import (
	"context"
	"log/slog"
)

// FallbackExtractor tries a primary provider and falls back to a
// secondary one when the primary is unreachable or times out. Content
// failures (malformed, unsupported) do not trigger fallback; a second
// provider cannot fix a broken file.
type FallbackExtractor struct {
	primary  Extractor
	fallback Extractor
}

// NewFallbackExtractor wraps primary with fallback.
func NewFallbackExtractor(primary, fallback Extractor) *FallbackExtractor {
	return &FallbackExtractor{primary: primary, fallback: fallback}
}

// Extract tries the primary, then the fallback on availability failures.
func (e *FallbackExtractor) Extract(ctx context.Context, input FileInput) (*Result, error) {
	result, err := e.primary.Extract(ctx, input)
	if err == nil {
		return result, nil
	}

	failure := AsFailure(err)
	if !failure.Retryable() || e.fallback == nil {
		return nil, err
	}

	slog.Warn("extractor_fallback",
		slog.String("primary", e.primary.Name()),
		slog.String("fallback", e.fallback.Name()),
		slog.String("path", input.Path),
		slog.String("reason", string(failure.Kind)),
	)
	return e.fallback.Extract(ctx, input)
}

// Name identifies the composite.
func (e *FallbackExtractor) Name() string {
	return e.primary.Name() + "+" + e.fallback.Name()
}

// Supports reports whether either provider handles the category.
func (e *FallbackExtractor) Supports(category string) bool {
	return e.primary.Supports(category) || e.fallback.Supports(category)
}

// Close closes both providers.
func (e *FallbackExtractor) Close() error {
	err := e.primary.Close()
	if e.fallback != nil {
		if ferr := e.fallback.Close(); err == nil {
			err = ferr
		}
	}
	return err
}

// Verify interface implementation
var _ Extractor = (*FallbackExtractor)(nil)
