package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedDeterministic(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "sunset over the beach")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "sunset over the beach")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
}

func TestStaticEmbedNormalized(t *testing.T) {
	e := NewStaticEmbedder()

	vec, err := e.Embed(context.Background(), "quarterly financial report")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 0.001)
}

func TestStaticEmbedEmptyText(t *testing.T) {
	e := NewStaticEmbedder()

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, vec, StaticDimensions)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticSimilarTextsCloser(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	beach1, err := e.Embed(ctx, "sandy beach with palm trees at sunset")
	require.NoError(t, err)
	beach2, err := e.Embed(ctx, "sunset on a sandy beach")
	require.NoError(t, err)
	invoice, err := e.Embed(ctx, "invoice 2024 payment due accounting")
	require.NoError(t, err)

	simBeach := dot(beach1, beach2)
	simInvoice := dot(beach1, invoice)
	assert.Greater(t, simBeach, simInvoice)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestTokenizeSplitsIdentifiers(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"beachSunset", []string{"beach", "sunset"}},
		{"tax_return_2024", []string{"tax", "return", "2024"}},
		{"IMGBeach", []string{"img", "beach"}},
		{"report.pdf", []string{"report", "pdf"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.input))
		})
	}
}

func TestFilterStopWords(t *testing.T) {
	got := filterStopWords([]string{"the", "beach", "at", "sunset"})
	assert.Equal(t, []string{"beach", "sunset"}, got)
}

func TestExtractNgrams(t *testing.T) {
	assert.Equal(t, []string{"bea", "eac", "ach"}, extractNgrams("beach", 3))
	assert.Empty(t, extractNgrams("ab", 3))
}

func TestStaticEmbedBatch(t *testing.T) {
	e := NewStaticEmbedder()

	results, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, vec := range results {
		assert.Len(t, vec, StaticDimensions)
	}

	empty, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStaticEmbedderClosed(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	assert.False(t, e.Available(context.Background()))
	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestStaticEmbedderMetadata(t *testing.T) {
	e := NewStaticEmbedder()
	assert.Equal(t, StaticDimensions, e.Dimensions())
	assert.Equal(t, "static", e.ModelName())
	assert.True(t, e.Available(context.Background()))
}
