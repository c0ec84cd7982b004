package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultMerge(t *testing.T) {
	r := &Result{Caption: "a beach", Tags: []string{"beach"}}
	r.Merge(&Result{Caption: "ignored", OCRText: "some text", Tags: []string{"beach", "sunset"}})

	assert.Equal(t, "a beach", r.Caption)
	assert.Equal(t, "some text", r.OCRText)
	assert.Equal(t, []string{"beach", "sunset"}, r.Tags)

	r.Merge(nil)
	assert.Equal(t, "a beach", r.Caption)
}

func TestResultEmpty(t *testing.T) {
	assert.True(t, (&Result{}).Empty())
	assert.False(t, (&Result{Caption: "x"}).Empty())
	assert.False(t, (&Result{Tags: []string{"t"}}).Empty())
}

func TestFailureRetryable(t *testing.T) {
	tests := []struct {
		kind FailureKind
		want bool
	}{
		{KindUnavailable, true},
		{KindTimeout, true},
		{KindUnsupported, false},
		{KindMalformed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, NewFailure(tt.kind, nil).Retryable())
		})
	}
}

func TestAsFailure(t *testing.T) {
	f := NewFailure(KindTimeout, errors.New("slow"))
	assert.Equal(t, f, AsFailure(f))

	wrapped := AsFailure(errors.New("plain"))
	assert.Equal(t, KindMalformed, wrapped.Kind)

	assert.Nil(t, AsFailure(nil))
}

func fakeVisionServer(t *testing.T, response string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Images)
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: response})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLocalVisionProviderExtract(t *testing.T) {
	srv := fakeVisionServer(t, `{"caption": "A sandy beach at sunset", "tags": ["Beach", " sunset ", ""]}`)

	p := NewLocalVisionProvider(OllamaConfig{Host: srv.URL})
	defer func() { _ = p.Close() }()

	result, err := p.Extract(context.Background(), FileInput{
		Path:     "/photos/beach.jpg",
		Category: "image",
		Data:     []byte("fake-jpeg"),
	})
	require.NoError(t, err)
	assert.Equal(t, "A sandy beach at sunset", result.Caption)
	assert.Equal(t, []string{"beach", "sunset"}, result.Tags)
}

func TestLocalVisionProviderSalvagesPlainText(t *testing.T) {
	srv := fakeVisionServer(t, "A dog playing in the park")

	p := NewLocalVisionProvider(OllamaConfig{Host: srv.URL})
	defer func() { _ = p.Close() }()

	result, err := p.Extract(context.Background(), FileInput{
		Category: "image",
		Data:     []byte("x"),
	})
	require.NoError(t, err)
	assert.Equal(t, "A dog playing in the park", result.Caption)
	assert.Empty(t, result.Tags)
}

func TestLocalVisionProviderUnsupported(t *testing.T) {
	p := NewLocalVisionProvider(OllamaConfig{Host: "http://127.0.0.1:1"})
	defer func() { _ = p.Close() }()

	_, err := p.Extract(context.Background(), FileInput{Category: "pdf", Data: []byte("x")})
	f := AsFailure(err)
	assert.Equal(t, KindUnsupported, f.Kind)
}

func TestLocalVisionProviderUnavailable(t *testing.T) {
	p := NewLocalVisionProvider(OllamaConfig{Host: "http://127.0.0.1:1"})
	defer func() { _ = p.Close() }()

	_, err := p.Extract(context.Background(), FileInput{Category: "image", Data: []byte("x")})
	require.Error(t, err)
	f := AsFailure(err)
	assert.Equal(t, KindUnavailable, f.Kind)
	assert.True(t, f.Retryable())
}

func TestLocalOCRProviderExtract(t *testing.T) {
	srv := fakeVisionServer(t, "  Invoice #42\nTotal: $100  ")

	p := NewLocalOCRProvider(OllamaConfig{Host: srv.URL})
	defer func() { _ = p.Close() }()

	result, err := p.Extract(context.Background(), FileInput{
		Category: "image",
		Data:     []byte("x"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Invoice #42\nTotal: $100", result.OCRText)
}

func TestTextProviderReadsContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("  meeting notes about budget  "), 0o644))

	p := NewTextProvider()
	result, err := p.Extract(context.Background(), FileInput{Path: path, Category: "text"})
	require.NoError(t, err)
	assert.Equal(t, "meeting notes about budget", result.OCRText)
}

func TestTextProviderRejectsBinary(t *testing.T) {
	p := NewTextProvider()
	_, err := p.Extract(context.Background(), FileInput{
		Category: "text",
		Data:     []byte{0xff, 0xfe, 0x00, 0x80},
	})
	f := AsFailure(err)
	assert.Equal(t, KindMalformed, f.Kind)
}

func TestTextProviderSupports(t *testing.T) {
	p := NewTextProvider()
	assert.True(t, p.Supports("text"))
	assert.True(t, p.Supports("code"))
	assert.False(t, p.Supports("image"))
}

type stubExtractor struct {
	name   string
	result *Result
	err    error
	calls  int
}

func (s *stubExtractor) Extract(_ context.Context, _ FileInput) (*Result, error) {
	s.calls++
	return s.result, s.err
}
func (s *stubExtractor) Name() string         { return s.name }
func (s *stubExtractor) Supports(string) bool { return true }
func (s *stubExtractor) Close() error         { return nil }

func TestFallbackUsedOnUnavailable(t *testing.T) {
	primary := &stubExtractor{name: "primary", err: NewFailure(KindUnavailable, errors.New("down"))}
	fallback := &stubExtractor{name: "fallback", result: &Result{Caption: "from cloud"}}

	e := NewFallbackExtractor(primary, fallback)
	result, err := e.Extract(context.Background(), FileInput{Category: "image"})
	require.NoError(t, err)
	assert.Equal(t, "from cloud", result.Caption)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestFallbackSkippedOnMalformed(t *testing.T) {
	primary := &stubExtractor{name: "primary", err: NewFailure(KindMalformed, errors.New("bad file"))}
	fallback := &stubExtractor{name: "fallback", result: &Result{}}

	e := NewFallbackExtractor(primary, fallback)
	_, err := e.Extract(context.Background(), FileInput{Category: "image"})
	require.Error(t, err)
	assert.Equal(t, 0, fallback.calls)
}

func TestFallbackNotNeededOnSuccess(t *testing.T) {
	primary := &stubExtractor{name: "primary", result: &Result{Caption: "local"}}
	fallback := &stubExtractor{name: "fallback"}

	e := NewFallbackExtractor(primary, fallback)
	result, err := e.Extract(context.Background(), FileInput{Category: "image"})
	require.NoError(t, err)
	assert.Equal(t, "local", result.Caption)
	assert.Equal(t, 0, fallback.calls)
}
