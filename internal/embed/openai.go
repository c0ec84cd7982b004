package embed

import (
	"context"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"

	scouterr "github.com/Itsme23476/filescout/internal/errors"
)

// DefaultOpenAIModel is the default cloud embedding model.
const DefaultOpenAIModel = "text-embedding-3-small"

// openAIModelDimensions maps known models to their dimensionality.
var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder generates embeddings using the OpenAI API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates a cloud embedder. apiKey must be non-empty.
func NewOpenAIEmbedder(apiKey, model string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, scouterr.New(scouterr.ErrCodeConfigInvalid, "OPENAI_API_KEY is not set", nil).
			WithSuggestion("export OPENAI_API_KEY or switch embeddings.provider to ollama")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	dims, ok := openAIModelDimensions[model]
	if !ok {
		dims = 1536
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  model,
		dims:   dims,
	}, nil
}

// Embed generates embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	results, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, scouterr.New(scouterr.ErrCodeInternal,
			fmt.Sprintf("expected 1 embedding, got %d", len(results)), nil)
	}
	return results[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, scouterr.Wrap(scouterr.ErrCodeProviderUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, scouterr.New(scouterr.ErrCodeInternal,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)), nil)
	}

	results := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, scouterr.New(scouterr.ErrCodeInternal,
				fmt.Sprintf("embedding index %d out of range", d.Index), nil)
		}
		results[d.Index] = normalizeVector(d.Embedding)
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Available reports whether the embedder can serve requests.
// The API is assumed reachable; failures surface per call.
func (e *OpenAIEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
