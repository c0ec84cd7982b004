package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Itsme23476/filescout/internal/config"
)

// NewFromConfig constructs the configured embedder.
// Providers: "ollama" (default), "openai", "static".
func NewFromConfig(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		e, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  DefaultBatchSize,
			Timeout:    60 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("embedder_ready",
			slog.String("provider", "ollama"),
			slog.String("model", e.ModelName()),
			slog.Int("dimensions", e.Dimensions()),
		)
		return e, nil

	case "openai":
		model := cfg.Model
		// The config default targets Ollama; swap to the cloud default
		// when the provider is OpenAI and no explicit model was chosen.
		if model == "" || model == DefaultOllamaModel {
			model = DefaultOpenAIModel
		}
		e, err := NewOpenAIEmbedder(os.Getenv("OPENAI_API_KEY"), model)
		if err != nil {
			return nil, err
		}
		slog.Info("embedder_ready",
			slog.String("provider", "openai"),
			slog.String("model", e.ModelName()),
			slog.Int("dimensions", e.Dimensions()),
		)
		return e, nil

	case "static":
		slog.Info("embedder_ready",
			slog.String("provider", "static"),
			slog.Int("dimensions", StaticDimensions),
		)
		return NewStaticEmbedder(), nil

	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.Provider)
	}
}
