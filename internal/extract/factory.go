package extract

import (
	"log/slog"
	"os"
	"strings"

	"github.com/Itsme23476/filescout/internal/config"
)

// NewFromConfig builds the set of extractors the pipeline should run
// per file, based on configuration. The returned slice may be empty
// when extraction is disabled; the pipeline then indexes structural
// metadata only.
func NewFromConfig(cfg config.ExtractionConfig) ([]Extractor, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "none" {
		return []Extractor{NewTextProvider()}, nil
	}

	ocrModel := cfg.OCRModel
	if ocrModel == "" {
		ocrModel = cfg.VisionModel
	}

	var vision, ocr Extractor
	switch provider {
	case "", "ollama":
		vision = NewLocalVisionProvider(OllamaConfig{
			Host:    cfg.OllamaHost,
			Model:   cfg.VisionModel,
			Timeout: cfg.RequestTimeout,
		})
		ocr = NewLocalOCRProvider(OllamaConfig{
			Host:    cfg.OllamaHost,
			Model:   ocrModel,
			Timeout: cfg.RequestTimeout,
		})

		if cfg.CloudFallback {
			cloud, err := NewCloudFallbackProvider(os.Getenv("OPENAI_API_KEY"), cfg.OpenAIModel)
			if err != nil {
				slog.Warn("cloud_fallback_disabled", slog.String("error", err.Error()))
			} else {
				vision = NewFallbackExtractor(vision, cloud)
				ocr = NewFallbackExtractor(ocr, cloud)
			}
		}

	case "openai":
		cloud, err := NewCloudFallbackProvider(os.Getenv("OPENAI_API_KEY"), cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		// One cloud call yields caption, tags, and text together.
		return []Extractor{cloud, NewTextProvider()}, nil

	default:
		return []Extractor{NewTextProvider()}, nil
	}

	return []Extractor{vision, ocr, NewTextProvider()}, nil
}
