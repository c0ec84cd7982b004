package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultVisionModel is the default local vision model.
	DefaultVisionModel = "llava:7b"

	visionPrompt = `Describe this image in one concise sentence, then list up to five short lowercase tags.
Respond with JSON only: {"caption": "...", "tags": ["...", "..."]}`

	ocrPrompt = `Transcribe all readable text in this image exactly as written.
Respond with the text only. If there is no text, respond with an empty string.`
)

// OllamaConfig configures the local vision providers.
type OllamaConfig struct {
	Host    string
	Model   string
	Timeout time.Duration
}

func (c *OllamaConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultOllamaHost
	}
	if c.Model == "" {
		c.Model = DefaultVisionModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

type ollamaGenerateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
	Format string   `json:"format,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// ollamaClient is the shared HTTP plumbing for the vision providers.
type ollamaClient struct {
	client *http.Client
	config OllamaConfig
}

func newOllamaClient(cfg OllamaConfig) *ollamaClient {
	cfg.applyDefaults()
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     10 * time.Second,
	}
	return &ollamaClient{
		client: &http.Client{Transport: transport},
		config: cfg,
	}
}

// generate performs one /api/generate call with an attached image.
func (c *ollamaClient) generate(ctx context.Context, prompt string, image []byte, jsonFormat bool) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req := ollamaGenerateRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
		Stream: false,
	}
	if jsonFormat {
		req.Format = "json"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", NewFailure(KindMalformed, err)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", NewFailure(KindUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", NewFailure(KindTimeout, err)
		}
		return "", NewFailure(KindUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		msg := fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
		if resp.StatusCode == http.StatusBadRequest {
			return "", NewFailure(KindMalformed, msg)
		}
		return "", NewFailure(KindUnavailable, msg)
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", NewFailure(KindMalformed, err)
	}
	return result.Response, nil
}

func (c *ollamaClient) close() {
	if t, ok := c.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// LocalVisionProvider produces captions and tags for images via a
// local Ollama vision model.
type LocalVisionProvider struct {
	client *ollamaClient
}

// NewLocalVisionProvider creates the local caption/tag provider.
func NewLocalVisionProvider(cfg OllamaConfig) *LocalVisionProvider {
	return &LocalVisionProvider{client: newOllamaClient(cfg)}
}

type visionPayload struct {
	Caption string   `json:"caption"`
	Tags    []string `json:"tags"`
}

// Extract captions and tags an image.
func (p *LocalVisionProvider) Extract(ctx context.Context, input FileInput) (*Result, error) {
	if !p.Supports(input.Category) {
		return nil, NewFailure(KindUnsupported, fmt.Errorf("category %q", input.Category))
	}
	if len(input.Data) == 0 {
		return nil, NewFailure(KindMalformed, fmt.Errorf("no image data for %s", input.Path))
	}

	raw, err := p.client.generate(ctx, visionPrompt, input.Data, true)
	if err != nil {
		return nil, err
	}

	var payload visionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		// Model ignored the JSON instruction; salvage the text as caption.
		caption := strings.TrimSpace(raw)
		if caption == "" {
			return nil, NewFailure(KindMalformed, fmt.Errorf("unparseable vision response"))
		}
		return &Result{Caption: caption}, nil
	}

	tags := make([]string, 0, len(payload.Tags))
	for _, t := range payload.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			tags = append(tags, t)
		}
	}

	return &Result{
		Caption: strings.TrimSpace(payload.Caption),
		Tags:    tags,
	}, nil
}

// Name identifies the provider.
func (p *LocalVisionProvider) Name() string { return "ollama-vision" }

// Supports reports which categories this provider handles.
func (p *LocalVisionProvider) Supports(category string) bool {
	return category == "image"
}

// Close releases HTTP connections.
func (p *LocalVisionProvider) Close() error {
	p.client.close()
	return nil
}

// LocalOCRProvider extracts text from images via a local Ollama vision
// model with a transcription prompt.
type LocalOCRProvider struct {
	client *ollamaClient
}

// NewLocalOCRProvider creates the local OCR provider.
func NewLocalOCRProvider(cfg OllamaConfig) *LocalOCRProvider {
	return &LocalOCRProvider{client: newOllamaClient(cfg)}
}

// Extract transcribes text visible in an image.
func (p *LocalOCRProvider) Extract(ctx context.Context, input FileInput) (*Result, error) {
	if !p.Supports(input.Category) {
		return nil, NewFailure(KindUnsupported, fmt.Errorf("category %q", input.Category))
	}
	if len(input.Data) == 0 {
		return nil, NewFailure(KindMalformed, fmt.Errorf("no image data for %s", input.Path))
	}

	raw, err := p.client.generate(ctx, ocrPrompt, input.Data, false)
	if err != nil {
		return nil, err
	}

	return &Result{OCRText: strings.TrimSpace(raw)}, nil
}

// Name identifies the provider.
func (p *LocalOCRProvider) Name() string { return "ollama-ocr" }

// Supports reports which categories this provider handles.
func (p *LocalOCRProvider) Supports(category string) bool {
	return category == "image"
}

// Close releases HTTP connections.
func (p *LocalOCRProvider) Close() error {
	p.client.close()
	return nil
}

// Verify interface implementations
var (
	_ Extractor = (*LocalVisionProvider)(nil)
	_ Extractor = (*LocalOCRProvider)(nil)
)
