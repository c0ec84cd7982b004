package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIVisionModel is the default cloud vision model.
const DefaultOpenAIVisionModel = "gpt-4o-mini"

const cloudVisionPrompt = `Describe this image in one concise sentence, list up to five short lowercase tags, and transcribe any readable text.
Respond with JSON only: {"caption": "...", "tags": ["..."], "text": "..."}`

// CloudFallbackProvider analyzes images with the OpenAI vision API.
// One call produces caption, tags, and OCR text together, so it can
// stand in for both local providers when they are unreachable.
type CloudFallbackProvider struct {
	client *openai.Client
	model  string
}

// NewCloudFallbackProvider creates the cloud provider. apiKey must be
// non-empty.
func NewCloudFallbackProvider(apiKey, model string) (*CloudFallbackProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if model == "" {
		model = DefaultOpenAIVisionModel
	}
	return &CloudFallbackProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

type cloudVisionPayload struct {
	Caption string   `json:"caption"`
	Tags    []string `json:"tags"`
	Text    string   `json:"text"`
}

// Extract analyzes an image in one round trip.
func (p *CloudFallbackProvider) Extract(ctx context.Context, input FileInput) (*Result, error) {
	if !p.Supports(input.Category) {
		return nil, NewFailure(KindUnsupported, fmt.Errorf("category %q", input.Category))
	}
	if len(input.Data) == 0 {
		return nil, NewFailure(KindMalformed, fmt.Errorf("no image data for %s", input.Path))
	}

	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(input.Data)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: cloudVisionPrompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
					},
				},
			},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewFailure(KindTimeout, err)
		}
		return nil, NewFailure(KindUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewFailure(KindMalformed, fmt.Errorf("empty completion"))
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var payload cloudVisionPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		if raw == "" {
			return nil, NewFailure(KindMalformed, fmt.Errorf("unparseable vision response"))
		}
		return &Result{Caption: raw}, nil
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
		OCRText: strings.TrimSpace(payload.Text),
	}, nil
}

// Name identifies the provider.
func (p *CloudFallbackProvider) Name() string { return "openai-vision" }

// Supports reports which categories this provider handles.
func (p *CloudFallbackProvider) Supports(category string) bool {
	return category == "image"
}

// Close releases resources.
func (p *CloudFallbackProvider) Close() error { return nil }

// Verify interface implementation
var _ Extractor = (*CloudFallbackProvider)(nil)
