package openai_classifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/user/offer-image-service/internal/entity"
)

const DefaultModel = "gpt-4o-mini"

const systemPrompt = `You classify product photos from a wholesale marketplace listing.
Reply with a single JSON object with these keys:
"category" (short product category in English),
"colors" (array of dominant color names),
"description" (one sentence),
"tags" (array of short keywords),
"confidence" (number between 0 and 1).`

// Options configures the classifier.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Classifier sends images to an OpenAI-compatible vision model.
// It implements repository.Classifier.
type Classifier struct {
	client *openai.Client
	model  string
}

// New returns a classifier, or an error when no API key is set.
func New(opts Options) (*Classifier, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai classifier: API key is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	return &Classifier{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (c *Classifier) Model() string {
	return c.model
}

// Classify asks the model to describe one image. Any transport, API or decoding
// failure is returned as an error.
func (c *Classifier) Classify(ctx context.Context, image []byte, contentType, instructions string) (*entity.Analysis, error) {
	if len(image) == 0 {
		return nil, errors.New("openai classifier: empty image")
	}

	prompt := "Classify this product image."
	if s := strings.TrimSpace(instructions); s != "" {
		prompt += " Additional instructions from the user: " + s
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(image))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("openai classifier: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai classifier: response has no choices")
	}
	return parseAnalysis(resp.Choices[0].Message.Content)
}

func parseAnalysis(content string) (*entity.Analysis, error) {
	var a entity.Analysis
	if err := json.Unmarshal([]byte(content), &a); err != nil {
		return nil, fmt.Errorf("openai classifier: decode analysis: %w", err)
	}
	a.Category = strings.TrimSpace(a.Category)
	if a.Category == "" {
		return nil, errors.New("openai classifier: analysis has no category")
	}
	if a.Colors == nil {
		a.Colors = []string{}
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	// Some models answer on a 0-100 scale.
	if a.Confidence > 1 {
		a.Confidence /= 100
	}
	a.Confidence = min(max(a.Confidence, 0), 1)
	a.Fallback = false
	a.Error = ""
	return &a, nil
}
