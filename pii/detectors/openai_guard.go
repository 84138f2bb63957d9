package pii

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIGuard asks a chat completion model for a JSON object listing the PII it finds.
type OpenAIGuard struct {
	client *openai.Client
	model  string
}

// NewOpenAIGuard builds the client from api_key (falling back to OPENAI_API_KEY), model,
// base_url and organization. A missing key is a configuration error.
func NewOpenAIGuard(opts Options) (*OpenAIGuard, error) {
	apiKey := opts.String("api_key", os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api_key (or OPENAI_API_KEY)", ErrMissingOption)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := opts.String("base_url", ""); baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	cfg.OrgID = opts.String("organization", "")

	for key := range opts.extras("api_key", "model", "base_url", "organization") {
		slog.Warn("openai guard: ignoring unsupported option", "option", key)
	}

	return &OpenAIGuard{
		client: openai.NewClientWithConfig(cfg),
		model:  opts.String("model", defaultOpenAIModel),
	}, nil
}

func (o *OpenAIGuard) Detect(ctx context.Context, text string) (GuardResult, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openAISystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildOpenAIUserPrompt(text)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		// zero is dropped by omitempty
		Temperature: math.SmallestNonzeroFloat32,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return GuardResult{}, fmt.Errorf("openai chat completion: %w", err)
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	return ParseOpenAIContent(text, content, o.model), nil
}
