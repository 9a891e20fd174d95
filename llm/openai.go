package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible adapter. BaseURL is
// optional; when set, it points the client at an OpenAI-compatible
// endpoint such as DeepInfra's, grounded on the teacher's
// OpenRouterProvider construction pattern (openai.DefaultConfig plus a
// BaseURL override).
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Limits      RateLimits
}

// OpenAIAdapter calls chat-completions models through sashabaranov/go-openai.
// Reused unchanged for DeepInfra, which exposes an OpenAI-compatible API.
type OpenAIAdapter struct {
	client      *openai.Client
	model       string
	temperature float32
	limits      RateLimits
}

// NewOpenAIAdapter builds an adapter bound to one model.
func NewOpenAIAdapter(cfg OpenAIConfig) *OpenAIAdapter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIAdapter{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		limits:      cfg.Limits,
	}
}

func (a *OpenAIAdapter) ModelName() string      { return a.model }
func (a *OpenAIAdapter) RateLimits() RateLimits { return a.limits }

// Call issues a single chat completion and returns the raw response,
// marshaled so Parse can extract the answer independent of transport.
func (a *OpenAIAdapter) Call(ctx context.Context, userPrompt, systemPrompt, parameters string) (json.RawMessage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: a.temperature,
	})
	if err != nil {
		return nil, Classify(a.model, err)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("llm: marshaling openai response: %w", err)
	}
	return raw, nil
}

// Parse extracts the first choice's message content from a raw
// ChatCompletionResponse.
func (a *OpenAIAdapter) Parse(raw json.RawMessage) (string, error) {
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("llm: parsing openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: openai response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
