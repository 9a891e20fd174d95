package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures an Anthropic adapter.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Limits    RateLimits
}

// AnthropicAdapter calls Claude models through anthropic-sdk-go,
// grounded on internal/agent/providers/anthropic.go's client setup, but
// collapsed to a single non-streaming call since batch orchestration has
// no use for token-by-token delivery.
type AnthropicAdapter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limits    RateLimits
}

// NewAnthropicAdapter builds an adapter bound to one model.
func NewAnthropicAdapter(cfg AnthropicConfig) *AnthropicAdapter {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicAdapter{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		maxTokens: int64(maxTokens),
		limits:    cfg.Limits,
	}
}

func (a *AnthropicAdapter) ModelName() string      { return a.model }
func (a *AnthropicAdapter) RateLimits() RateLimits { return a.limits }

// Call sends one user/system prompt pair and returns the raw Message
// response marshaled to JSON, so Parse can extract the answer text
// independent of how Call obtained it.
func (a *AnthropicAdapter) Call(ctx context.Context, userPrompt, systemPrompt, parameters string) (json.RawMessage, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, Classify(a.model, err)
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("llm: marshaling anthropic response: %w", err)
	}
	return raw, nil
}

// Parse extracts the concatenated text content blocks from a raw
// anthropic.Message.
func (a *AnthropicAdapter) Parse(raw json.RawMessage) (string, error) {
	var msg anthropic.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", fmt.Errorf("llm: parsing anthropic response: %w", err)
	}
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("llm: anthropic response has no text content")
	}
	return text, nil
}
