package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
)

// AnthropicClient is an implementation of the core.LLMClient interface
// using the Anthropic Messages API
type AnthropicClient struct {
	client      anthropic.Client
	modelName   string
	maxTokens   int64
	temperature float32
	logger      *zap.Logger
}

// NewAnthropicClient creates a new Anthropic completion client
func NewAnthropicClient(
	client anthropic.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	logger *zap.Logger,
) *AnthropicClient {
	return &AnthropicClient{
		client:      client,
		modelName:   modelName,
		maxTokens:   int64(maxTokens),
		temperature: temperature,
		logger:      logger,
	}
}

// Complete sends the system instruction and user message to the Messages
// API and returns the concatenated text blocks of the response
func (c *AnthropicClient) Complete(ctx context.Context, system, user string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.modelName),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(float64(c.temperature)),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create message with Anthropic: %w", err)
	}

	var text string
	for _, block := range message.Content {
		text += block.Text
	}
	if text == "" {
		return "", fmt.Errorf("empty response from Anthropic")
	}

	c.logger.Debug("Anthropic completion finished",
		zap.String("model", c.modelName),
		zap.String("message_id", message.ID))

	return text, nil
}

var _ core.LLMClient = (*AnthropicClient)(nil)
