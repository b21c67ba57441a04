package anthropic

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/config"
	"github.com/mikey/llm-email-classifier/internal/core"
)

// Factory creates Anthropic completion clients from configuration
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new factory for AnthropicClient instances
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateLLMClient creates a new AnthropicClient
func (f *Factory) CreateLLMClient() (core.LLMClient, error) {
	anthropicCfg := f.cfg.GetAnthropic()
	if anthropicCfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(anthropicCfg.APIKey))

	return NewAnthropicClient(
		client,
		anthropicCfg.ModelName,
		anthropicCfg.MaxTokens,
		anthropicCfg.Temperature,
		f.logger,
	), nil
}
