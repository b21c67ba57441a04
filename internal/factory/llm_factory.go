package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/adapters/anthropic"
	"github.com/mikey/llm-email-classifier/internal/adapters/bedrock"
	"github.com/mikey/llm-email-classifier/internal/adapters/gemini"
	"github.com/mikey/llm-email-classifier/internal/adapters/openai"
	"github.com/mikey/llm-email-classifier/internal/config"
	"github.com/mikey/llm-email-classifier/internal/core"
)

// LLMFactory creates the completion client for the configured provider.
// Selection happens exactly once, at startup; the rest of the system only
// ever sees the core.LLMClient interface.
type LLMFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateLLMClient creates a new completion client based on the configuration
func (f *LLMFactory) CreateLLMClient() (core.LLMClient, error) {
	llmConfig := f.cfg.GetLLM()

	switch llmConfig.Provider {
	case "gemini":
		return gemini.NewFactory(f.cfg, f.logger).CreateLLMClient()
	case "openai":
		return openai.NewFactory(f.cfg, f.logger).CreateLLMClient()
	case "anthropic":
		return anthropic.NewFactory(f.cfg, f.logger).CreateLLMClient()
	case "bedrock":
		return bedrock.NewFactory(f.cfg, f.logger).CreateLLMClient()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
}
