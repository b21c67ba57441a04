package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/adapters/examples"
	"github.com/mikey/llm-email-classifier/internal/config"
	"github.com/mikey/llm-email-classifier/internal/core"
)

// WorkflowFactory assembles the classification workflow from its capabilities
type WorkflowFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewWorkflowFactory creates a new workflow factory
func NewWorkflowFactory(cfg *config.Config, logger *zap.Logger) *WorkflowFactory {
	return &WorkflowFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateWorkflow creates the classification workflow around the given
// completion client
func (f *WorkflowFactory) CreateWorkflow(llm core.LLMClient) (*core.Workflow, error) {
	classifierCfg := f.cfg.GetClassifier()

	searcher, err := f.createExampleSearcher()
	if err != nil {
		return nil, err
	}

	return core.NewWorkflow(llm, searcher, f.logger, core.WorkflowConfig{
		LowConfidenceThreshold: classifierCfg.LowConfidenceThreshold,
		MaxPromptBodyChars:     classifierCfg.MaxPromptBodyChars,
		ExampleCount:           f.cfg.GetExamples().TopK,
	}), nil
}

// createExampleSearcher creates the optional similarity-search client.
// Returns nil when example search is disabled.
func (f *WorkflowFactory) createExampleSearcher() (core.ExampleSearcher, error) {
	examplesCfg := f.cfg.GetExamples()
	if !examplesCfg.Enabled {
		return nil, nil
	}

	timeout, err := f.cfg.GetDuration("examples.timeout")
	if err != nil {
		return nil, fmt.Errorf("invalid examples timeout: %w", err)
	}

	return examples.NewHTTPClient(examplesCfg.BaseURL, timeout, f.logger), nil
}
