package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

const (
	// DefaultLowConfidenceThreshold is the routing cutoff used when none is
	// configured: verdicts below it get one reanalysis pass.
	DefaultLowConfidenceThreshold = 0.50

	// DefaultMaxPromptBodyChars bounds the body sent in the first-pass prompt.
	DefaultMaxPromptBodyChars = 1000

	// DefaultExampleCount is how many similar emails reanalysis asks for.
	DefaultExampleCount = 3

	// fallbackConfidence is committed whenever a step cannot produce a
	// valid verdict.
	fallbackConfidence = 0.3
)

var (
	errMalformedResponse = errors.New("malformed LLM response")
	errInvalidVerdict    = errors.New("invalid LLM verdict")
)

// Decision is the routing outcome after the classification node.
type Decision int

const (
	DecisionStop Decision = iota
	DecisionReanalyze
)

// Route decides the next workflow step from the current state. It is pure:
// no side effects, deterministic given state and threshold. Retries are
// capped before confidence is even considered, and the comparison is a
// strict less-than, so confidence exactly at the threshold stops.
func Route(state ClassificationState, lowConfidenceThreshold float64) Decision {
	if state.RetryCount >= 1 {
		return DecisionStop
	}
	if state.Confidence < lowConfidenceThreshold {
		return DecisionReanalyze
	}
	return DecisionStop
}

// WorkflowConfig carries the tunables of the classification workflow.
// Zero values fall back to the package defaults.
type WorkflowConfig struct {
	LowConfidenceThreshold float64
	MaxPromptBodyChars     int
	ExampleCount           int
}

// Workflow is the classification state machine: classify, route on
// confidence, optionally reanalyze once, stop. It holds no per-request
// state, so one Workflow serves any number of concurrent requests.
type Workflow struct {
	llm          LLMClient
	examples     ExampleSearcher
	logger       *zap.Logger
	lowThreshold float64
	maxBodyChars int
	exampleCount int
}

// NewWorkflow creates a classification workflow. The example searcher is
// optional; pass nil to run reanalysis without few-shot context.
func NewWorkflow(llm LLMClient, examples ExampleSearcher, logger *zap.Logger, cfg WorkflowConfig) *Workflow {
	if cfg.LowConfidenceThreshold <= 0 {
		cfg.LowConfidenceThreshold = DefaultLowConfidenceThreshold
	}
	if cfg.MaxPromptBodyChars <= 0 {
		cfg.MaxPromptBodyChars = DefaultMaxPromptBodyChars
	}
	if cfg.ExampleCount <= 0 {
		cfg.ExampleCount = DefaultExampleCount
	}
	return &Workflow{
		llm:          llm,
		examples:     examples,
		logger:       logger,
		lowThreshold: cfg.LowConfidenceThreshold,
		maxBodyChars: cfg.MaxPromptBodyChars,
		exampleCount: cfg.ExampleCount,
	}
}

// step is a workflow position. The topology is fixed: classify may lead to
// reanalyze, reanalyze always leads to done.
type step int

const (
	stepClassify step = iota
	stepReanalyze
	stepDone
)

// Classify runs the full workflow for one email and returns the terminal
// result. It never returns an error: every failure mode is absorbed into
// the result's stage and default field values. Worst case it makes two LLM
// calls, common case one.
func (w *Workflow) Classify(ctx context.Context, emailID, subject, body, sender string) ClassificationResult {
	state := NewClassificationState(emailID, subject, body, sender)

	for current := stepClassify; current != stepDone; {
		switch current {
		case stepClassify:
			state = w.classifyNode(ctx, state)
			if Route(state, w.lowThreshold) == DecisionReanalyze {
				w.logger.Info("Low confidence, triggering reanalysis",
					zap.String("email_id", state.EmailID),
					zap.Float64("confidence", state.Confidence))
				current = stepReanalyze
			} else {
				current = stepDone
			}
		case stepReanalyze:
			state = w.reanalyzeNode(ctx, state)
			current = stepDone
		}
	}

	return state.Result()
}

// classifyNode runs the first classification pass. It returns a new state;
// the input state is never modified.
func (w *Workflow) classifyNode(ctx context.Context, state ClassificationState) ClassificationState {
	w.logger.Info("Classifying email", zap.String("email_id", state.EmailID))

	user := classificationUserPrompt(state.Subject, state.Sender, state.Body, w.maxBodyChars)

	raw, err := w.llm.Complete(ctx, classificationSystemPrompt, user)
	if err != nil {
		w.logger.Error("LLM completion failed",
			zap.String("email_id", state.EmailID),
			zap.Error(err))
		return failedState(state, StageError, "Error during classification: "+errSummary(err))
	}

	verdict, err := parseVerdict(NormalizeResponse(raw))
	if err != nil {
		if errors.Is(err, errMalformedResponse) {
			w.logger.Error("Failed to parse LLM response",
				zap.String("email_id", state.EmailID),
				zap.String("response", truncateChars(raw, 200)),
				zap.Error(err))
			return failedState(state, StageErrorJSONParse, "Unable to parse LLM response")
		}
		w.logger.Error("LLM verdict failed validation",
			zap.String("email_id", state.EmailID),
			zap.Error(err))
		return failedState(state, StageError, "Error during classification: "+errSummary(err))
	}

	state.Category = verdict.Category
	state.Confidence = verdict.Confidence
	state.Reasoning = verdict.Reasoning
	state.Keywords = verdict.Keywords
	state.Stage = StageClassified
	return state
}

// reanalyzeNode runs the single permitted retry pass with a stricter prompt
// and the full body. On any failure the prior verdict is preserved; a failed
// second opinion must not erase the first one. Either way the retry counter
// advances, which is what makes Route terminal afterwards.
func (w *Workflow) reanalyzeNode(ctx context.Context, state ClassificationState) ClassificationState {
	w.logger.Info("Reanalyzing email",
		zap.String("email_id", state.EmailID),
		zap.Int("retry_count", state.RetryCount))

	user := reanalysisUserPrompt(state, w.fetchExamples(ctx, state))

	raw, err := w.llm.Complete(ctx, reanalysisSystemPrompt, user)
	if err != nil {
		w.logger.Error("Reanalysis completion failed",
			zap.String("email_id", state.EmailID),
			zap.Error(err))
		state.RetryCount++
		state.Stage = StageReanalysisFailed
		return state
	}

	verdict, err := parseVerdict(NormalizeResponse(raw))
	if err != nil {
		w.logger.Error("Reanalysis verdict rejected, keeping prior classification",
			zap.String("email_id", state.EmailID),
			zap.Error(err))
		state.RetryCount++
		state.Stage = StageReanalysisFailed
		return state
	}

	state.Category = verdict.Category
	state.Confidence = verdict.Confidence
	state.Reasoning = verdict.Reasoning
	state.Keywords = verdict.Keywords
	state.RetryCount++
	state.Stage = StageReanalyzed
	return state
}

// fetchExamples asks the optional searcher for similar labeled emails and
// renders them as a few-shot block. Failures degrade to no examples.
func (w *Workflow) fetchExamples(ctx context.Context, state ClassificationState) string {
	if w.examples == nil {
		return ""
	}
	found, err := w.examples.SearchSimilar(ctx, state.Subject, state.Body, w.exampleCount)
	if err != nil {
		w.logger.Warn("Similarity search failed, reanalyzing without examples",
			zap.String("email_id", state.EmailID),
			zap.Error(err))
		return ""
	}
	return FormatExamples(found)
}

// failedState applies the defensive defaults for a failed classification
// pass: neutral category, fallback confidence, empty keywords.
func failedState(state ClassificationState, stage Stage, reasoning string) ClassificationState {
	state.Category = CategoryNeutral
	state.Confidence = fallbackConfidence
	state.Reasoning = reasoning
	state.Keywords = []string{}
	state.Stage = stage
	return state
}

// verdict is the structured payload the model is instructed to return.
type verdict struct {
	Category   Category
	Confidence float64
	Reasoning  string
	Keywords   []string
}

// parseVerdict parses and validates a normalized model response. Malformed
// JSON yields errMalformedResponse; well-formed JSON with the wrong shape,
// missing fields, an out-of-set category, or an out-of-range confidence
// yields errInvalidVerdict.
func parseVerdict(content string) (*verdict, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: response is not a JSON object", errInvalidVerdict)
		}
		return nil, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}

	for _, required := range []string{"category", "confidence", "reasoning", "keywords"} {
		if _, ok := fields[required]; !ok {
			return nil, fmt.Errorf("%w: missing field %q", errInvalidVerdict, required)
		}
	}

	var category string
	if err := json.Unmarshal(fields["category"], &category); err != nil {
		return nil, fmt.Errorf("%w: category is not a string", errInvalidVerdict)
	}
	if !Category(category).Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", errInvalidVerdict, category)
	}

	confidence, err := parseConfidence(fields["confidence"])
	if err != nil {
		return nil, err
	}

	var reasoning string
	if err := json.Unmarshal(fields["reasoning"], &reasoning); err != nil {
		return nil, fmt.Errorf("%w: reasoning is not a string", errInvalidVerdict)
	}

	var keywords []string
	if err := json.Unmarshal(fields["keywords"], &keywords); err != nil {
		return nil, fmt.Errorf("%w: keywords is not a string array", errInvalidVerdict)
	}
	if keywords == nil {
		keywords = []string{}
	}

	return &verdict{
		Category:   Category(category),
		Confidence: confidence,
		Reasoning:  reasoning,
		Keywords:   keywords,
	}, nil
}

// parseConfidence coerces the confidence field to a float64. Models
// occasionally quote the number, so numeric strings are accepted too.
// The value must land in [0, 1].
func parseConfidence(raw json.RawMessage) (float64, error) {
	// Unmarshalling null into a float64 is a silent no-op, which would
	// smuggle in a zero-value confidence.
	if string(raw) == "null" {
		return 0, fmt.Errorf("%w: confidence is null", errInvalidVerdict)
	}
	var confidence float64
	if err := json.Unmarshal(raw, &confidence); err != nil {
		var quoted string
		if err := json.Unmarshal(raw, &quoted); err != nil {
			return 0, fmt.Errorf("%w: confidence is not a number", errInvalidVerdict)
		}
		parsed, err := strconv.ParseFloat(quoted, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: confidence %q is not numeric", errInvalidVerdict, quoted)
		}
		confidence = parsed
	}
	if confidence < 0 || confidence > 1 {
		return 0, fmt.Errorf("%w: confidence %v out of range", errInvalidVerdict, confidence)
	}
	return confidence, nil
}

// errSummary renders an error for the reasoning field, bounded so a huge
// provider error cannot balloon the result.
func errSummary(err error) string {
	return truncateChars(err.Error(), 100)
}
