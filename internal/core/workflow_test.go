package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedLLM replays canned completions in order and records every call.
type scriptedLLM struct {
	responses []string
	errs      []error
	systems   []string
	users     []string
}

func (f *scriptedLLM) Complete(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	i := len(f.systems)
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("unexpected extra completion")
}

func (f *scriptedLLM) calls() int { return len(f.systems) }

// scriptedSearcher returns a fixed set of similar emails, or an error.
type scriptedSearcher struct {
	examples []SimilarExample
	err      error
	calls    int
}

func (s *scriptedSearcher) SearchSimilar(ctx context.Context, subject, body string, k int) ([]SimilarExample, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.examples, nil
}

func newTestWorkflow(llm LLMClient, examples ExampleSearcher) *Workflow {
	return NewWorkflow(llm, examples, zap.NewNop(), WorkflowConfig{})
}

func TestClassifyHighConfidenceStopsAfterOneCall(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"category": "spam", "confidence": 0.95, "reasoning": "Bulk promotional content", "keywords": ["free", "winner"]}`,
	}}
	w := newTestWorkflow(llm, nil)

	result := w.Classify(context.Background(), "e1", "You won!", "Claim your prize", "scam@example.com")

	assert.Equal(t, 1, llm.calls())
	assert.Equal(t, "e1", result.EmailID)
	assert.Equal(t, CategorySpam, result.Category)
	assert.Equal(t, 0.95, result.Confidence)
	assert.Equal(t, "Bulk promotional content", result.Reasoning)
	assert.Equal(t, []string{"free", "winner"}, result.Keywords)
	assert.Equal(t, StageClassified, result.Stage)
}

func TestClassifyConfidenceExactlyAtThresholdStops(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"category": "neutral", "confidence": 0.5, "reasoning": "Routine mail", "keywords": []}`,
	}}
	w := newTestWorkflow(llm, nil)

	result := w.Classify(context.Background(), "e2", "Weekly digest", "Hello", "news@example.com")

	assert.Equal(t, 1, llm.calls(), "confidence equal to the threshold must not trigger reanalysis")
	assert.Equal(t, StageClassified, result.Stage)
	assert.Equal(t, 0.5, result.Confidence)
}

func TestClassifyLowConfidenceTriggersReanalysis(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"category": "neutral", "confidence": 0.4, "reasoning": "Unclear intent", "keywords": ["meeting"]}`,
		`{"category": "important", "confidence": 0.85, "reasoning": "Deadline mentioned by known sender", "keywords": ["deadline", "contract"]}`,
	}}
	w := newTestWorkflow(llm, nil)

	result := w.Classify(context.Background(), "e3", "Re: contract", "Please review before Friday", "legal@corp.example")

	require.Equal(t, 2, llm.calls())
	assert.Equal(t, CategoryImportant, result.Category)
	assert.Equal(t, 0.85, result.Confidence)
	assert.Equal(t, StageReanalyzed, result.Stage)

	assert.Contains(t, llm.systems[1], "SECOND analysis")
	assert.Contains(t, llm.users[1], "Previous classification: neutral (confidence: 0.40)")
}

func TestClassifyNeverMakesAThirdCall(t *testing.T) {
	// Both passes come back uncertain; the retry cap must stop the loop.
	llm := &scriptedLLM{responses: []string{
		`{"category": "neutral", "confidence": 0.3, "reasoning": "Unsure", "keywords": []}`,
		`{"category": "neutral", "confidence": 0.3, "reasoning": "Still unsure", "keywords": []}`,
	}}
	w := newTestWorkflow(llm, nil)

	result := w.Classify(context.Background(), "e4", "hm", "??", "a@b.c")

	assert.Equal(t, 2, llm.calls())
	assert.Equal(t, StageReanalyzed, result.Stage)
}

func TestClassifyMalformedResponseFallsBackAndReanalyzes(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		"I think this email is probably spam.",
		`{"category": "spam", "confidence": 0.9, "reasoning": "Phishing link detected", "keywords": ["verify", "account"]}`,
	}}
	w := newTestWorkflow(llm, nil)

	result := w.Classify(context.Background(), "e5", "Verify your account", "Click here", "phish@example.com")

	// The fallback confidence sits below the threshold, so the parse
	// failure gets the one retry like any other uncertain verdict.
	require.Equal(t, 2, llm.calls())
	assert.Equal(t, CategorySpam, result.Category)
	assert.Equal(t, StageReanalyzed, result.Stage)
}

func TestClassifyMalformedResponseThenFailedReanalysis(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		"not json at all",
		"still not json",
	}}
	w := newTestWorkflow(llm, nil)

	result := w.Classify(context.Background(), "e6", "s", "b", "x@y.z")

	assert.Equal(t, 2, llm.calls())
	assert.Equal(t, CategoryNeutral, result.Category)
	assert.Equal(t, 0.3, result.Confidence)
	assert.Equal(t, "Unable to parse LLM response", result.Reasoning)
	assert.Equal(t, []string{}, result.Keywords)
	assert.Equal(t, StageReanalysisFailed, result.Stage)
}

func TestClassifyProviderError(t *testing.T) {
	llm := &scriptedLLM{errs: []error{
		errors.New("rate limited"),
		errors.New("rate limited"),
	}}
	w := newTestWorkflow(llm, nil)

	result := w.Classify(context.Background(), "e7", "s", "b", "x@y.z")

	assert.Equal(t, CategoryNeutral, result.Category)
	assert.Equal(t, 0.3, result.Confidence)
	assert.Equal(t, "Error during classification: rate limited", result.Reasoning)
	assert.Equal(t, StageReanalysisFailed, result.Stage)
}

func TestClassifyInvalidVerdictShapeIsNotAParseError(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`["spam", 0.9]`,
		`{"category": "spam", "confidence": 0.9, "reasoning": "ok", "keywords": []}`,
	}}
	w := newTestWorkflow(llm, nil)

	result := w.Classify(context.Background(), "e8", "s", "b", "x@y.z")

	assert.Equal(t, StageReanalyzed, result.Stage)
	assert.Equal(t, CategorySpam, result.Category)
}

func TestClassifyFailedReanalysisPreservesPriorVerdict(t *testing.T) {
	llm := &scriptedLLM{
		responses: []string{
			`{"category": "important", "confidence": 0.45, "reasoning": "Possibly urgent", "keywords": ["asap"]}`,
		},
		errs: []error{nil, errors.New("connection reset")},
	}
	w := newTestWorkflow(llm, nil)

	result := w.Classify(context.Background(), "e9", "ASAP", "need this now", "boss@corp.example")

	assert.Equal(t, 2, llm.calls())
	assert.Equal(t, CategoryImportant, result.Category)
	assert.Equal(t, 0.45, result.Confidence)
	assert.Equal(t, "Possibly urgent", result.Reasoning)
	assert.Equal(t, []string{"asap"}, result.Keywords)
	assert.Equal(t, StageReanalysisFailed, result.Stage)
}

func TestClassifyFencedResponseParses(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		"```json\n{\"category\": \"neutral\", \"confidence\": 0.8, \"reasoning\": \"Newsletter\", \"keywords\": [\"digest\"]}\n```",
	}}
	w := newTestWorkflow(llm, nil)

	result := w.Classify(context.Background(), "e10", "Digest", "news", "list@example.com")

	assert.Equal(t, StageClassified, result.Stage)
	assert.Equal(t, CategoryNeutral, result.Category)
}

func TestClassifyBodyTruncatedInFirstPassOnly(t *testing.T) {
	body := strings.Repeat("a", 3000)
	llm := &scriptedLLM{responses: []string{
		`{"category": "neutral", "confidence": 0.2, "reasoning": "Unclear", "keywords": []}`,
		`{"category": "neutral", "confidence": 0.9, "reasoning": "Fine", "keywords": []}`,
	}}
	w := newTestWorkflow(llm, nil)

	w.Classify(context.Background(), "e11", "long", body, "x@y.z")

	require.Equal(t, 2, llm.calls())
	assert.NotContains(t, llm.users[0], body, "first pass must cap the body")
	assert.Contains(t, llm.users[0], strings.Repeat("a", DefaultMaxPromptBodyChars))
	assert.Contains(t, llm.users[1], body, "reanalysis sends the full body")
}

func TestClassifyReanalysisIncludesExamples(t *testing.T) {
	searcher := &scriptedSearcher{examples: []SimilarExample{
		{Subject: "Free pills", Sender: "spam@x.y", Body: "buy now", Category: "spam", Confidence: 0.9, SimilarityScore: 0.88},
	}}
	llm := &scriptedLLM{responses: []string{
		`{"category": "neutral", "confidence": 0.2, "reasoning": "Unsure", "keywords": []}`,
		`{"category": "spam", "confidence": 0.9, "reasoning": "Matches known spam", "keywords": ["pills"]}`,
	}}
	w := newTestWorkflow(llm, searcher)

	result := w.Classify(context.Background(), "e12", "Cheap pills", "buy", "spam@x.y")

	assert.Equal(t, 1, searcher.calls)
	assert.Contains(t, llm.users[1], "Here are similar emails and their correct classifications:")
	assert.Contains(t, llm.users[1], "Example 1:")
	assert.Equal(t, StageReanalyzed, result.Stage)
}

func TestClassifySearcherFailureDegradesToNoExamples(t *testing.T) {
	searcher := &scriptedSearcher{err: errors.New("search service down")}
	llm := &scriptedLLM{responses: []string{
		`{"category": "neutral", "confidence": 0.2, "reasoning": "Unsure", "keywords": []}`,
		`{"category": "neutral", "confidence": 0.8, "reasoning": "Plain mail", "keywords": []}`,
	}}
	w := newTestWorkflow(llm, searcher)

	result := w.Classify(context.Background(), "e13", "s", "b", "x@y.z")

	assert.Equal(t, StageReanalyzed, result.Stage)
	assert.NotContains(t, llm.users[1], "Here are similar emails")
}

func TestClassifyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &scriptedLLM{}
	w := newTestWorkflow(llm, nil)

	result := w.Classify(ctx, "e14", "s", "b", "x@y.z")

	// Cancellation surfaces like any provider failure: a structurally
	// valid result with a terminal error stage.
	assert.Equal(t, CategoryNeutral, result.Category)
	assert.Equal(t, 0.3, result.Confidence)
	assert.Equal(t, StageReanalysisFailed, result.Stage)
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name      string
		state     ClassificationState
		threshold float64
		want      Decision
	}{
		{"below threshold reanalyzes", ClassificationState{Confidence: 0.49}, 0.5, DecisionReanalyze},
		{"at threshold stops", ClassificationState{Confidence: 0.5}, 0.5, DecisionStop},
		{"above threshold stops", ClassificationState{Confidence: 0.9}, 0.5, DecisionStop},
		{"retry cap beats low confidence", ClassificationState{Confidence: 0.1, RetryCount: 1}, 0.5, DecisionStop},
		{"retry cap beats zero confidence", ClassificationState{Confidence: 0.0, RetryCount: 2}, 0.5, DecisionStop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.state, tt.threshold))
		})
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"valid", `{"category": "spam", "confidence": 0.9, "reasoning": "r", "keywords": ["k"]}`, nil},
		{"quoted confidence", `{"category": "spam", "confidence": "0.9", "reasoning": "r", "keywords": []}`, nil},
		{"null keywords", `{"category": "spam", "confidence": 0.9, "reasoning": "r", "keywords": null}`, nil},
		{"malformed", `{"category": "spam",`, errMalformedResponse},
		{"empty", ``, errMalformedResponse},
		{"not an object", `[1, 2]`, errInvalidVerdict},
		{"missing category", `{"confidence": 0.9, "reasoning": "r", "keywords": []}`, errInvalidVerdict},
		{"missing keywords", `{"category": "spam", "confidence": 0.9, "reasoning": "r"}`, errInvalidVerdict},
		{"unknown category", `{"category": "ham", "confidence": 0.9, "reasoning": "r", "keywords": []}`, errInvalidVerdict},
		{"confidence above one", `{"category": "spam", "confidence": 1.5, "reasoning": "r", "keywords": []}`, errInvalidVerdict},
		{"negative confidence", `{"category": "spam", "confidence": -0.1, "reasoning": "r", "keywords": []}`, errInvalidVerdict},
		{"non-numeric confidence", `{"category": "spam", "confidence": "high", "reasoning": "r", "keywords": []}`, errInvalidVerdict},
		{"null confidence", `{"category": "spam", "confidence": null, "reasoning": "r", "keywords": []}`, errInvalidVerdict},
		{"boolean confidence", `{"category": "spam", "confidence": true, "reasoning": "r", "keywords": []}`, errInvalidVerdict},
		{"numeric reasoning", `{"category": "spam", "confidence": 0.9, "reasoning": 7, "keywords": []}`, errInvalidVerdict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseVerdict(tt.content)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.NotNil(t, v.Keywords)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseVerdictBoundaryConfidence(t *testing.T) {
	for _, raw := range []string{"0", "1", "0.0", "1.0"} {
		v, err := parseVerdict(`{"category": "neutral", "confidence": ` + raw + `, "reasoning": "r", "keywords": []}`)
		require.NoError(t, err, "confidence %s", raw)
		assert.True(t, v.Confidence >= 0 && v.Confidence <= 1)
	}
}
