package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mapCache is an in-package VerdictCache fake backed by a map.
type mapCache struct {
	entries map[string]*CachedVerdict
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*CachedVerdict)}
}

func (c *mapCache) Get(ctx context.Context, sender string) (*CachedVerdict, error) {
	entry, ok := c.entries[sender]
	if !ok {
		return nil, errors.New("not found")
	}
	return entry, nil
}

func (c *mapCache) Set(ctx context.Context, verdict *CachedVerdict) error {
	c.sets++
	c.entries[verdict.Sender] = verdict
	return nil
}

func (c *mapCache) Delete(ctx context.Context, sender string) error {
	delete(c.entries, sender)
	return nil
}

func (c *mapCache) Cleanup(ctx context.Context) error { return nil }

type staticTrusted struct {
	domains map[string]bool
}

func (t *staticTrusted) IsTrusted(from string) bool { return t.domains[from] }

func newServiceForTest(llm LLMClient, cache VerdictCache, trusted TrustedDomains) *ClassifierService {
	logger := zap.NewNop()
	workflow := NewWorkflow(llm, nil, logger, WorkflowConfig{})
	return NewClassifierService(workflow, cache, logger, cache != nil, time.Hour, 0.75, trusted)
}

func TestClassifyEmailTrustedBypass(t *testing.T) {
	llm := &scriptedLLM{}
	trusted := &staticTrusted{domains: map[string]bool{"boss@corp.example": true}}
	svc := newServiceForTest(llm, nil, trusted)

	result := svc.ClassifyEmail(context.Background(), &Email{
		ID:      "t1",
		From:    "boss@corp.example",
		Subject: "anything",
		Body:    "anything",
	})

	assert.Equal(t, 0, llm.calls(), "trusted senders never reach the LLM")
	assert.Equal(t, CategoryNeutral, result.Category)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, "Sender domain is trusted", result.Reasoning)
	assert.Equal(t, StageClassified, result.Stage)
}

func TestClassifyEmailGeneratesIDWhenMissing(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"category": "neutral", "confidence": 0.9, "reasoning": "r", "keywords": []}`,
	}}
	svc := newServiceForTest(llm, nil, nil)

	result := svc.ClassifyEmail(context.Background(), &Email{From: "a@b.c", Subject: "s", Body: "b"})

	assert.NotEmpty(t, result.EmailID)
}

func TestClassifyEmailCacheHitSkipsWorkflow(t *testing.T) {
	cache := newMapCache()
	cache.entries["known@example.com"] = &CachedVerdict{
		Sender:     "known@example.com",
		Category:   CategorySpam,
		Confidence: 0.92,
	}
	llm := &scriptedLLM{}
	svc := newServiceForTest(llm, cache, nil)

	result := svc.ClassifyEmail(context.Background(), &Email{ID: "t2", From: "known@example.com"})

	assert.Equal(t, 0, llm.calls())
	assert.Equal(t, CategorySpam, result.Category)
	assert.Equal(t, 0.92, result.Confidence)
	assert.Equal(t, "Verdict from sender cache", result.Reasoning)
}

func TestClassifyEmailStoresSuccessfulVerdict(t *testing.T) {
	cache := newMapCache()
	llm := &scriptedLLM{responses: []string{
		`{"category": "spam", "confidence": 0.9, "reasoning": "r", "keywords": []}`,
	}}
	svc := newServiceForTest(llm, cache, nil)

	svc.ClassifyEmail(context.Background(), &Email{ID: "t3", From: "new@example.com"})

	require.Equal(t, 1, cache.sets)
	entry := cache.entries["new@example.com"]
	require.NotNil(t, entry)
	assert.Equal(t, CategorySpam, entry.Category)
	assert.False(t, entry.ExpiresAt.IsZero())
}

func TestClassifyEmailDoesNotCacheFailedVerdicts(t *testing.T) {
	cache := newMapCache()
	llm := &scriptedLLM{errs: []error{errors.New("down"), errors.New("down")}}
	svc := newServiceForTest(llm, cache, nil)

	result := svc.ClassifyEmail(context.Background(), &Email{ID: "t4", From: "flaky@example.com"})

	assert.Equal(t, StageReanalysisFailed, result.Stage)
	assert.Equal(t, 0, cache.sets, "error-stage verdicts must not be reused for the sender")
}
