package core

import (
	"context"
)

// LLMClient defines the text completion capability the workflow depends on.
// Implementations live in internal/adapters, one per provider.
type LLMClient interface {
	// Complete sends a system instruction and a user message to the model
	// and returns the raw response text.
	Complete(ctx context.Context, system, user string) (string, error)
}

// ExampleSearcher finds labeled emails similar to the one being classified.
// A nil searcher or a failed search means no few-shot context; it never
// affects the workflow outcome.
type ExampleSearcher interface {
	// SearchSimilar returns up to k examples ordered by similarity.
	SearchSimilar(ctx context.Context, subject, body string, k int) ([]SimilarExample, error)
}

// VerdictCache stores per-sender verdicts for the service wrapper. The
// workflow itself never consults it.
type VerdictCache interface {
	// Get retrieves a cached verdict for a sender
	Get(ctx context.Context, sender string) (*CachedVerdict, error)

	// Set stores a verdict
	Set(ctx context.Context, verdict *CachedVerdict) error

	// Delete removes a verdict
	Delete(ctx context.Context, sender string) error

	// Cleanup removes expired verdicts
	Cleanup(ctx context.Context) error
}
