package ports

import (
	"context"

	"github.com/mikey/llm-email-classifier/internal/core"
)

// EmailFilter defines the interface for a mail-facing delivery surface
type EmailFilter interface {
	// ProcessEmail classifies an email and returns the result
	ProcessEmail(ctx context.Context, email *core.Email) (core.ClassificationResult, error)

	// Start starts the surface
	Start() error

	// Stop stops the surface
	Stop() error
}
