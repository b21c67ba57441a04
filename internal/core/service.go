package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClassifierService wraps the classification workflow for the mail-facing
// surfaces. It adds the concerns the workflow deliberately does not have:
// a trusted-domain bypass, an optional per-sender verdict cache, and
// decision logging.
type ClassifierService struct {
	workflow      *Workflow
	cache         VerdictCache
	logger        *zap.Logger
	cacheEnabled  bool
	cacheTTL      time.Duration
	highThreshold float64
	trusted       TrustedDomains
}

// TrustedDomains reports whether a sender address belongs to a domain that
// skips classification entirely.
type TrustedDomains interface {
	IsTrusted(from string) bool
}

// NewClassifierService creates a new classifier service.
func NewClassifierService(
	workflow *Workflow,
	cache VerdictCache,
	logger *zap.Logger,
	cacheEnabled bool,
	cacheTTL time.Duration,
	highThreshold float64,
	trusted TrustedDomains,
) *ClassifierService {
	return &ClassifierService{
		workflow:      workflow,
		cache:         cache,
		logger:        logger,
		cacheEnabled:  cacheEnabled,
		cacheTTL:      cacheTTL,
		highThreshold: highThreshold,
		trusted:       trusted,
	}
}

// ClassifyEmail classifies one email. Like the workflow it wraps, it always
// returns a structurally valid result; degraded outcomes are visible only
// through the result's stage.
func (s *ClassifierService) ClassifyEmail(ctx context.Context, email *Email) ClassificationResult {
	emailID := email.ID
	if emailID == "" {
		emailID = uuid.NewString()
	}

	if s.trusted != nil && s.trusted.IsTrusted(email.From) {
		s.logger.Info("Skipping classification for trusted domain",
			zap.String("sender", email.From),
			zap.String("action", "trusted_bypass"))
		return ClassificationResult{
			EmailID:    emailID,
			Category:   CategoryNeutral,
			Confidence: 1.0,
			Reasoning:  "Sender domain is trusted",
			Keywords:   []string{},
			Stage:      StageClassified,
		}
	}

	if s.cacheEnabled && s.cache != nil {
		if cached, err := s.cache.Get(ctx, email.From); err == nil && cached != nil {
			s.logger.Debug("Verdict cache hit", zap.String("sender", email.From))
			return ClassificationResult{
				EmailID:    emailID,
				Category:   cached.Category,
				Confidence: cached.Confidence,
				Reasoning:  "Verdict from sender cache",
				Keywords:   []string{},
				Stage:      StageClassified,
			}
		}
	}

	result := s.workflow.Classify(ctx, emailID, email.Subject, email.Body, email.From)

	if result.Confidence >= s.highThreshold {
		s.logger.Debug("High-confidence verdict",
			zap.String("email_id", result.EmailID),
			zap.String("category", string(result.Category)),
			zap.Float64("confidence", result.Confidence))
	}

	// Only verdicts that came out of a successful step are worth reusing
	// for the sender.
	if s.cacheEnabled && s.cache != nil && cacheable(result.Stage) {
		entry := &CachedVerdict{
			Sender:     email.From,
			Category:   result.Category,
			Confidence: result.Confidence,
			LastSeen:   time.Now(),
			ExpiresAt:  time.Now().Add(s.cacheTTL),
		}
		if err := s.cache.Set(ctx, entry); err != nil {
			s.logger.Error("Failed to update verdict cache", zap.Error(err))
		}
	}

	return result
}

func cacheable(stage Stage) bool {
	return stage == StageClassified || stage == StageReanalyzed
}
