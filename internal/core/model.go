package core

import (
	"time"
)

// Category is the classification verdict for an email.
type Category string

const (
	CategorySpam      Category = "spam"
	CategoryImportant Category = "important"
	CategoryNeutral   Category = "neutral"
)

// Valid reports whether the category is one of the three known literals.
func (c Category) Valid() bool {
	switch c {
	case CategorySpam, CategoryImportant, CategoryNeutral:
		return true
	}
	return false
}

// Stage records which processing step last updated the state and with
// what outcome.
type Stage string

const (
	StageInitialized      Stage = "initialized"
	StageClassified       Stage = "classified"
	StageErrorJSONParse   Stage = "error_json_parse"
	StageError            Stage = "error"
	StageReanalyzed       Stage = "reanalyzed"
	StageReanalysisFailed Stage = "reanalysis_failed"
)

// ClassificationState is the single value that flows through the
// classification workflow. Input fields are set once at creation; nodes
// return a new state rather than mutating the one they received.
type ClassificationState struct {
	EmailID string
	Subject string
	Sender  string
	Body    string

	Category   Category
	Confidence float64
	Reasoning  string
	Keywords   []string

	RetryCount int
	Stage      Stage
}

// NewClassificationState creates the initial state for one request.
func NewClassificationState(emailID, subject, body, sender string) ClassificationState {
	return ClassificationState{
		EmailID:  emailID,
		Subject:  subject,
		Sender:   sender,
		Body:     body,
		Keywords: []string{},
		Stage:    StageInitialized,
	}
}

// Result projects the terminal state onto the fields callers consume.
func (s ClassificationState) Result() ClassificationResult {
	return ClassificationResult{
		EmailID:    s.EmailID,
		Category:   s.Category,
		Confidence: s.Confidence,
		Reasoning:  s.Reasoning,
		Keywords:   s.Keywords,
		Stage:      s.Stage,
	}
}

// ClassificationResult is the terminal outcome of a classification request.
type ClassificationResult struct {
	EmailID    string   `json:"email_id"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Keywords   []string `json:"keywords"`
	Stage      Stage    `json:"processing_stage"`
}

// Email represents an inbound email message as seen by the mail surfaces.
type Email struct {
	ID      string
	From    string
	To      []string
	Subject string
	Body    string
	Headers map[string][]string
}

// SimilarExample is a labeled email returned by a similarity search,
// used as few-shot context during reanalysis.
type SimilarExample struct {
	EmailID         string  `json:"email_id"`
	Subject         string  `json:"subject"`
	Body            string  `json:"body"`
	Sender          string  `json:"sender"`
	Category        string  `json:"category"`
	Confidence      float64 `json:"confidence"`
	SimilarityScore float64 `json:"similarity_score"`
}

// CachedVerdict is a previously computed verdict for a sender, stored by
// the service wrapper outside the workflow.
type CachedVerdict struct {
	Sender     string
	Category   Category
	Confidence float64
	LastSeen   time.Time
	ExpiresAt  time.Time
}
