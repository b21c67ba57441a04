package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassificationUserPromptCapsBody(t *testing.T) {
	body := strings.Repeat("x", 1500)
	prompt := classificationUserPrompt("Subject line", "sender@example.com", body, 1000)

	assert.Contains(t, prompt, "Subject: Subject line")
	assert.Contains(t, prompt, "From: sender@example.com")
	assert.Contains(t, prompt, "Body: "+strings.Repeat("x", 1000))
	assert.NotContains(t, prompt, strings.Repeat("x", 1001))
}

func TestClassificationUserPromptShortBodyUntouched(t *testing.T) {
	prompt := classificationUserPrompt("Hi", "a@b.c", "short body", 1000)
	assert.Contains(t, prompt, "Body: short body")
}

func TestReanalysisUserPromptCarriesPriorVerdict(t *testing.T) {
	state := ClassificationState{
		Subject:    "Invoice overdue",
		Sender:     "billing@example.com",
		Body:       strings.Repeat("y", 5000),
		Category:   CategoryImportant,
		Confidence: 0.42,
		Reasoning:  "Payment language but unknown sender",
	}

	prompt := reanalysisUserPrompt(state, "")

	assert.Contains(t, prompt, "Previous classification: important (confidence: 0.42)")
	assert.Contains(t, prompt, "Previous reasoning: Payment language but unknown sender")
	assert.Contains(t, prompt, state.Body, "reanalysis must not truncate the body")
}

func TestReanalysisUserPromptAppendsExamples(t *testing.T) {
	state := ClassificationState{Subject: "s", Sender: "a@b.c", Body: "b"}
	block := "Here are similar emails and their correct classifications:\n\nExample 1:\n..."

	prompt := reanalysisUserPrompt(state, block)
	assert.True(t, strings.HasSuffix(prompt, block))

	without := reanalysisUserPrompt(state, "")
	assert.NotContains(t, without, "Here are similar emails")
}

func TestFormatExamplesEmpty(t *testing.T) {
	assert.Equal(t, "", FormatExamples(nil))
	assert.Equal(t, "", FormatExamples([]SimilarExample{}))
}

func TestFormatExamples(t *testing.T) {
	examples := []SimilarExample{
		{
			Subject:         "Limited offer",
			Sender:          "promo@shop.example",
			Body:            "Act now",
			Category:        "spam",
			Confidence:      0.9,
			SimilarityScore: 0.87,
		},
		{
			Subject:         "Board meeting",
			Sender:          "ceo@corp.example",
			Body:            "Agenda attached",
			Category:        "important",
			Confidence:      0.8,
			SimilarityScore: 0.65,
		},
	}

	out := FormatExamples(examples)

	require.True(t, strings.HasPrefix(out, "Here are similar emails and their correct classifications:\n"))
	assert.Contains(t, out, "Example 1:")
	assert.Contains(t, out, "Example 2:")
	assert.Contains(t, out, "Subject: Limited offer")
	assert.Contains(t, out, "From: promo@shop.example")
	assert.Contains(t, out, "Classification: spam (confidence: 0.9, similarity: 0.87)")
	assert.Contains(t, out, "Classification: important (confidence: 0.8, similarity: 0.65)")
}

func TestFormatExamplesTruncatesLongBody(t *testing.T) {
	long := strings.Repeat("z", 300)
	out := FormatExamples([]SimilarExample{{Subject: "s", Sender: "a@b.c", Body: long, Category: "neutral"}})

	assert.Contains(t, out, strings.Repeat("z", 200)+"...")
	assert.NotContains(t, out, strings.Repeat("z", 201))
}

func TestTruncateChars(t *testing.T) {
	assert.Equal(t, "abc", truncateChars("abc", 10))
	assert.Equal(t, "abc", truncateChars("abcdef", 3))
	assert.Equal(t, "abcdef", truncateChars("abcdef", 0), "non-positive limit disables the cut")

	// Multi-byte characters count as one and are never split.
	assert.Equal(t, "héllo", truncateChars("héllo wörld", 5))
}
