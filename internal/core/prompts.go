package core

import (
	"fmt"
	"strings"
)

// maxExampleBodyChars bounds each few-shot example body in the prompt.
const maxExampleBodyChars = 200

const classificationSystemPrompt = `You are an expert email classifier. Analyze emails and classify them into exactly one category:

- spam: Unsolicited emails, phishing attempts, scams, promotional bulk mail
- important: Urgent business matters, critical notifications, time-sensitive requests
- neutral: Regular correspondence, newsletters, non-urgent communication

You MUST respond with valid JSON only, no additional text or explanation:
{
    "category": "spam" | "important" | "neutral",
    "confidence": 0.0 to 1.0,
    "reasoning": "Brief explanation (1-2 sentences)",
    "keywords": ["key", "terms", "that", "influenced", "decision"]
}`

const reanalysisSystemPrompt = `You are an expert email classifier performing a SECOND analysis.

The first classification was uncertain. Please carefully reconsider:

Categories:
- spam: Unsolicited, promotional, or malicious emails
- important: Time-sensitive business matters requiring action
- neutral: Regular correspondence

Provide a more confident assessment. Consider:
1. Sender reputation indicators
2. Urgency keywords
3. Call-to-action presence
4. Professional vs promotional language

You MUST respond with valid JSON only:
{
    "category": "spam" | "important" | "neutral",
    "confidence": 0.0 to 1.0,
    "reasoning": "Detailed explanation referencing specific indicators",
    "keywords": ["specific", "indicators", "found"]
}`

// classificationUserPrompt builds the first-pass user message. The body is
// capped at maxBodyChars characters to bound prompt size.
func classificationUserPrompt(subject, sender, body string, maxBodyChars int) string {
	return fmt.Sprintf(`Classify this email:

Subject: %s
From: %s
Body: %s`, subject, sender, truncateChars(body, maxBodyChars))
}

// reanalysisUserPrompt builds the second-pass user message. It carries the
// full untruncated body plus the prior verdict as context, and optionally a
// few-shot block of similar labeled emails.
func reanalysisUserPrompt(state ClassificationState, examples string) string {
	prompt := fmt.Sprintf(`Re-analyze this email with more scrutiny:

Subject: %s
From: %s
Body: %s

Previous classification: %s (confidence: %.2f)
Previous reasoning: %s`,
		state.Subject, state.Sender, state.Body,
		state.Category, state.Confidence, state.Reasoning)

	if examples != "" {
		prompt += "\n\n" + examples
	}
	return prompt
}

// FormatExamples renders similarity-search results as a few-shot prompt
// block: a header line followed by one numbered block per example. Empty
// input yields an empty string. Bodies are cut at 200 characters with a
// truncation marker.
func FormatExamples(examples []SimilarExample) string {
	if len(examples) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Here are similar emails and their correct classifications:\n")

	for i, ex := range examples {
		body := ex.Body
		if len([]rune(body)) > maxExampleBodyChars {
			body = truncateChars(body, maxExampleBodyChars) + "..."
		}
		fmt.Fprintf(&b, `
Example %d:
Subject: %s
From: %s
Body: %s
Classification: %s (confidence: %.1f, similarity: %.2f)
`, i+1, ex.Subject, ex.Sender, body, ex.Category, ex.Confidence, ex.SimilarityScore)
	}

	return b.String()
}

// truncateChars cuts s to at most n characters (runes, not bytes, so a
// multi-byte character is never split).
func truncateChars(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
