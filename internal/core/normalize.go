package core

import (
	"strings"
)

// NormalizeResponse strips the incidental formatting LLMs add around
// structured output: surrounding whitespace and markdown code fences,
// with or without a language tag. Characters inside the remaining text
// are left untouched, and applying it twice yields the same result.
func NormalizeResponse(raw string) string {
	content := strings.TrimSpace(raw)

	if strings.HasPrefix(content, "```json") {
		content = content[len("```json"):]
	} else if strings.HasPrefix(content, "```") {
		content = content[len("```"):]
	}

	if strings.HasSuffix(content, "```") {
		content = content[:len(content)-len("```")]
	}

	return strings.TrimSpace(content)
}
