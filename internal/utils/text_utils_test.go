package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTruncateText(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	t.Run("short text untouched", func(t *testing.T) {
		assert.Equal(t, "hello", tp.TruncateText("hello", 100))
	})

	t.Run("zero limit disables truncation", func(t *testing.T) {
		assert.Equal(t, "hello", tp.TruncateText("hello", 0))
	})

	t.Run("long text gets marker", func(t *testing.T) {
		out := tp.TruncateText(strings.Repeat("a", 50), 10)
		assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 10)))
		assert.True(t, strings.HasSuffix(out, "[... Content truncated due to size limits ...]"))
	})

	t.Run("never splits a multi-byte character", func(t *testing.T) {
		// "é" is two bytes; cutting at 3 would land mid-rune.
		out := tp.TruncateText("aéé", 3)
		assert.True(t, utf8.ValidString(out))
		assert.True(t, strings.HasPrefix(out, "aé"))
	})
}

func TestSanitizeUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	t.Run("valid text untouched", func(t *testing.T) {
		assert.Equal(t, "héllo wörld", tp.SanitizeUTF8("héllo wörld"))
	})

	t.Run("invalid bytes dropped", func(t *testing.T) {
		out := tp.SanitizeUTF8("ab\xffcd")
		assert.True(t, utf8.ValidString(out))
		assert.Equal(t, "abcd", out)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "", tp.SanitizeUTF8(""))
	})
}

func TestProcessText(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	out := tp.ProcessText("ab\xffcd"+strings.Repeat("x", 100), 20)
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "[... Content truncated due to size limits ...]")
}
