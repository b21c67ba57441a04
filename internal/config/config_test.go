package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	assert.Equal(t, "gemini", cfg.GetString("llm.provider"))
	assert.Equal(t, "postfix", cfg.GetString("server.filter_type"))
	assert.Equal(t, "0.0.0.0:10025", cfg.GetString("server.listen_address"))
	assert.False(t, cfg.GetBool("server.block_spam"))
	assert.Equal(t, "X-Email-Category", cfg.GetString("server.headers.category"))

	classifier := cfg.GetClassifier()
	assert.Equal(t, 0.50, classifier.LowConfidenceThreshold)
	assert.Equal(t, 0.75, classifier.HighConfidenceThreshold)
	assert.Equal(t, 1000, classifier.MaxPromptBodyChars)
	assert.Empty(t, classifier.TrustedDomains)

	assert.False(t, cfg.GetExamples().Enabled)
	assert.Equal(t, 3, cfg.GetExamples().TopK)

	assert.Equal(t, "memory", cfg.GetString("cache.type"))
	assert.True(t, cfg.GetBool("cache.enabled"))
}

func TestGetDuration(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	ttl, err := cfg.GetDuration("cache.ttl")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, ttl)

	_, err = cfg.GetDuration("llm.provider")
	assert.Error(t, err)
}

func TestOverridesWinOverDefaults(t *testing.T) {
	v := NewEmptyViper()
	v.Set("llm.provider", "anthropic")
	v.Set("classifier.low_confidence_threshold", 0.6)
	v.Set("classifier.trusted_domains", []string{"corp.example"})
	cfg := NewFromViper(v)

	assert.Equal(t, "anthropic", cfg.GetLLM().Provider)
	assert.Equal(t, 0.6, cfg.GetClassifier().LowConfidenceThreshold)
	assert.Equal(t, []string{"corp.example"}, cfg.GetClassifier().TrustedDomains)
}

func TestProviderConfigs(t *testing.T) {
	v := NewEmptyViper()
	v.Set("anthropic.api_key", "sk-test")
	v.Set("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	cfg := NewFromViper(v)

	anthropic := cfg.GetAnthropic()
	assert.Equal(t, "sk-test", anthropic.APIKey)
	assert.Equal(t, 1000, anthropic.MaxTokens)
	assert.Equal(t, float32(0.0), anthropic.Temperature)

	bedrock := cfg.GetBedrock()
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", bedrock.ModelID)
	assert.Equal(t, "us-east-1", bedrock.Region)
}
