package config

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// ClassifierConfig represents the workflow tunables
type ClassifierConfig struct {
	LowConfidenceThreshold  float64
	HighConfidenceThreshold float64
	MaxPromptBodyChars      int
	TrustedDomains          []string
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// AnthropicConfig represents the configuration for Anthropic
type AnthropicConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// ExamplesConfig represents the configuration for the similarity-search client
type ExamplesConfig struct {
	Enabled bool
	BaseURL string
	TopK    int
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetClassifier returns the workflow configuration
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		LowConfidenceThreshold:  c.GetFloat64("classifier.low_confidence_threshold"),
		HighConfidenceThreshold: c.GetFloat64("classifier.high_confidence_threshold"),
		MaxPromptBodyChars:      c.GetInt("classifier.max_prompt_body_chars"),
		TrustedDomains:          c.GetStringSlice("classifier.trusted_domains"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetAnthropic returns the Anthropic configuration
func (c *Config) GetAnthropic() AnthropicConfig {
	return AnthropicConfig{
		APIKey:      c.GetString("anthropic.api_key"),
		ModelName:   c.GetString("anthropic.model_name"),
		MaxTokens:   c.GetInt("anthropic.max_tokens"),
		Temperature: float32(c.GetFloat64("anthropic.temperature")),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetExamples returns the similarity-search configuration
func (c *Config) GetExamples() ExamplesConfig {
	return ExamplesConfig{
		Enabled: c.GetBool("examples.enabled"),
		BaseURL: c.GetString("examples.base_url"),
		TopK:    c.GetInt("examples.top_k"),
	}
}
