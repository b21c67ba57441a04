package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
)

// BedrockClient is an implementation of the core.LLMClient interface using
// Amazon Bedrock. The request/response payload depends on the model family
// behind the model ID.
type BedrockClient struct {
	client      *bedrockruntime.Client
	modelID     string
	maxTokens   int
	temperature float32
	topP        float32
	logger      *zap.Logger
}

// NewBedrockClient creates a new Bedrock completion client
func NewBedrockClient(
	client *bedrockruntime.Client,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	logger *zap.Logger,
) *BedrockClient {
	return &BedrockClient{
		client:      client,
		modelID:     modelID,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		logger:      logger,
	}
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func (c *BedrockClient) isAnthropicModel() bool {
	return strings.Contains(c.modelID, "anthropic.")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (c *BedrockClient) isAmazonTitanModel() bool {
	return strings.Contains(c.modelID, "amazon.titan")
}

// Complete sends the system instruction and user message to Bedrock and
// returns the raw response text
func (c *BedrockClient) Complete(ctx context.Context, system, user string) (string, error) {
	payload, err := c.buildPayload(system, user)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.modelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	text, err := c.extractText(resp.Body)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Bedrock completion finished", zap.String("model_id", c.modelID))

	return text, nil
}

// buildPayload builds the model-family-specific request body
func (c *BedrockClient) buildPayload(system, user string) ([]byte, error) {
	if c.isAnthropicModel() {
		// Anthropic Claude models use the Bedrock messages API
		return json.Marshal(map[string]interface{}{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        c.maxTokens,
			"temperature":       c.temperature,
			"top_p":             c.topP,
			"system":            system,
			"messages": []map[string]interface{}{
				{"role": "user", "content": user},
			},
		})
	}

	if c.isAmazonTitanModel() {
		// Titan models take a single combined prompt
		return json.Marshal(map[string]interface{}{
			"inputText": system + "\n\n" + user,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": c.maxTokens,
				"temperature":   c.temperature,
				"topP":          c.topP,
			},
		})
	}

	// Default to a generic completion format
	return json.Marshal(map[string]interface{}{
		"prompt":      system + "\n\n" + user,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"top_p":       c.topP,
	})
}

// extractText pulls the generated text out of the model-family-specific
// response body
func (c *BedrockClient) extractText(body []byte) (string, error) {
	if c.isAnthropicModel() {
		var claudeResp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to parse Claude response: %w", err)
		}
		var text string
		for _, block := range claudeResp.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		if text == "" {
			return "", fmt.Errorf("empty response from Bedrock model %s", c.modelID)
		}
		return text, nil
	}

	if c.isAmazonTitanModel() {
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to parse Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Bedrock model %s", c.modelID)
		}
		return titanResp.Results[0].OutputText, nil
	}

	var genericResp struct {
		Completion string `json:"completion"`
		Generation string `json:"generation"`
	}
	if err := json.Unmarshal(body, &genericResp); err != nil {
		return "", fmt.Errorf("failed to parse Bedrock response: %w", err)
	}
	if genericResp.Completion != "" {
		return genericResp.Completion, nil
	}
	if genericResp.Generation != "" {
		return genericResp.Generation, nil
	}
	return "", fmt.Errorf("empty response from Bedrock model %s", c.modelID)
}

var _ core.LLMClient = (*BedrockClient)(nil)
