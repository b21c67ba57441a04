package examples

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
)

const defaultTimeout = 10 * time.Second

// HTTPClient is an implementation of the core.ExampleSearcher interface
// backed by an external similarity-search service. Failures are soft: the
// caller gets an empty result and classification proceeds without few-shot
// context.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient creates a new similarity-search client
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type searchRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	K       int    `json:"k"`
}

type searchResponse struct {
	Results []core.SimilarExample `json:"results"`
}

// SearchSimilar returns up to k labeled emails similar to the given one,
// ordered by similarity. Any transport or decoding problem yields an empty
// slice, never an error that would disturb classification.
func (c *HTTPClient) SearchSimilar(ctx context.Context, subject, body string, k int) ([]core.SimilarExample, error) {
	payload, err := json.Marshal(searchRequest{Subject: subject, Body: body, K: k})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("Similarity search request failed", zap.Error(err))
		return []core.SimilarExample{}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Similarity search returned non-200 status",
			zap.Int("status", resp.StatusCode))
		return []core.SimilarExample{}, nil
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		c.logger.Warn("Failed to decode similarity search response", zap.Error(err))
		return []core.SimilarExample{}, nil
	}

	c.logger.Debug("Similarity search finished", zap.Int("found", len(decoded.Results)))

	if decoded.Results == nil {
		return []core.SimilarExample{}, nil
	}
	return decoded.Results, nil
}

// HealthCheck reports whether the similarity-search service is reachable
func (c *HTTPClient) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

var _ core.ExampleSearcher = (*HTTPClient)(nil)
