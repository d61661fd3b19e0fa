// Package llm provides a structured-output chat client over the
// OpenAI-compatible completions API. Providers are selectable per
// council; the contract is (prompt, schema) -> schema instance or
// error.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quorumtrade/quorumtrade/internal/monitoring"
)

// Client is a chat completions client for one provider.
type Client struct {
	provider    string
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// ClientConfig contains configuration for one provider client.
type ClientConfig struct {
	Provider    string
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewClient creates a provider client.
func NewClient(config ClientConfig) *Client {
	if config.Endpoint == "" {
		config.Endpoint = "http://localhost:8080/v1/chat/completions"
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		provider:    config.Provider,
		endpoint:    config.Endpoint,
		apiKey:      config.APIKey,
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		httpClient:  &http.Client{Timeout: config.Timeout},
	}
}

// Provider returns the provider name this client talks to.
func (c *Client) Provider() string { return c.provider }

// Complete sends a chat completion request.
func (c *Client) Complete(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (*ChatResponse, error) {
	request := ChatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: format,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			return nil, fmt.Errorf("LLM API error (status %d): %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("LLM API error: %s", errResp.Error.Message)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	monitoring.LLMTokensTotal.WithLabelValues("input").Add(float64(chatResp.Usage.PromptTokens))
	monitoring.LLMTokensTotal.WithLabelValues("output").Add(float64(chatResp.Usage.CompletionTokens))

	log.Debug().
		Str("provider", c.provider).
		Str("model", chatResp.Model).
		Int("prompt_tokens", chatResp.Usage.PromptTokens).
		Int("completion_tokens", chatResp.Usage.CompletionTokens).
		Dur("duration", time.Since(start)).
		Msg("LLM request completed")

	return &chatResp, nil
}

// CompleteStructured sends a system + user prompt pair requesting a
// JSON object matching target's shape, and unmarshals the reply into
// target.
func (c *Client) CompleteStructured(ctx context.Context, systemPrompt, userPrompt, schemaName string, target any) error {
	messages := []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}
	format := &ResponseFormat{
		Type:       "json_schema",
		JSONSchema: &JSONSchema{Name: schemaName, Strict: true},
	}

	resp, err := c.Complete(ctx, messages, format)
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("no choices in LLM response")
	}

	return ParseJSONResponse(resp.Choices[0].Message.Content, target)
}

// ParseJSONResponse extracts JSON from LLM output, tolerating markdown
// code fences, and unmarshals into target.
func ParseJSONResponse(content string, target any) error {
	content = extractJSONFromMarkdown(content)
	if err := json.Unmarshal([]byte(content), target); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

func extractJSONFromMarkdown(content string) string {
	contentBytes := []byte(content)
	start := -1

	if idx := bytes.Index(contentBytes, []byte("```json")); idx >= 0 {
		start = idx + 7
	} else if idx := bytes.Index(contentBytes, []byte("```")); idx >= 0 {
		start = idx + 3
	}

	if start >= 0 {
		if idx := bytes.Index(contentBytes[start:], []byte("```")); idx >= 0 {
			content = content[start : start+idx]
		}
	}

	return string(bytes.TrimSpace([]byte(content)))
}
