// Package llm sends prompts to a chat completion backend.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultTimeout     = 120 * time.Second
	defaultMaxAttempts = 1
	defaultRetryDelay  = time.Second
	defaultMaxTokens   = 4096
)

// Provider presets for known LLM providers
var providerDefaults = map[string]struct {
	BaseURL   string
	Model     string
	APIFormat string
}{
	"openai":     {BaseURL: "https://api.openai.com/v1/chat/completions", Model: "gpt-4o-mini", APIFormat: "openai"},
	"anthropic":  {BaseURL: "https://api.anthropic.com/v1/messages", Model: "claude-sonnet-4-5-20250929", APIFormat: "anthropic"},
	"perplexity": {BaseURL: "https://api.perplexity.ai/chat/completions", Model: "sonar", APIFormat: "openai"},
	"ollama":     {BaseURL: "http://localhost:11434/v1/chat/completions", Model: "llama3", APIFormat: "openai"},
}

// ChatMessage represents a message in the chat API
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the API request body
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// ChatResponse represents the API response
type ChatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Client handles communication with a chat completion API. OpenAI-compatible
// providers are spoken to directly over HTTP; the anthropic format goes
// through the official SDK.
type Client struct {
	provider    string
	apiFormat   string // "openai" (default) or "anthropic"
	apiKey      string
	model       string
	baseURL     string
	maxAttempts int
	httpClient  *http.Client
	anthropic   *anthropic.Client
}

// Option allows configuring the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithModel sets a custom model
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL sets a custom base URL
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithAPIFormat sets the wire format ("openai" or "anthropic")
func WithAPIFormat(format string) Option {
	return func(c *Client) {
		if format != "" {
			c.apiFormat = format
		}
	}
}

// WithMaxAttempts sets how many times a failing request is tried. Client
// errors (4xx) are never retried.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// NewClient creates a new completion client.
// provider can be "openai", "anthropic", "perplexity", "ollama", or empty (defaults to openai).
// apiKey can be empty for providers that don't require it (e.g., ollama).
func NewClient(provider, apiKey string, opts ...Option) (*Client, error) {
	if provider == "" {
		provider = "openai"
	}

	defaults, known := providerDefaults[provider]
	if !known {
		// Unknown provider: require explicit base_url via options
		defaults.BaseURL = ""
		defaults.Model = ""
	}

	client := &Client{
		provider:    provider,
		apiFormat:   defaults.APIFormat,
		apiKey:      apiKey,
		model:       defaults.Model,
		baseURL:     defaults.BaseURL,
		maxAttempts: defaultMaxAttempts,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.apiFormat == "" {
		client.apiFormat = "openai"
	}

	// Auto-append standard path if base URL has no path component
	if client.baseURL != "" && !strings.Contains(strings.TrimPrefix(strings.TrimPrefix(client.baseURL, "https://"), "http://"), "/") {
		switch client.apiFormat {
		case "anthropic":
			client.baseURL = strings.TrimRight(client.baseURL, "/") + "/v1/messages"
		default:
			client.baseURL = strings.TrimRight(client.baseURL, "/") + "/v1/chat/completions"
		}
	}

	if client.baseURL == "" {
		return nil, fmt.Errorf("LLM base_url is required for provider %q", provider)
	}
	if client.model == "" {
		return nil, fmt.Errorf("LLM model is required for provider %q", provider)
	}
	if client.apiKey == "" && provider != "ollama" {
		return nil, fmt.Errorf("LLM api_key is required for provider %q", provider)
	}

	if client.apiFormat == "anthropic" {
		sdk := anthropic.NewClient(
			option.WithAPIKey(client.apiKey),
			option.WithBaseURL(sdkBaseURL(client.baseURL)),
			option.WithHTTPClient(client.httpClient),
			option.WithMaxRetries(0),
		)
		client.anthropic = &sdk
	}

	return client, nil
}

// Provider returns the configured provider name
func (c *Client) Provider() string { return c.provider }

// Model returns the configured model
func (c *Client) Model() string { return c.model }

// Complete sends one system + user prompt and returns the text answer
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(defaultRetryDelay * time.Duration(attempt)):
			}
		}

		var (
			content string
			err     error
		)
		if c.apiFormat == "anthropic" {
			content, err = c.completeAnthropic(ctx, system, prompt)
		} else {
			content, err = c.completeOpenAI(ctx, system, prompt)
		}
		if err == nil {
			return content, nil
		}

		// Don't retry client errors (4xx)
		var noRetry *errNoRetry
		if errors.As(err, &noRetry) {
			return "", noRetry.err
		}
		lastErr = err
	}

	if c.maxAttempts == 1 {
		return "", lastErr
	}
	return "", fmt.Errorf("completion failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// errNoRetry wraps errors that should not be retried (e.g., 4xx client errors).
type errNoRetry struct {
	err error
}

func (e *errNoRetry) Error() string { return e.err.Error() }
func (e *errNoRetry) Unwrap() error { return e.err }

func (c *Client) completeOpenAI(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(ChatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", &errNoRetry{err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", &errNoRetry{err: err}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := parseAPIError(resp.StatusCode, respBody)
		// Only server errors are transient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", &errNoRetry{err: apiErr}
		}
		return "", apiErr
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", &errNoRetry{err: fmt.Errorf("unexpected response (not JSON): %s", preview(respBody))}
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return chatResp.Choices[0].Message.Content, nil
}

func (c *Client) completeAnthropic(ctx context.Context, system, prompt string) (string, error) {
	msg, err := c.anthropic.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: defaultMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return "", &errNoRetry{err: fmt.Errorf("API error (status %d): %w", apiErr.StatusCode, err)}
		}
		return "", err
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Anthropic response")
}

// sdkBaseURL strips the messages endpoint; the SDK adds it back
func sdkBaseURL(url string) string {
	url = strings.TrimSuffix(strings.TrimRight(url, "/"), "/messages")
	url = strings.TrimSuffix(url, "/v1")
	return url + "/"
}

// parseAPIError extracts a human-readable message from an API error response.
// If the body is JSON with an error.message field, it uses that; otherwise falls back to raw body.
func parseAPIError(statusCode int, body []byte) error {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		return fmt.Errorf("API error (status %d): %s", statusCode, parsed.Error.Message)
	}
	return fmt.Errorf("API error (status %d): %s", statusCode, string(body))
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
