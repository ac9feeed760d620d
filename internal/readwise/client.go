// Package readwise reads highlights and books from the Readwise v2 API.
package readwise

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://readwise.io/api/v2"
	retryDelay     = time.Second

	// Readwise allows 20 list requests per minute
	defaultRequestInterval = 3 * time.Second
)

// HTTPClient defines the interface for HTTP operations
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client handles communication with the Readwise API
type Client struct {
	token       string
	baseURL     string
	httpClient  HTTPClient
	limiter     *rate.Limiter
	maxAttempts int
}

// ClientOption allows configuring the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL sets a custom base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithLimiter replaces the request pacing limiter
func WithLimiter(l *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithMaxAttempts sets how many times a rate limited or failing request is
// tried
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// NewClient creates a new Readwise API client
func NewClient(token string, opts ...ClientOption) (*Client, error) {
	if token == "" {
		token = os.Getenv("READWISE_TOKEN")
	}
	if token == "" {
		token = os.Getenv("READWISE_API_KEY")
	}
	if token == "" {
		return nil, fmt.Errorf("READWISE_TOKEN environment variable not set")
	}

	client := &Client{
		token:       token,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Every(defaultRequestInterval), 1),
		maxAttempts: 1,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// VerifyToken checks if the API token is valid
func (c *Client) VerifyToken(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/", nil)
	if err != nil {
		return false, err
	}

	req.Header.Set("Authorization", "Token "+c.token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusNoContent, nil
}

// doRequest performs a paced HTTP request. Rate limited and server error
// responses are retried while attempts remain.
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, retryDelay*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req.Header.Set("Authorization", "Token "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limited: %d", resp.StatusCode)
			if attempt+1 < c.maxAttempts {
				if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
					if err := sleep(ctx, time.Duration(seconds)*time.Second); err != nil {
						return nil, err
					}
				}
			}
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	if c.maxAttempts == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// decodeJSON reads and decodes JSON from response body
func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
