// Package anki pushes study items into Anki through the AnkiConnect add-on.
package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultURL = "http://localhost:8765"
	apiVersion = 6
)

// HTTPClient defines the interface for HTTP operations
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a running AnkiConnect instance
type Client struct {
	url        string
	httpClient HTTPClient
}

// ClientOption allows configuring the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithURL sets the AnkiConnect endpoint
func WithURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.url = url
		}
	}
}

// NewClient creates a new AnkiConnect client
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		url:        DefaultURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// noteParams is the "note" object of addNote and updateNoteFields
type noteParams struct {
	ID        int64             `json:"id,omitempty"`
	DeckName  string            `json:"deckName,omitempty"`
	ModelName string            `json:"modelName,omitempty"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags,omitempty"`
	Options   *noteOptions      `json:"options,omitempty"`
}

type noteOptions struct {
	AllowDuplicate bool `json:"allowDuplicate"`
}

// Invoke calls an AnkiConnect action and decodes its result into result
// (which may be nil)
func (c *Client) Invoke(ctx context.Context, action string, params, result any) error {
	body, err := json.Marshal(request{Action: action, Version: apiVersion, Params: params})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("AnkiConnect unreachable at %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("AnkiConnect %s failed (status %d): %s", action, resp.StatusCode, string(respBody))
	}

	var parsed response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("unexpected AnkiConnect response: %w", err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("%s: %s", action, *parsed.Error)
	}
	if result != nil && len(parsed.Result) > 0 {
		if err := json.Unmarshal(parsed.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", action, err)
		}
	}
	return nil
}

// Version returns the AnkiConnect API version, which doubles as a ping
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	if err := c.Invoke(ctx, "version", nil, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// FindNotes returns the ids of notes matching an Anki search query
func (c *Client) FindNotes(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	err := c.Invoke(ctx, "findNotes", map[string]string{"query": query}, &ids)
	return ids, err
}

// AddNote creates a note and returns its id
func (c *Client) AddNote(ctx context.Context, rec Record) (int64, error) {
	params := map[string]noteParams{
		"note": {
			DeckName:  rec.DeckName,
			ModelName: rec.ModelName,
			Fields:    rec.Fields,
			Tags:      rec.Tags,
			Options:   &noteOptions{AllowDuplicate: false},
		},
	}
	var id int64
	if err := c.Invoke(ctx, "addNote", params, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateNoteFields overwrites the fields of an existing note
func (c *Client) UpdateNoteFields(ctx context.Context, id int64, fields map[string]string) error {
	params := map[string]noteParams{
		"note": {ID: id, Fields: fields},
	}
	return c.Invoke(ctx, "updateNoteFields", params, nil)
}

// Lookup finds notes whose SourceId field equals key
func (c *Client) Lookup(ctx context.Context, key string) ([]int64, error) {
	return c.FindNotes(ctx, SourceQuery(key))
}

// Create adds a new note for rec
func (c *Client) Create(ctx context.Context, rec Record) (int64, error) {
	return c.AddNote(ctx, rec)
}

// Update rewrites note id with the fields of rec
func (c *Client) Update(ctx context.Context, id int64, rec Record) error {
	return c.UpdateNoteFields(ctx, id, rec.Fields)
}

// SourceQuery builds the search that finds a note by its SourceId field
func SourceQuery(key string) string {
	q := "SourceId:" + strings.ReplaceAll(key, `"`, `\"`)
	if strings.ContainsAny(key, " \t") {
		return `"` + q + `"`
	}
	return q
}
