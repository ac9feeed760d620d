package readwise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// mockHTTPClient is a test double for HTTPClient
type mockHTTPClient struct {
	responses []*http.Response
	errors    []error
	callCount int
	requests  []*http.Request
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.requests = append(m.requests, req)
	defer func() { m.callCount++ }()
	if m.callCount < len(m.errors) && m.errors[m.callCount] != nil {
		return nil, m.errors[m.callCount]
	}
	if m.callCount < len(m.responses) {
		return m.responses[m.callCount], nil
	}
	return nil, io.EOF
}

func jsonResponse(status int, v any) *http.Response {
	body, _ := json.Marshal(v)
	return &http.Response{StatusCode: status, Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(body))}
}

func unlimited() ClientOption {
	return WithLimiter(rate.NewLimiter(rate.Inf, 1))
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		envToken  string
		legacyEnv string
		wantError bool
	}{
		{name: "valid token", token: "test-token"},
		{name: "empty token with env", envToken: "env-token"},
		{name: "empty token with legacy env", legacyEnv: "legacy-token"},
		{name: "empty token no env", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("READWISE_TOKEN", tt.envToken)
			t.Setenv("READWISE_API_KEY", tt.legacyEnv)

			client, err := NewClient(tt.token)
			if tt.wantError {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client == nil {
				t.Error("expected client, got nil")
			}
		})
	}
}

func TestVerifyToken(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantValid  bool
	}{
		{name: "valid token", statusCode: http.StatusNoContent, wantValid: true},
		{name: "invalid token", statusCode: http.StatusUnauthorized, wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockHTTPClient{
				responses: []*http.Response{
					{StatusCode: tt.statusCode, Body: io.NopCloser(bytes.NewReader(nil))},
				},
			}

			client, _ := NewClient("test-token", WithHTTPClient(mock))
			valid, err := client.VerifyToken(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if valid != tt.wantValid {
				t.Errorf("got valid=%v, want %v", valid, tt.wantValid)
			}
			if got := mock.requests[0].URL.String(); got != "https://readwise.io/api/v2/auth/" {
				t.Errorf("unexpected auth url %q", got)
			}
			if got := mock.requests[0].Header.Get("Authorization"); got != "Token test-token" {
				t.Errorf("unexpected auth header %q", got)
			}
		})
	}
}

func TestListHighlightsPagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/highlights/" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("page_size") != "1000" {
			t.Errorf("expected page_size=1000, got %q", r.URL.RawQuery)
		}
		if r.URL.Query().Get("highlighted_at__gt") != "2024-01-02T03:04:05Z" {
			t.Errorf("unexpected since filter %q", r.URL.RawQuery)
		}

		if r.URL.Query().Get("page") == "2" {
			json.NewEncoder(w).Encode(ListResponse[Highlight]{Count: 2, Results: []Highlight{{ID: 2, Text: "second", BookID: 10}}})
			return
		}
		next := fmt.Sprintf("%s/highlights/?%s&page=2", server.URL, r.URL.RawQuery)
		json.NewEncoder(w).Encode(ListResponse[Highlight]{Count: 2, Next: &next, Results: []Highlight{{ID: 1, Text: "first", BookID: 10}}})
	}))
	defer server.Close()

	client, _ := NewClient("test-token", WithBaseURL(server.URL), unlimited())
	since := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	highlights, err := client.ListHighlights(context.Background(), since)
	if err != nil {
		t.Fatalf("ListHighlights failed: %v", err)
	}
	if len(highlights) != 2 {
		t.Fatalf("expected 2 highlights from pagination, got %d", len(highlights))
	}
	if highlights[1].Text != "second" {
		t.Errorf("unexpected order %+v", highlights)
	}
}

func TestRecentBuildsSnapshot(t *testing.T) {
	hlAt := FlexibleTime{Time: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	mock := &mockHTTPClient{
		responses: []*http.Response{
			jsonResponse(http.StatusOK, ListResponse[Highlight]{Results: []Highlight{
				{ID: 101, Text: "exegesis", BookID: 7, Location: 1234, HighlightedAt: &hlAt},
				{ID: 102, Text: "A passage", Note: "q", BookID: 7},
				{ID: 103, Text: "orphan", BookID: 99},
			}}),
			jsonResponse(http.StatusOK, ListResponse[Book]{Results: []Book{
				{ID: 7, Title: "Diaspora", Author: "Greg Egan", ASIN: "B00H6STTU6"},
			}}),
		},
	}

	client, _ := NewClient("test-token", WithHTTPClient(mock), unlimited())
	snap, err := client.Recent(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}

	if mock.callCount != 2 {
		t.Errorf("expected highlights and books calls, got %d", mock.callCount)
	}
	if mock.requests[0].URL.Query().Has("highlighted_at__gt") {
		t.Error("zero since should not filter highlights")
	}

	book, ok := snap.Books["7"]
	if !ok {
		t.Fatalf("expected book 7 in snapshot, got %v", snap.BookIDs())
	}
	if book.Title != "Diaspora" || len(book.Annotations) != 2 {
		t.Errorf("unexpected book %+v", book)
	}
	ann := book.Annotations["101"]
	if ann.Location != "1234" || ann.HighlightedAt == nil || !ann.HighlightedAt.Equal(hlAt.Time) {
		t.Errorf("unexpected annotation %+v", ann)
	}
	if book.Annotations["102"].Note != "q" {
		t.Error("expected note to be carried over")
	}
	if _, ok := snap.Books["99"]; !ok {
		t.Error("highlights without a listed book should still be kept")
	}
	if snap.Source != "readwise" {
		t.Errorf("unexpected source %q", snap.Source)
	}
}

func TestRecentNoHighlightsSkipsBooks(t *testing.T) {
	mock := &mockHTTPClient{
		responses: []*http.Response{jsonResponse(http.StatusOK, ListResponse[Highlight]{})},
	}

	client, _ := NewClient("test-token", WithHTTPClient(mock), unlimited())
	snap, err := client.Recent(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(snap.Books) != 0 || mock.callCount != 1 {
		t.Errorf("expected empty snapshot after one call, got %d books, %d calls", len(snap.Books), mock.callCount)
	}
}

func TestDoRequestNoRetryByDefault(t *testing.T) {
	mock := &mockHTTPClient{
		responses: []*http.Response{
			{StatusCode: http.StatusTooManyRequests, Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(nil))},
			jsonResponse(http.StatusOK, map[string]bool{"ok": true}),
		},
	}

	client, _ := NewClient("test-token", WithHTTPClient(mock), unlimited())
	req, _ := http.NewRequest("GET", client.baseURL+"/books/", nil)

	if _, err := client.doRequest(req); err == nil {
		t.Fatal("expected rate limit error without retries")
	}
	if mock.callCount != 1 {
		t.Errorf("expected 1 call, got %d", mock.callCount)
	}
}

func TestDoRequest429WithRetryAfterHeader(t *testing.T) {
	mock := &mockHTTPClient{
		responses: []*http.Response{
			{
				StatusCode: http.StatusTooManyRequests,
				Header:     http.Header{"Retry-After": []string{"0"}},
				Body:       io.NopCloser(bytes.NewReader(nil)),
			},
			jsonResponse(http.StatusOK, map[string]bool{"ok": true}),
		},
	}

	client, _ := NewClient("test-token", WithHTTPClient(mock), unlimited(), WithMaxAttempts(3))
	req, _ := http.NewRequest("GET", client.baseURL+"/books/", nil)

	resp, err := client.doRequest(req)
	if err != nil {
		t.Fatalf("expected success after retry, got error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if mock.callCount != 2 {
		t.Errorf("expected 2 calls (1 retry), got %d", mock.callCount)
	}
}

func TestDoRequestHonoursContext(t *testing.T) {
	mock := &mockHTTPClient{}
	client, _ := NewClient("test-token", WithHTTPClient(mock), WithLimiter(rate.NewLimiter(rate.Every(time.Hour), 0)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", client.baseURL+"/books/", nil)

	if _, err := client.doRequest(req); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if mock.callCount != 0 {
		t.Errorf("no request should be sent, got %d", mock.callCount)
	}
}

func TestFlexibleTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{`"2024-05-01T10:00:00Z"`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{`"2024-05-01T10:00:00.123456Z"`, time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)},
		{`"2024-05-01"`, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{`null`, time.Time{}},
	}
	for _, tt := range tests {
		var ft FlexibleTime
		if err := json.Unmarshal([]byte(tt.in), &ft); err != nil {
			t.Errorf("Unmarshal(%s) failed: %v", tt.in, err)
			continue
		}
		if !ft.Equal(tt.want) {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, ft.Time, tt.want)
		}
	}

	var ft FlexibleTime
	if err := json.Unmarshal([]byte(`"yesterday"`), &ft); err == nil {
		t.Error("expected error for unparseable time")
	}
}
