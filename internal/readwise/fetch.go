package readwise

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mcao2/readwise-ankify/internal/library"
)

const pageSize = 1000

// ListHighlights fetches every highlight made after since (all highlights
// when since is zero), following pagination
func (c *Client) ListHighlights(ctx context.Context, since time.Time) ([]Highlight, error) {
	params := url.Values{}
	if !since.IsZero() {
		params.Set("highlighted_at__gt", since.UTC().Format(time.RFC3339))
	}
	return list[Highlight](ctx, c, "/highlights/", params)
}

// ListBooks fetches every book highlighted after since (all books when
// since is zero), following pagination
func (c *Client) ListBooks(ctx context.Context, since time.Time) ([]Book, error) {
	params := url.Values{}
	if !since.IsZero() {
		params.Set("last_highlight_at__gt", since.UTC().Format(time.RFC3339))
	}
	return list[Book](ctx, c, "/books/", params)
}

// Recent fetches the highlights made after since together with their books
// and returns them as a library snapshot
func (c *Client) Recent(ctx context.Context, since time.Time) (*library.Snapshot, error) {
	highlights, err := c.ListHighlights(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list highlights: %w", err)
	}
	if len(highlights) == 0 {
		return BuildSnapshot(nil, nil), nil
	}

	books, err := c.ListBooks(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return BuildSnapshot(books, highlights), nil
}

func list[T any](ctx context.Context, c *Client, path string, params url.Values) ([]T, error) {
	params.Set("page_size", strconv.Itoa(pageSize))
	next := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	var all []T
	for next != "" {
		page, err := fetchPage[T](ctx, c, next)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)

		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}
	return all, nil
}

// fetchPage fetches a single page of results
func fetchPage[T any](ctx context.Context, c *Client, reqURL string) (*ListResponse[T], error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed: %d", resp.StatusCode)
	}

	var page ListResponse[T]
	if err := decodeJSON(resp.Body, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// BuildSnapshot groups highlights under their books. Highlights whose book
// was not returned still get a book entry keyed by their book id.
func BuildSnapshot(books []Book, highlights []Highlight) *library.Snapshot {
	snap := &library.Snapshot{
		Books:        make(map[string]library.Book),
		SnapshotDate: time.Now().UTC(),
		Source:       "readwise",
	}

	byID := make(map[int64]Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}

	for _, h := range highlights {
		bookID := strconv.FormatInt(h.BookID, 10)
		book, ok := snap.Books[bookID]
		if !ok {
			book = toLibraryBook(h.BookID, byID[h.BookID])
		}

		ann := library.Annotation{
			ID:            strconv.FormatInt(h.ID, 10),
			Highlight:     h.Text,
			Note:          h.Note,
			HighlightedAt: h.HighlightedAt.Ptr(),
		}
		if h.Location > 0 {
			ann.Location = strconv.Itoa(h.Location)
		}
		book.Annotations[ann.ID] = ann
		snap.Books[bookID] = book
	}

	return snap
}

func toLibraryBook(id int64, b Book) library.Book {
	return library.Book{
		ID:              strconv.FormatInt(id, 10),
		Title:           b.Title,
		Author:          b.Author,
		SourceURL:       b.SourceURL,
		ASIN:            b.ASIN,
		LastHighlightAt: b.LastHighlightAt.Ptr(),
		Annotations:     make(map[string]library.Annotation),
	}
}
