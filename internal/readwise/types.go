package readwise

import (
	"fmt"
	"time"
)

// FlexibleTime is a time.Time that can parse multiple date formats
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom JSON unmarshaling for FlexibleTime
func (ft *FlexibleTime) UnmarshalJSON(data []byte) error {
	str := string(data)
	if str == "null" {
		return nil
	}
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	if str == "" {
		return nil
	}

	formats := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, str); err == nil {
			ft.Time = t
			return nil
		}
	}

	return fmt.Errorf("unable to parse time: %s", str)
}

// MarshalJSON implements custom JSON marshaling
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	if ft.IsZero() {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("\"%s\"", ft.Format(time.RFC3339))), nil
}

// Ptr returns the time, or nil when unset
func (ft *FlexibleTime) Ptr() *time.Time {
	if ft == nil || ft.IsZero() {
		return nil
	}
	t := ft.Time
	return &t
}

// Tag is a user tag on a highlight or book
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Highlight represents a Readwise highlight
type Highlight struct {
	ID            int64         `json:"id"`
	Text          string        `json:"text"`
	Note          string        `json:"note"`
	Location      int           `json:"location"`
	LocationType  string        `json:"location_type"`
	HighlightedAt *FlexibleTime `json:"highlighted_at"`
	URL           string        `json:"url"`
	Color         string        `json:"color"`
	Updated       *FlexibleTime `json:"updated"`
	BookID        int64         `json:"book_id"`
	Tags          []Tag         `json:"tags"`
}

// Book represents a Readwise book, article or other highlight source
type Book struct {
	ID              int64         `json:"id"`
	Title           string        `json:"title"`
	Author          string        `json:"author"`
	Category        string        `json:"category"`
	Source          string        `json:"source"`
	NumHighlights   int           `json:"num_highlights"`
	LastHighlightAt *FlexibleTime `json:"last_highlight_at"`
	Updated         *FlexibleTime `json:"updated"`
	CoverImageURL   string        `json:"cover_image_url"`
	HighlightsURL   string        `json:"highlights_url"`
	SourceURL       string        `json:"source_url"`
	ASIN            string        `json:"asin"`
	Tags            []Tag         `json:"tags"`
}

// ListResponse represents a page of a v2 list endpoint
type ListResponse[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}
