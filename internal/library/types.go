package library

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Annotation represents a single highlight with an optional note
type Annotation struct {
	ID            string     `json:"id"`
	Highlight     string     `json:"highlight"`
	Note          string     `json:"note,omitempty"`
	Location      string     `json:"location,omitempty"`
	HighlightedAt *time.Time `json:"highlighted_at,omitempty"`
}

// Book represents a book (or article) and the annotations captured from it
type Book struct {
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	Author          string                `json:"author"`
	SourceURL       string                `json:"source_url,omitempty"`
	ASIN            string                `json:"asin,omitempty"`
	Location        string                `json:"location,omitempty"`
	LastHighlightAt *time.Time            `json:"last_highlight_at,omitempty"`
	Annotations     map[string]Annotation `json:"annotations"`
}

// AnnotationIDs returns the annotation ids in ascending order
func (b Book) AnnotationIDs() []string {
	ids := make([]string, 0, len(b.Annotations))
	for id := range b.Annotations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortedAnnotations returns the book's annotations ordered by id
func (b Book) SortedAnnotations() []Annotation {
	ids := b.AnnotationIDs()
	out := make([]Annotation, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.Annotations[id])
	}
	return out
}

// URI returns a link back to the book. Books without a source URL get a
// kindle:// deep link built from the ASIN.
func (b Book) URI() string {
	return b.uri(b.Location)
}

// AnnotationURI returns a link to the annotation, preferring its own
// location over the book's.
func (b Book) AnnotationURI(a Annotation) string {
	loc := a.Location
	if loc == "" {
		loc = b.Location
	}
	return b.uri(loc)
}

func (b Book) uri(location string) string {
	if b.SourceURL != "" {
		return b.SourceURL
	}
	if b.ASIN == "" {
		return ""
	}
	return KindleURL(b.ASIN, location)
}

// KindleURL builds the kindle:// deep link used by the Kindle apps
func KindleURL(asin, location string) string {
	if location == "" {
		location = "undefined"
	}
	return fmt.Sprintf("kindle://book?action=open&asin=%s&location=%s", asin, location)
}

// Snapshot is a full capture of the library at a point in time
type Snapshot struct {
	Books        map[string]Book `json:"books"`
	Account      string          `json:"account,omitempty"`
	SnapshotDate time.Time       `json:"snapshotDate"`
	Source       string          `json:"source,omitempty"`
}

// BookIDs returns the book ids in ascending order
func (s *Snapshot) BookIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Books))
	for id := range s.Books {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AnnotationCount returns the number of annotations across all books
func (s *Snapshot) AnnotationCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, b := range s.Books {
		n += len(b.Annotations)
	}
	return n
}

// UnmarshalJSON accepts both the wrapped format and the early captures that
// stored the book map at the top level.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type wrapped Snapshot
	var w wrapped
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Books != nil {
		*s = Snapshot(w)
		return nil
	}

	var bare map[string]Book
	if err := json.Unmarshal(data, &bare); err != nil {
		return fmt.Errorf("unrecognised snapshot format: %w", err)
	}
	for id, b := range bare {
		if b.ID == "" {
			b.ID = id
			bare[id] = b
		}
	}
	*s = Snapshot{Books: bare}
	return nil
}
