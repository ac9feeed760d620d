package kindle

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mcao2/readwise-ankify/internal/library"
)

// bookEntry is one row of the notebook's library list. The row id is the
// book's ASIN.
type bookEntry struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// annotationEntry is one row of a book's annotation pane
type annotationEntry struct {
	ID        string `json:"id"`
	Highlight string `json:"highlight"`
	Note      string `json:"note"`
	Location  string `json:"location"`
}

func parseBookEntry(raw string) (bookEntry, error) {
	var b bookEntry
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return bookEntry{}, fmt.Errorf("failed to decode book entry: %w", err)
	}
	b.ID = strings.TrimSpace(b.ID)
	b.Title = strings.TrimSpace(b.Title)
	b.Author = cleanAuthor(b.Author)
	return b, nil
}

// parseAnnotations decodes the annotation pane. Rows without an id, or
// with neither a highlight nor a note, are skipped.
func parseAnnotations(raw string) (map[string]library.Annotation, error) {
	var entries []annotationEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode annotations: %w", err)
	}

	out := make(map[string]library.Annotation, len(entries))
	for _, e := range entries {
		id := strings.TrimSpace(e.ID)
		highlight := strings.TrimSpace(e.Highlight)
		note := strings.TrimSpace(e.Note)
		if id == "" || (highlight == "" && note == "") {
			continue
		}
		out[id] = library.Annotation{
			ID:        id,
			Highlight: highlight,
			Note:      note,
			Location:  strings.TrimSpace(e.Location),
		}
	}
	return out, nil
}

// cleanAuthor strips the "By: " label the notebook puts before authors
func cleanAuthor(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"By: ", "By "} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}
	return s
}

func toBook(entry bookEntry, annotations map[string]library.Annotation) library.Book {
	if annotations == nil {
		annotations = make(map[string]library.Annotation)
	}
	return library.Book{
		ID:          entry.ID,
		Title:       entry.Title,
		Author:      entry.Author,
		ASIN:        entry.ID,
		Annotations: annotations,
	}
}

func newSnapshot(account, source string, books []library.Book, now time.Time) *library.Snapshot {
	snap := &library.Snapshot{
		Books:        make(map[string]library.Book, len(books)),
		Account:      account,
		SnapshotDate: now.UTC(),
		Source:       source,
	}
	for _, b := range books {
		snap.Books[b.ID] = b
	}
	return snap
}
