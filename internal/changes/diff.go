// Package changes computes what was added to the library between two snapshots.
package changes

import (
	"github.com/mcao2/readwise-ankify/internal/library"
)

// Kind identifies the type of change event
type Kind string

const (
	KindNewBook       Kind = "new-book"
	KindNewAnnotation Kind = "new-annotation"
)

// Event is a single addition found by Diff. Annotation is set only for
// KindNewAnnotation; a new book carries all of its annotations.
type Event struct {
	Kind       Kind
	Book       library.Book
	Annotation *library.Annotation
}

// Annotations returns the annotations covered by the event
func (e Event) Annotations() []library.Annotation {
	switch e.Kind {
	case KindNewBook:
		return e.Book.SortedAnnotations()
	case KindNewAnnotation:
		if e.Annotation == nil {
			return nil
		}
		return []library.Annotation{*e.Annotation}
	default:
		return nil
	}
}

// Diff returns the books and annotations present in curr but not in prev,
// ordered by book id then annotation id. A nil prev marks every book as new.
func Diff(curr, prev *library.Snapshot) []Event {
	if curr == nil {
		return nil
	}

	var events []Event
	for _, bookID := range curr.BookIDs() {
		book := curr.Books[bookID]

		var prevBook library.Book
		found := false
		if prev != nil {
			prevBook, found = prev.Books[bookID]
		}
		if !found {
			events = append(events, Event{Kind: KindNewBook, Book: book})
			continue
		}

		for _, annID := range book.AnnotationIDs() {
			if _, seen := prevBook.Annotations[annID]; seen {
				continue
			}
			ann := book.Annotations[annID]
			events = append(events, Event{Kind: KindNewAnnotation, Book: book, Annotation: &ann})
		}
	}
	return events
}

// Summary counts events by kind and the annotations they cover
type Summary struct {
	NewBooks       int
	NewAnnotations int
}

// Summarize reports how many books and annotations a set of events covers
func Summarize(events []Event) Summary {
	var s Summary
	for _, e := range events {
		if e.Kind == KindNewBook {
			s.NewBooks++
		}
		s.NewAnnotations += len(e.Annotations())
	}
	return s
}
