package synth

import (
	"context"
	"strconv"

	"github.com/mcao2/readwise-ankify/internal/intent"
	"github.com/mcao2/readwise-ankify/internal/library"
)

// Kind names an item variant. The values double as the "type" key of the
// response grammar.
type Kind string

const (
	KindFlashcard  Kind = "flashcard"
	KindDefinition Kind = "definition"
	KindHighlight  Kind = "highlight"
	KindTodo       Kind = "todo"
	KindNote       Kind = "note"
)

// Ref identifies where an item came from. ID is the idempotency key used
// downstream ("highlight-<annotationId>", "author-<bookId>").
type Ref struct {
	ID    string
	URI   string
	Title string
}

// Item is a typed study item ready to be stored
type Item interface {
	Kind() Kind
	Reference() Ref
}

// Flashcard is a question/answer card
type Flashcard struct {
	Ref
	Question string
	Answer   string
}

// Definition is a vocabulary entry
type Definition struct {
	Ref
	Word       string
	Definition string
	Examples   []string
}

// Highlight keeps a passage as-is
type Highlight struct {
	Ref
	Passage string
}

// Todo is an action the reader wants to take
type Todo struct {
	Ref
	Description string
}

// Note is a passage with the reader's own thoughts attached
type Note struct {
	Ref
	Passage string
	Note    string
}

func (Flashcard) Kind() Kind  { return KindFlashcard }
func (Definition) Kind() Kind { return KindDefinition }
func (Highlight) Kind() Kind  { return KindHighlight }
func (Todo) Kind() Kind       { return KindTodo }
func (Note) Kind() Kind       { return KindNote }

func (f Flashcard) Reference() Ref  { return f.Ref }
func (d Definition) Reference() Ref { return d.Ref }
func (h Highlight) Reference() Ref  { return h.Ref }
func (t Todo) Reference() Ref       { return t.Ref }
func (n Note) Reference() Ref       { return n.Ref }

// Input is one classified annotation to synthesize
type Input struct {
	Annotation library.Annotation
	Book       library.Book
	Intent     intent.Intent
}

// Completer sends a prompt to a text-completion backend
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Dictionary is a local source of definitions consulted before the backend
type Dictionary interface {
	LookupDefinition(ctx context.Context, word string) (Definition, bool, error)
	SaveDefinition(ctx context.Context, def Definition) error
}

// AnnotationKey returns the idempotency key of the n-th (0-based) item
// derived from an annotation
func AnnotationKey(annotationID string, n int) string {
	key := "highlight-" + annotationID
	if n > 0 {
		key += "-" + strconv.Itoa(n+1)
	}
	return key
}

// AuthorKey returns the idempotency key of a book's author card
func AuthorKey(bookID string) string {
	return "author-" + bookID
}
