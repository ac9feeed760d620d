package anki

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/mcao2/readwise-ankify/internal/logging"
	"github.com/mcao2/readwise-ankify/internal/synth"
)

const (
	DefaultDeck       = "2-Recent"
	DefaultBasicModel = "Basic (synced)"
	DefaultVocabModel = "Vocab.2023-04-08"

	tag = "ankify"
)

// ErrNoSourceID is returned for items that cannot be upserted because they
// carry no idempotency key
var ErrNoSourceID = errors.New("item has no source id")

// Record is the note written to the flashcard store
type Record struct {
	DeckName  string
	ModelName string
	Fields    map[string]string
	Tags      []string
	SourceID  string
}

// Store is the capability the gateway needs from the flashcard store
type Store interface {
	Lookup(ctx context.Context, key string) ([]int64, error)
	Create(ctx context.Context, rec Record) (int64, error)
	Update(ctx context.Context, id int64, rec Record) error
}

// Outcome is what happened to one item
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeFailed  Outcome = "failed"
)

// Result describes a single upsert
type Result struct {
	SourceID string
	Kind     synth.Kind
	Outcome  Outcome
	NoteID   int64
}

// Progress is sent after every attempted item in UpsertAll
type Progress struct {
	Current  int
	Total    int
	SourceID string
	Outcome  Outcome
	Err      error
}

// GatewayError reports a failed upsert of one item
type GatewayError struct {
	SourceID string
	Action   string
	Message  string
	Err      error
}

func (e *GatewayError) Error() string {
	id := e.SourceID
	if id == "" {
		id = "(no id)"
	}
	return fmt.Sprintf("%s %s: %s", e.Action, id, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func gatewayError(sourceID, action string, err error) *GatewayError {
	return &GatewayError{SourceID: sourceID, Action: action, Message: err.Error(), Err: err}
}

// Gateway maps items to notes and writes them idempotently
type Gateway struct {
	store      Store
	deck       string
	basicModel string
	vocabModel string
}

// GatewayOption allows configuring the Gateway
type GatewayOption func(*Gateway)

// WithDeck sets the deck new notes go to
func WithDeck(deck string) GatewayOption {
	return func(g *Gateway) {
		if deck != "" {
			g.deck = deck
		}
	}
}

// WithBasicModel sets the note type used for front/back cards
func WithBasicModel(model string) GatewayOption {
	return func(g *Gateway) {
		if model != "" {
			g.basicModel = model
		}
	}
}

// WithVocabModel sets the note type used for definitions
func WithVocabModel(model string) GatewayOption {
	return func(g *Gateway) {
		if model != "" {
			g.vocabModel = model
		}
	}
}

// NewGateway creates a Gateway writing to store
func NewGateway(store Store, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		store:      store,
		deck:       DefaultDeck,
		basicModel: DefaultBasicModel,
		vocabModel: DefaultVocabModel,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Record maps an item to the note that represents it
func (g *Gateway) Record(it synth.Item) Record {
	ref := it.Reference()
	rec := Record{
		DeckName:  g.deck,
		ModelName: g.basicModel,
		Tags:      []string{tag, string(it.Kind())},
		SourceID:  ref.ID,
	}

	front := func(body string) string {
		title := titleHTML(ref.Title)
		if title == "" {
			return body
		}
		return title + "<br>" + body
	}

	switch v := it.(type) {
	case synth.Definition:
		rec.ModelName = g.vocabModel
		examples := make([]string, 0, len(v.Examples))
		for _, ex := range v.Examples {
			examples = append(examples, text(ex))
		}
		rec.Fields = map[string]string{
			"Word":       text(v.Word),
			"Definition": text(v.Definition),
			"Examples":   strings.Join(examples, "<br>"),
		}
		if ref.ID != "" {
			rec.Fields["SourceId"] = ref.ID
		}
		return rec
	case synth.Flashcard:
		rec.Fields = basicFields(front(text(v.Question)), text(v.Answer), ref.ID)
	case synth.Highlight:
		rec.Fields = basicFields(front(text(v.Passage)), sourceLink(ref.URI), ref.ID)
	case synth.Todo:
		rec.Fields = basicFields(front("TODO: "+text(v.Description)), sourceLink(ref.URI), ref.ID)
	case synth.Note:
		rec.Fields = basicFields(front(text(v.Passage)), text(v.Note), ref.ID)
	default:
		rec.Fields = basicFields("", "", ref.ID)
	}
	return rec
}

// Upsert writes one item: the note keyed by its source id is updated when
// present and created otherwise. Definitions without a key are always
// created.
func (g *Gateway) Upsert(ctx context.Context, it synth.Item) (Result, error) {
	rec := g.Record(it)
	res := Result{SourceID: rec.SourceID, Kind: it.Kind(), Outcome: OutcomeFailed}

	if rec.SourceID == "" {
		if it.Kind() != synth.KindDefinition {
			return res, gatewayError("", "validate", ErrNoSourceID)
		}
		return g.create(ctx, rec, res)
	}

	ids, err := g.store.Lookup(ctx, rec.SourceID)
	if err != nil {
		return res, gatewayError(rec.SourceID, "lookup", err)
	}
	if len(ids) == 0 {
		return g.create(ctx, rec, res)
	}
	if len(ids) > 1 {
		logging.From(ctx).Warn("multiple notes share a source id, updating the first",
			"source_id", rec.SourceID, "notes", ids)
	}

	if err := g.store.Update(ctx, ids[0], rec); err != nil {
		return res, gatewayError(rec.SourceID, "update", err)
	}
	res.Outcome = OutcomeUpdated
	res.NoteID = ids[0]
	return res, nil
}

func (g *Gateway) create(ctx context.Context, rec Record, res Result) (Result, error) {
	id, err := g.store.Create(ctx, rec)
	if err != nil {
		return res, gatewayError(rec.SourceID, "create", err)
	}
	res.Outcome = OutcomeCreated
	res.NoteID = id
	return res, nil
}

// UpsertAll writes items one at a time. A failing item never stops the
// batch; its error is collected and the next item is attempted. When
// progress is non-nil a Progress is sent per item and the channel is
// closed on return.
func (g *Gateway) UpsertAll(ctx context.Context, items []synth.Item, progress chan<- Progress) ([]Result, []error) {
	if progress != nil {
		defer close(progress)
	}
	logger := logging.From(ctx)

	results := make([]Result, 0, len(items))
	var errs []error
	for i, it := range items {
		res, err := g.Upsert(ctx, it)
		results = append(results, res)
		if err != nil {
			logger.Error("upsert failed", "source_id", res.SourceID, "kind", res.Kind, "error", err)
			errs = append(errs, err)
		} else {
			logger.Debug("upserted item", "source_id", res.SourceID, "outcome", res.Outcome, "note", res.NoteID)
		}

		if progress != nil {
			progress <- Progress{
				Current:  i + 1,
				Total:    len(items),
				SourceID: res.SourceID,
				Outcome:  res.Outcome,
				Err:      err,
			}
		}
	}
	return results, errs
}

func basicFields(front, back, sourceID string) map[string]string {
	return map[string]string{
		"Front":    front,
		"Back":     back,
		"SourceId": sourceID,
	}
}

func titleHTML(title string) string {
	if title == "" {
		return ""
	}
	return `<i style="font-size: 0.9rem; color: rgba(0, 0, 0, 0.5)">` + html.EscapeString(title) + `</i>`
}

func sourceLink(uri string) string {
	if uri == "" {
		return ""
	}
	escaped := html.EscapeString(uri)
	return `<a href="` + escaped + `">` + escaped + `</a>`
}

// text escapes plain text for a note field, keeping line breaks
func text(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
}
