// Package synth turns classified annotations into typed study items.
package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcao2/readwise-ankify/internal/intent"
	"github.com/mcao2/readwise-ankify/internal/library"
	"github.com/mcao2/readwise-ankify/internal/logging"
)

// Request is one piece of generative work. Key is the idempotency key the
// resulting item should carry; the backend is asked to echo it back.
type Request struct {
	Key   string
	Input Input
	Pair  int // index into Intent.Pairs for an unanswered question, -1 otherwise
}

// Plan splits a run's inputs into items that are already known and the
// requests that need the completion backend
type Plan struct {
	Items    []Item
	Requests []Request
}

// Synthesizer produces items from classified annotations
type Synthesizer struct {
	completer Completer
	dict      Dictionary
	batchSize int
}

// Option configures a Synthesizer
type Option func(*Synthesizer)

// WithCompleter sets the completion backend. Without one, generative
// requests fall back to deterministic items.
func WithCompleter(c Completer) Option {
	return func(s *Synthesizer) {
		s.completer = c
	}
}

// WithDictionary sets the local definition source
func WithDictionary(d Dictionary) Option {
	return func(s *Synthesizer) {
		s.dict = d
	}
}

// WithBatchSize caps the number of requests per completion call (0 = no cap)
func WithBatchSize(n int) Option {
	return func(s *Synthesizer) {
		if n >= 0 {
			s.batchSize = n
		}
	}
}

// New creates a Synthesizer
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasBackend reports whether a completion backend is configured
func (s *Synthesizer) HasBackend() bool {
	return s.completer != nil
}

// Synthesize converts inputs into items. A backend failure aborts the
// whole call; nothing partial is returned.
func (s *Synthesizer) Synthesize(ctx context.Context, inputs []Input) ([]Item, error) {
	plan := s.Plan(ctx, inputs)

	generated, err := s.Generate(ctx, plan.Requests)
	if err != nil {
		return nil, err
	}
	return append(plan.Items, generated...), nil
}

// Plan resolves everything that can be decided without the backend
func (s *Synthesizer) Plan(ctx context.Context, inputs []Input) Plan {
	logger := logging.From(ctx)
	var plan Plan

	for _, in := range inputs {
		ann, book := in.Annotation, in.Book
		ref := Ref{
			ID:    AnnotationKey(ann.ID, 0),
			URI:   book.AnnotationURI(ann),
			Title: book.Title,
		}

		switch in.Intent.Kind {
		case intent.StructuredQA:
			for i, p := range in.Intent.Pairs {
				key := AnnotationKey(ann.ID, i)
				if p.Answer == "" {
					plan.Requests = append(plan.Requests, Request{Key: key, Input: in, Pair: i})
					continue
				}
				plan.Items = append(plan.Items, Flashcard{
					Ref:      Ref{ID: key, URI: ref.URI, Title: ref.Title},
					Question: p.Question,
					Answer:   p.Answer,
				})
			}

		case intent.Define:
			if def, ok := s.lookup(ctx, in.Intent.Word); ok {
				def.Ref = ref
				def.Word = in.Intent.Word
				plan.Items = append(plan.Items, def)
				continue
			}
			plan.Requests = append(plan.Requests, Request{Key: ref.ID, Input: in, Pair: -1})

		case intent.GenerateFlashcard, intent.FreeNote:
			plan.Requests = append(plan.Requests, Request{Key: ref.ID, Input: in, Pair: -1})

		default:
			logger.Debug("ignoring annotation", "annotation", ann.ID, "rule", in.Intent.Rule)
		}
	}

	return plan
}

// Generate runs the requests through the backend, one call per batch, and
// reconciles the answers with the requests they came from
func (s *Synthesizer) Generate(ctx context.Context, reqs []Request) ([]Item, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	if s.completer == nil {
		return Fallback(reqs), nil
	}

	logger := logging.From(ctx)
	var items []Item
	for _, batch := range s.batches(reqs) {
		logger.Debug("sending batch to completion backend", "requests", len(batch))

		resp, err := s.completer.Complete(ctx, SystemPrompt, BuildPrompt(batch))
		if err != nil {
			return nil, fmt.Errorf("failed to synthesize %d annotations: %w", len(batch), err)
		}

		decoded, warnings := DecodeItems(resp)
		for _, w := range warnings {
			logger.Warn("skipping malformed block in completion", "error", w)
		}
		items = append(items, Reconcile(batch, decoded)...)
	}

	s.remember(ctx, reqs, items)
	return items, nil
}

func (s *Synthesizer) batches(reqs []Request) [][]Request {
	if s.batchSize <= 0 || len(reqs) <= s.batchSize {
		return [][]Request{reqs}
	}
	var out [][]Request
	for start := 0; start < len(reqs); start += s.batchSize {
		end := min(start+s.batchSize, len(reqs))
		out = append(out, reqs[start:end])
	}
	return out
}

func (s *Synthesizer) lookup(ctx context.Context, word string) (Definition, bool) {
	if s.dict == nil || word == "" {
		return Definition{}, false
	}
	def, ok, err := s.dict.LookupDefinition(ctx, word)
	if err != nil {
		logging.From(ctx).Warn("definition lookup failed", "word", word, "error", err)
		return Definition{}, false
	}
	return def, ok
}

// remember caches generated definitions under the dictionary form the
// backend returned and under the headword the annotation was looked up by
func (s *Synthesizer) remember(ctx context.Context, reqs []Request, items []Item) {
	if s.dict == nil {
		return
	}
	headwords := make(map[string]string, len(reqs))
	for _, r := range reqs {
		if r.Input.Intent.Kind == intent.Define {
			headwords[r.Key] = r.Input.Intent.Word
		}
	}

	for _, it := range items {
		def, ok := it.(Definition)
		if !ok || def.Definition == "" {
			continue
		}
		words := []string{def.Word}
		if hw := headwords[def.ID]; hw != "" && !strings.EqualFold(hw, def.Word) {
			words = append(words, hw)
		}
		for _, w := range words {
			if w == "" {
				continue
			}
			entry := def
			entry.Word = w
			if err := s.dict.SaveDefinition(ctx, entry); err != nil {
				logging.From(ctx).Warn("failed to cache definition", "word", w, "error", err)
			}
		}
	}
}

// Reconcile assigns idempotency keys to decoded items. A block is matched
// to its request by the echoed id. Blocks with an unknown id fall back to
// position when the block and request counts agree, otherwise they keep
// an empty id. Repeated ids get -2, -3... suffixes in arrival order,
// skipping suffixes that are the key of another request in the batch.
func Reconcile(reqs []Request, items []Item) []Item {
	byKey := make(map[string]Request, len(reqs))
	for _, r := range reqs {
		byKey[r.Key] = r
	}
	positional := len(items) == len(reqs)
	used := make(map[string]bool)

	out := make([]Item, 0, len(items))
	for i, it := range items {
		ref := it.Reference()

		req, known := byKey[ref.ID]
		switch {
		case known:
		case positional:
			req, known = reqs[i], true
			ref.ID = req.Key
		default:
			ref.ID = ""
		}

		if known {
			if ref.URI == "" {
				ref.URI = req.Input.Book.AnnotationURI(req.Input.Annotation)
			}
			if ref.Title == "" {
				ref.Title = req.Input.Book.Title
			}
		}

		if ref.ID != "" {
			ref.ID = uniqueKey(ref.ID, byKey, used)
			used[ref.ID] = true
		}

		out = append(out, withRef(it, ref))
	}
	return out
}

func uniqueKey(key string, reserved map[string]Request, used map[string]bool) string {
	if !used[key] {
		return key
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", key, n)
		if _, ok := reserved[candidate]; !ok && !used[candidate] {
			return candidate
		}
	}
}

// Fallback turns requests into items without a backend
func Fallback(reqs []Request) []Item {
	items := make([]Item, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, r.Fallback())
	}
	return items
}

// Fallback is the item used for this request when no backend answers
func (r Request) Fallback() Item {
	ann, book := r.Input.Annotation, r.Input.Book
	ref := Ref{ID: r.Key, URI: book.AnnotationURI(ann), Title: book.Title}

	switch r.Input.Intent.Kind {
	case intent.StructuredQA:
		var q string
		if r.Pair >= 0 && r.Pair < len(r.Input.Intent.Pairs) {
			q = r.Input.Intent.Pairs[r.Pair].Question
		}
		return Flashcard{Ref: ref, Question: q}
	case intent.GenerateFlashcard:
		return Flashcard{Ref: ref, Question: ann.Highlight}
	case intent.Define:
		return Definition{Ref: ref, Word: r.Input.Intent.Word}
	default:
		return Note{Ref: ref, Passage: ann.Highlight, Note: ann.Note}
	}
}

func (r Request) note() string {
	in := r.Input.Intent
	switch in.Kind {
	case intent.StructuredQA:
		if r.Pair >= 0 && r.Pair < len(in.Pairs) {
			return "Q: " + in.Pairs[r.Pair].Question + "\nA:"
		}
	case intent.GenerateFlashcard:
		return "q"
	case intent.Define:
		return "d"
	}
	return strings.ReplaceAll(r.Input.Annotation.Note, "<br>", "\n")
}

// AuthorCard builds the "who wrote it" card emitted for a newly seen book
func AuthorCard(book library.Book) (Flashcard, bool) {
	if strings.TrimSpace(book.Author) == "" || strings.TrimSpace(book.Title) == "" {
		return Flashcard{}, false
	}
	return Flashcard{
		Ref:      Ref{ID: AuthorKey(book.ID), URI: book.URI(), Title: book.Title},
		Question: fmt.Sprintf("Who's the author of %s?", book.Title),
		Answer:   book.Author,
	}, true
}

func withRef(it Item, ref Ref) Item {
	switch v := it.(type) {
	case Flashcard:
		v.Ref = ref
		return v
	case Definition:
		v.Ref = ref
		return v
	case Highlight:
		v.Ref = ref
		return v
	case Todo:
		v.Ref = ref
		return v
	case Note:
		v.Ref = ref
		return v
	}
	return it
}
