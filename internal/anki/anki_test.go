package anki

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mcao2/readwise-ankify/internal/synth"
)

// fakeAnki is an in-memory AnkiConnect that understands the actions the
// client uses
type fakeAnki struct {
	mu     sync.Mutex
	nextID int64
	notes  map[int64]map[string]string
	calls  []string
}

func newFakeAnki() *fakeAnki {
	return &fakeAnki{nextID: 1000, notes: make(map[int64]map[string]string)}
}

func (f *fakeAnki) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var req struct {
		Action  string          `json:"action"`
		Version int             `json:"version"`
		Params  json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.calls = append(f.calls, req.Action)

	reply := func(result any, errMsg string) {
		resp := map[string]any{"result": result, "error": nil}
		if errMsg != "" {
			resp["error"] = errMsg
		}
		json.NewEncoder(w).Encode(resp)
	}

	if req.Version != 6 {
		reply(nil, "unsupported version")
		return
	}

	switch req.Action {
	case "version":
		reply(6, "")
	case "findNotes":
		var p struct {
			Query string `json:"query"`
		}
		json.Unmarshal(req.Params, &p)
		key := strings.TrimPrefix(strings.Trim(p.Query, `"`), "SourceId:")
		ids := []int64{}
		for id, fields := range f.notes {
			if fields["SourceId"] == key {
				ids = append(ids, id)
			}
		}
		reply(ids, "")
	case "addNote":
		var p struct {
			Note noteParams `json:"note"`
		}
		json.Unmarshal(req.Params, &p)
		if p.Note.Fields["Front"] == "boom" {
			reply(nil, "cannot create note because it is a duplicate")
			return
		}
		f.nextID++
		f.notes[f.nextID] = p.Note.Fields
		reply(f.nextID, "")
	case "updateNoteFields":
		var p struct {
			Note noteParams `json:"note"`
		}
		json.Unmarshal(req.Params, &p)
		if _, ok := f.notes[p.Note.ID]; !ok {
			reply(nil, "note was not found")
			return
		}
		f.notes[p.Note.ID] = p.Note.Fields
		reply(nil, "")
	default:
		reply(nil, "unsupported action")
	}
}

func newTestGateway(t *testing.T) (*Gateway, *fakeAnki) {
	t.Helper()
	fake := newFakeAnki()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client := NewClient(WithURL(server.URL))
	return NewGateway(client), fake
}

func TestClientVersion(t *testing.T) {
	server := httptest.NewServer(newFakeAnki())
	defer server.Close()

	v, err := NewClient(WithURL(server.URL)).Version(context.Background())
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if v != 6 {
		t.Errorf("Version = %d, want 6", v)
	}
}

func TestClientActionError(t *testing.T) {
	server := httptest.NewServer(newFakeAnki())
	defer server.Close()

	err := NewClient(WithURL(server.URL)).Invoke(context.Background(), "deleteDecks", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "unsupported action") {
		t.Errorf("expected action error, got %v", err)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	gw, fake := newTestGateway(t)
	ctx := context.Background()

	card := synth.Flashcard{
		Ref:      synth.Ref{ID: "highlight-a1", Title: "Diaspora"},
		Question: "What is a gleisner?",
		Answer:   "A robot",
	}

	first, err := gw.Upsert(ctx, card)
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if first.Outcome != OutcomeCreated {
		t.Errorf("first outcome = %s, want created", first.Outcome)
	}

	card.Answer = "A robot body"
	second, err := gw.Upsert(ctx, card)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if second.Outcome != OutcomeUpdated || second.NoteID != first.NoteID {
		t.Errorf("expected update of note %d, got %+v", first.NoteID, second)
	}
	if len(fake.notes) != 1 {
		t.Errorf("expected one note after two upserts, got %d", len(fake.notes))
	}
	if fake.notes[first.NoteID]["Back"] != "A robot body" {
		t.Errorf("expected updated answer, got %q", fake.notes[first.NoteID]["Back"])
	}
}

func TestUpsertWithoutSourceID(t *testing.T) {
	gw, fake := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.Upsert(ctx, synth.Todo{Description: "orphan"})
	if !errors.Is(err, ErrNoSourceID) {
		t.Fatalf("expected ErrNoSourceID, got %v", err)
	}
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Action != "validate" {
		t.Errorf("expected validate GatewayError, got %v", err)
	}

	res, err := gw.Upsert(ctx, synth.Definition{Word: "Whorl", Definition: "A spiral"})
	if err != nil {
		t.Fatalf("unkeyed definition should be inserted: %v", err)
	}
	if res.Outcome != OutcomeCreated {
		t.Errorf("outcome = %s, want created", res.Outcome)
	}
	for _, c := range fake.calls {
		if c == "findNotes" {
			t.Error("unkeyed definition must not be looked up")
		}
	}
}

func TestUpsertAllContinuesAfterFailure(t *testing.T) {
	gw, _ := newTestGateway(t)

	items := []synth.Item{
		synth.Flashcard{Ref: synth.Ref{ID: "highlight-1"}, Question: "one"},
		synth.Highlight{Ref: synth.Ref{ID: "highlight-2"}, Passage: "boom"},
		synth.Note{Passage: "no key"},
		synth.Todo{Ref: synth.Ref{ID: "highlight-4"}, Description: "last"},
	}

	progress := make(chan Progress, len(items))
	results, errs := gw.UpsertAll(context.Background(), items, progress)

	if len(results) != 4 {
		t.Fatalf("expected every item to be attempted, got %d results", len(results))
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}

	var outcomes []Outcome
	for p := range progress {
		outcomes = append(outcomes, p.Outcome)
	}
	want := []Outcome{OutcomeCreated, OutcomeFailed, OutcomeFailed, OutcomeCreated}
	if diff := cmp.Diff(want, outcomes); diff != "" {
		t.Errorf("progress outcomes mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordMapping(t *testing.T) {
	gw := NewGateway(nil, WithDeck("Books"), WithVocabModel("Vocab"))

	t.Run("flashcard", func(t *testing.T) {
		rec := gw.Record(synth.Flashcard{
			Ref:      synth.Ref{ID: "highlight-a1", Title: "Tom & Jerry"},
			Question: "Is 1 < 2?\nReally?",
			Answer:   "yes",
		})
		if rec.DeckName != "Books" || rec.ModelName != DefaultBasicModel {
			t.Errorf("unexpected deck/model %q %q", rec.DeckName, rec.ModelName)
		}
		if !strings.Contains(rec.Fields["Front"], "Tom &amp; Jerry</i><br>Is 1 &lt; 2?<br>Really?") {
			t.Errorf("unexpected front %q", rec.Fields["Front"])
		}
		if rec.Fields["SourceId"] != "highlight-a1" {
			t.Errorf("unexpected source id %q", rec.Fields["SourceId"])
		}
		if diff := cmp.Diff([]string{"ankify", "flashcard"}, rec.Tags); diff != "" {
			t.Errorf("tags mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("definition", func(t *testing.T) {
		rec := gw.Record(synth.Definition{
			Word:       "Whorl",
			Definition: "A spiral",
			Examples:   []string{"one {whorl}", "two"},
		})
		want := map[string]string{
			"Word":       "Whorl",
			"Definition": "A spiral",
			"Examples":   "one {whorl}<br>two",
		}
		if rec.ModelName != "Vocab" {
			t.Errorf("model = %q, want Vocab", rec.ModelName)
		}
		if diff := cmp.Diff(want, rec.Fields); diff != "" {
			t.Errorf("fields mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSourceQuery(t *testing.T) {
	tests := map[string]string{
		"highlight-a1": "SourceId:highlight-a1",
		"author-b 1":   `"SourceId:author-b 1"`,
	}
	for in, want := range tests {
		if got := SourceQuery(in); got != want {
			t.Errorf("SourceQuery(%q) = %q, want %q", in, got, want)
		}
	}
}
