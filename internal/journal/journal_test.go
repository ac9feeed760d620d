package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mcao2/readwise-ankify/internal/synth"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenIsReentrant(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if first.Path() != filepath.Join(dir, "journal.db") {
		t.Errorf("unexpected path %q", first.Path())
	}
	first.Close()

	second, err := Open(dir)
	if err != nil {
		t.Fatalf("reopening an existing journal failed: %v", err)
	}
	second.Close()
}

func TestRunLifecycle(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	run, err := j.StartRun(ctx, "diff-latest", false)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if run.ID == "" || run.Status != StatusRunning {
		t.Fatalf("unexpected run %+v", run)
	}

	upserts := []Upsert{
		{SourceID: "highlight-1", Kind: "flashcard", Outcome: "created", NoteID: 11},
		{SourceID: "highlight-2", Kind: "note", Outcome: "failed", Error: "boom"},
	}
	for _, u := range upserts {
		if err := j.RecordUpsert(ctx, run.ID, u); err != nil {
			t.Fatalf("RecordUpsert failed: %v", err)
		}
	}

	run.Snapshot = "books-2024-01-01T00:00:00.000Z.json"
	run.Events, run.Items, run.Created, run.Failed = 2, 2, 1, 1
	if err := j.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := j.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.Status != StatusCompleted || got.Created != 1 || got.Failed != 1 || got.Snapshot != run.Snapshot {
		t.Errorf("unexpected stored run %+v", got)
	}
	if got.FinishedAt.IsZero() || got.StartedAt.IsZero() {
		t.Error("expected timestamps to round trip")
	}

	stored, err := j.Upserts(ctx, run.ID)
	if err != nil {
		t.Fatalf("Upserts failed: %v", err)
	}
	if diff := cmp.Diff(upserts, stored); diff != "" {
		t.Errorf("upserts mismatch (-want +got):\n%s", diff)
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	var ids []string
	for _, mode := range []string{"a", "b", "c"} {
		run, err := j.StartRun(ctx, mode, true)
		if err != nil {
			t.Fatalf("StartRun failed: %v", err)
		}
		ids = append(ids, run.ID)
	}

	runs, err := j.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected limit to apply, got %d runs", len(runs))
	}
	if runs[0].ID != ids[2] || !runs[0].DryRun {
		t.Errorf("expected newest dry run first, got %+v", runs[0])
	}
}

func TestDefinitionCache(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if _, ok, err := j.LookupDefinition(ctx, "Whorl"); err != nil || ok {
		t.Fatalf("expected miss on empty cache, got ok=%v err=%v", ok, err)
	}

	def := synth.Definition{Word: "Whorl", Definition: "A spiral.", Examples: []string{"A {whorl}."}}
	if err := j.SaveDefinition(ctx, def); err != nil {
		t.Fatalf("SaveDefinition failed: %v", err)
	}

	got, ok, err := j.LookupDefinition(ctx, "whorl")
	if err != nil || !ok {
		t.Fatalf("expected case-insensitive hit, got ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(def, got); diff != "" {
		t.Errorf("definition mismatch (-want +got):\n%s", diff)
	}

	def.Definition = "A pattern of spirals."
	def.Examples = nil
	if err := j.SaveDefinition(ctx, def); err != nil {
		t.Fatalf("overwriting definition failed: %v", err)
	}
	got, _, _ = j.LookupDefinition(ctx, "Whorl")
	if got.Definition != "A pattern of spirals." || len(got.Examples) != 0 {
		t.Errorf("expected overwritten definition, got %+v", got)
	}
}
