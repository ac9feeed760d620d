package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one invocation of a pipeline
type Run struct {
	ID         string
	Mode       string
	DryRun     bool
	Status     string
	Snapshot   string
	Events     int
	Items      int
	Created    int
	Updated    int
	Failed     int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Upsert is the journal entry for one attempted item
type Upsert struct {
	SourceID string
	Kind     string
	Outcome  string
	NoteID   int64
	Error    string
}

// StartRun records the start of a run and returns it with a fresh id
func (j *Journal) StartRun(ctx context.Context, mode string, dryRun bool) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Mode:      mode,
		DryRun:    dryRun,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, dry_run, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Mode, boolInt(run.DryRun), run.Status, formatTime(run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}
	return run, nil
}

// FinishRun stores the final counters and status of a run
func (j *Journal) FinishRun(ctx context.Context, run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	if run.Status == StatusRunning || run.Status == "" {
		run.Status = StatusCompleted
	}

	_, err := j.db.ExecContext(ctx, `
		UPDATE runs SET
			status = ?, snapshot = ?, events = ?, items = ?,
			created = ?, updated = ?, failed = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, run.Status, run.Snapshot, run.Events, run.Items,
		run.Created, run.Updated, run.Failed, run.Error, formatTime(run.FinishedAt), run.ID)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	return nil
}

// RecordUpsert appends one attempted item to a run
func (j *Journal) RecordUpsert(ctx context.Context, runID string, u Upsert) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO upserts (run_id, source_id, kind, outcome, note_id, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, u.SourceID, u.Kind, u.Outcome, u.NoteID, u.Error, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("recording upsert: %w", err)
	}
	return nil
}

// Upserts returns the items attempted by a run in the order they were tried
func (j *Journal) Upserts(ctx context.Context, runID string) ([]Upsert, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT source_id, kind, outcome, note_id, error
		FROM upserts WHERE run_id = ? ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying upserts: %w", err)
	}
	defer rows.Close()

	var out []Upsert
	for rows.Next() {
		var u Upsert
		if err := rows.Scan(&u.SourceID, &u.Kind, &u.Outcome, &u.NoteID, &u.Error); err != nil {
			return nil, fmt.Errorf("scanning upsert: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// RecentRuns returns the latest runs, newest first
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, mode, dry_run, status, snapshot, events, items,
			created, updated, failed, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			dryRun            int
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Mode, &dryRun, &r.Status, &r.Snapshot, &r.Events, &r.Items,
			&r.Created, &r.Updated, &r.Failed, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.DryRun = dryRun != 0
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
