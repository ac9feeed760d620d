// Package pipeline wires capture, change detection, synthesis and upsert
// into the runs exposed by the command line. The watermark is committed
// only after every item has been attempted.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcao2/readwise-ankify/internal/anki"
	"github.com/mcao2/readwise-ankify/internal/changes"
	"github.com/mcao2/readwise-ankify/internal/config"
	"github.com/mcao2/readwise-ankify/internal/intent"
	"github.com/mcao2/readwise-ankify/internal/journal"
	"github.com/mcao2/readwise-ankify/internal/library"
	"github.com/mcao2/readwise-ankify/internal/logging"
	"github.com/mcao2/readwise-ankify/internal/snapshot"
	"github.com/mcao2/readwise-ankify/internal/synth"
)

// Run modes, as recorded in the journal
const (
	ModeCapture  = "capture-snapshot"
	ModeSnapshot = "diff-and-ankify-latest"
	ModeRecent   = "ankify-recent"
)

// ErrNoSource is returned when a run needs a source that was not configured
var ErrNoSource = errors.New("no library source configured")

// Source captures a full library snapshot (the Kindle notebook)
type Source interface {
	Capture(ctx context.Context) (*library.Snapshot, error)
}

// Fetcher returns the annotations made after a point in time (Readwise)
type Fetcher interface {
	Recent(ctx context.Context, since time.Time) (*library.Snapshot, error)
}

// Upserter writes items to the flashcard store
type Upserter interface {
	UpsertAll(ctx context.Context, items []synth.Item, progress chan<- anki.Progress) ([]anki.Result, []error)
}

// Checkpoints loads and commits the watermark
type Checkpoints interface {
	Load() (*config.Checkpoint, error)
	Save(cp *config.Checkpoint) error
}

// Journal records runs. *journal.Journal implements it.
type Journal interface {
	StartRun(ctx context.Context, mode string, dryRun bool) (*journal.Run, error)
	FinishRun(ctx context.Context, run *journal.Run) error
	RecordUpsert(ctx context.Context, runID string, u journal.Upsert) error
}

// ConfirmFunc is asked before anything is written. Returning false cancels
// the run without committing.
type ConfirmFunc func(ctx context.Context, events []changes.Event, items []synth.Item) (bool, error)

// ProgressFunc consumes upsert progress. It must drain updates until the
// channel is closed.
type ProgressFunc func(total int, updates <-chan anki.Progress)

// PromptFunc receives the manual prompt in copy-prompt mode
type PromptFunc func(prompt string) error

// Options selects how a run behaves
type Options struct {
	// DryRun previews the items without calling the backend, writing notes
	// or committing the watermark
	DryRun bool
	// CopyPrompt hands the batch prompt to the PromptFunc instead of
	// calling the backend. Nothing is written or committed.
	CopyPrompt bool
	// Initial treats a lone snapshot as entirely new
	Initial bool
	// Since overrides the checkpoint in recent mode
	Since time.Time
}

// Report is the outcome of a run
type Report struct {
	RunID     string
	Mode      string
	Snapshot  string
	Since     time.Time
	Events    []changes.Event
	Items     []synth.Item
	Results   []anki.Result
	Errors    []error
	Prompt    string
	Cancelled bool
	Committed bool
}

// Counts tallies results by outcome
func (r *Report) Counts() (created, updated, failed int) {
	for _, res := range r.Results {
		switch res.Outcome {
		case anki.OutcomeCreated:
			created++
		case anki.OutcomeUpdated:
			updated++
		default:
			failed++
		}
	}
	return created, updated, failed
}

// Runner executes pipeline runs
type Runner struct {
	snapshots   *snapshot.Store
	source      Source
	fetcher     Fetcher
	synth       *synth.Synthesizer
	upserter    Upserter
	checkpoints Checkpoints
	journal     Journal
	confirm     ConfirmFunc
	progress    ProgressFunc
	prompt      PromptFunc
	now         func() time.Time
}

// Option configures a Runner
type Option func(*Runner)

// WithSource sets the snapshot source used by CaptureSnapshot
func WithSource(s Source) Option {
	return func(r *Runner) {
		r.source = s
	}
}

// WithFetcher sets the source used by Recent
func WithFetcher(f Fetcher) Option {
	return func(r *Runner) {
		r.fetcher = f
	}
}

// WithJournal records every run
func WithJournal(j Journal) Option {
	return func(r *Runner) {
		r.journal = j
	}
}

// WithConfirm asks before writing
func WithConfirm(fn ConfirmFunc) Option {
	return func(r *Runner) {
		r.confirm = fn
	}
}

// WithProgress reports upsert progress
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) {
		r.progress = fn
	}
}

// WithPrompt sets where copy-prompt mode sends the prompt
func WithPrompt(fn PromptFunc) Option {
	return func(r *Runner) {
		r.prompt = fn
	}
}

// New creates a Runner
func New(snapshots *snapshot.Store, s *synth.Synthesizer, upserter Upserter, checkpoints Checkpoints, opts ...Option) *Runner {
	r := &Runner{
		snapshots:   snapshots,
		synth:       s,
		upserter:    upserter,
		checkpoints: checkpoints,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CaptureSnapshot captures the library and stores it as a new snapshot.
// It returns the snapshot's file name.
func (r *Runner) CaptureSnapshot(ctx context.Context) (string, error) {
	if r.source == nil {
		return "", ErrNoSource
	}
	run := r.startRun(ctx, ModeCapture, false)

	snap, err := r.source.Capture(ctx)
	if err != nil {
		r.finishRun(ctx, run, fmt.Errorf("capture failed: %w", err))
		return "", fmt.Errorf("capture failed: %w", err)
	}

	name, err := r.snapshots.Save(snap)
	if err != nil {
		r.finishRun(ctx, run, err)
		return "", err
	}

	logging.From(ctx).Info("saved snapshot", "file", name,
		"books", len(snap.Books), "annotations", snap.AnnotationCount())
	if run != nil {
		run.Snapshot = name
	}
	r.finishRun(ctx, run, nil)
	return name, nil
}

// DiffLatest diffs the two newest snapshots and upserts everything new.
// The newest snapshot name becomes the watermark, so running it again
// without a new capture does nothing.
func (r *Runner) DiffLatest(ctx context.Context, opts Options) (*Report, error) {
	logger := logging.From(ctx)

	cp, err := r.checkpoints.Load()
	if err != nil {
		return nil, err
	}

	curr, prev, err := r.snapshots.LatestPair()
	if errors.Is(err, snapshot.ErrInsufficientHistory) && opts.Initial {
		curr, err = r.snapshots.Latest()
		prev = snapshot.Entry{}
	}
	if err != nil {
		return nil, err
	}

	report := &Report{Mode: ModeSnapshot, Snapshot: curr.Name}
	if cp.LastSnapshot == curr.Name {
		logger.Info("latest snapshot already processed", "snapshot", curr.Name)
		return report, nil
	}

	report.Events = changes.Diff(curr.Snapshot, prev.Snapshot)
	summary := changes.Summarize(report.Events)
	logger.Info("diffed snapshots", "current", curr.Name, "previous", prev.Name,
		"new_books", summary.NewBooks, "new_annotations", summary.NewAnnotations)

	commit := func() error {
		cp.LastSnapshot = curr.Name
		return r.checkpoints.Save(cp)
	}
	return report, r.process(ctx, report, opts, commit)
}

// Recent fetches annotations made since the checkpoint (or opts.Since)
// and upserts them. The watermark is the time the run started.
func (r *Runner) Recent(ctx context.Context, opts Options) (*Report, error) {
	if r.fetcher == nil {
		return nil, ErrNoSource
	}
	logger := logging.From(ctx)

	cp, err := r.checkpoints.Load()
	if err != nil {
		return nil, err
	}

	since := opts.Since
	if since.IsZero() && cp.LastRun != nil {
		since = *cp.LastRun
	}
	started := r.now().UTC()

	snap, err := r.fetcher.Recent(ctx, since)
	if err != nil {
		return nil, err
	}

	report := &Report{Mode: ModeRecent, Since: since}
	report.Events = changes.Diff(snap, nil)
	logger.Info("fetched recent annotations", "since", since, "books", len(snap.Books), "annotations", snap.AnnotationCount())

	commit := func() error {
		cp.LastRun = &started
		return r.checkpoints.Save(cp)
	}
	return report, r.process(ctx, report, opts, commit)
}

func (r *Runner) process(ctx context.Context, report *Report, opts Options, commit func() error) (err error) {
	logger := logging.From(ctx)

	run := r.startRun(ctx, report.Mode, opts.DryRun || opts.CopyPrompt)
	if run != nil {
		report.RunID = run.ID
		run.Snapshot = report.Snapshot
		run.Events = len(report.Events)
	}
	defer func() {
		if run != nil {
			run.Items = len(report.Items)
			run.Created, run.Updated, run.Failed = report.Counts()
		}
		r.finishRun(ctx, run, err)
	}()

	inputs, deterministic := Inputs(report.Events)
	plan := r.synth.Plan(ctx, inputs)

	switch {
	case opts.CopyPrompt:
		if len(plan.Requests) == 0 {
			logger.Info("no annotations need generation, nothing to copy")
			return nil
		}
		report.Prompt = synth.ManualPrompt(plan.Requests)
		if r.prompt != nil {
			if err := r.prompt(report.Prompt); err != nil {
				return fmt.Errorf("failed to hand off prompt: %w", err)
			}
		}
		report.Items = append(append(deterministic, plan.Items...), synth.Fallback(plan.Requests)...)
		return nil

	case opts.DryRun:
		report.Items = append(append(deterministic, plan.Items...), synth.Fallback(plan.Requests)...)
		return nil
	}

	generated, err := r.synth.Generate(ctx, plan.Requests)
	if err != nil {
		return err
	}
	report.Items = append(append(deterministic, plan.Items...), generated...)

	if r.confirm != nil && len(report.Items) > 0 {
		ok, err := r.confirm(ctx, report.Events, report.Items)
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("run cancelled before upsert")
			report.Cancelled = true
			return nil
		}
	}

	report.Results, report.Errors = r.upsert(ctx, report.Items)
	r.recordUpserts(ctx, run, report)

	// items skipped by a cancelled context were never attempted
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted, checkpoint not moved: %w", err)
	}

	if err := commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	report.Committed = true

	created, updated, failed := report.Counts()
	logger.Info("run finished", "created", created, "updated", updated, "failed", failed)
	return nil
}

func (r *Runner) upsert(ctx context.Context, items []synth.Item) ([]anki.Result, []error) {
	if len(items) == 0 {
		return nil, nil
	}
	if r.progress == nil {
		return r.upserter.UpsertAll(ctx, items, nil)
	}

	updates := make(chan anki.Progress, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.progress(len(items), updates)
	}()

	results, errs := r.upserter.UpsertAll(ctx, items, updates)
	<-done
	return results, errs
}

// Inputs classifies the annotations covered by events. Author cards for
// new books are returned separately since they need no synthesis.
func Inputs(events []changes.Event) ([]synth.Input, []synth.Item) {
	var (
		inputs []synth.Input
		cards  []synth.Item
	)
	for _, ev := range events {
		if ev.Kind == changes.KindNewBook {
			if card, ok := synth.AuthorCard(ev.Book); ok {
				cards = append(cards, card)
			}
		}
		for _, ann := range ev.Annotations() {
			inputs = append(inputs, synth.Input{
				Annotation: ann,
				Book:       ev.Book,
				Intent:     intent.Classify(ann.Note, ann.Highlight),
			})
		}
	}
	return inputs, cards
}

func (r *Runner) startRun(ctx context.Context, mode string, dryRun bool) *journal.Run {
	if r.journal == nil {
		return nil
	}
	run, err := r.journal.StartRun(ctx, mode, dryRun)
	if err != nil {
		logging.From(ctx).Warn("failed to record run", "error", err)
		return nil
	}
	return run
}

func (r *Runner) finishRun(ctx context.Context, run *journal.Run, err error) {
	if r.journal == nil || run == nil {
		return
	}
	if err != nil {
		run.Status = journal.StatusFailed
		run.Error = err.Error()
	}
	// the run context may already be cancelled
	if ferr := r.journal.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
		logging.From(ctx).Warn("failed to record run result", "error", ferr)
	}
}

func (r *Runner) recordUpserts(ctx context.Context, run *journal.Run, report *Report) {
	if r.journal == nil || run == nil {
		return
	}
	errs := report.Errors
	for _, res := range report.Results {
		u := journal.Upsert{
			SourceID: res.SourceID,
			Kind:     string(res.Kind),
			Outcome:  string(res.Outcome),
			NoteID:   res.NoteID,
		}
		// failed results and errors come back in the same order
		if res.Outcome == anki.OutcomeFailed && len(errs) > 0 {
			u.Error = errs[0].Error()
			errs = errs[1:]
		}
		if err := r.journal.RecordUpsert(context.WithoutCancel(ctx), run.ID, u); err != nil {
			logging.From(ctx).Warn("failed to record upsert", "source_id", res.SourceID, "error", err)
		}
	}
}
