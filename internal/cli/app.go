package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mcao2/readwise-ankify/internal/anki"
	"github.com/mcao2/readwise-ankify/internal/config"
	"github.com/mcao2/readwise-ankify/internal/journal"
	"github.com/mcao2/readwise-ankify/internal/kindle"
	"github.com/mcao2/readwise-ankify/internal/llm"
	"github.com/mcao2/readwise-ankify/internal/logging"
	"github.com/mcao2/readwise-ankify/internal/pipeline"
	"github.com/mcao2/readwise-ankify/internal/readwise"
	"github.com/mcao2/readwise-ankify/internal/snapshot"
	"github.com/mcao2/readwise-ankify/internal/synth"
	"github.com/mcao2/readwise-ankify/internal/ui"
)

// runFlags are shared by the commands that upsert
type runFlags struct {
	dryRun     bool
	yes        bool
	copyPrompt bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "preview the items without calling the backend, writing notes or moving the checkpoint")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "do not ask for confirmation before writing to Anki")
	cmd.Flags().BoolVar(&f.copyPrompt, "copy-prompt", false, "copy the generation prompt to the clipboard instead of calling the backend")
}

// interactive reports whether both stdin and stdout are terminals
func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// newCompleter returns the configured completion backend, or nil
func newCompleter(cfg *config.Config) (synth.Completer, error) {
	if !cfg.HasLLM() {
		return nil, nil
	}
	llmCfg := cfg.GetLLMConfig()
	client, err := llm.NewClient(llmCfg.Provider, llmCfg.APIKey,
		llm.WithModel(llmCfg.Model),
		llm.WithBaseURL(llmCfg.BaseURL),
		llm.WithMaxAttempts(llmCfg.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}
	return client, nil
}

// app holds the components of one command invocation
type app struct {
	cfg       *config.Config
	snapshots *snapshot.Store
	journal   *journal.Journal
	anki      *anki.Client
}

func openApp(cfg *config.Config) (*app, error) {
	snapshots, err := snapshot.NewStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	j, err := journal.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:       cfg,
		snapshots: snapshots,
		journal:   j,
		anki:      anki.NewClient(anki.WithURL(cfg.Anki.URL)),
	}, nil
}

func (a *app) Close() error {
	return a.journal.Close()
}

// runner wires a pipeline for the given flags. Runs that write to Anki
// check that AnkiConnect answers before anything else happens.
func (a *app) runner(ctx context.Context, flags runFlags, opts ...pipeline.Option) (*pipeline.Runner, error) {
	logger := logging.From(ctx)

	synthOpts := []synth.Option{
		synth.WithDictionary(a.journal),
		synth.WithBatchSize(a.cfg.LLM.BatchSize),
	}
	writes := !flags.dryRun && !flags.copyPrompt
	if writes {
		completer, err := newCompleter(a.cfg)
		if err != nil {
			return nil, err
		}
		if completer != nil {
			synthOpts = append(synthOpts, synth.WithCompleter(completer))
		} else {
			logger.Warn("no completion backend configured, generated cards will be left blank")
		}

		version, err := a.anki.Version(ctx)
		if err != nil {
			return nil, fmt.Errorf("AnkiConnect is not reachable at %s: %w", a.cfg.Anki.URL, err)
		}
		logger.Debug("connected to AnkiConnect", "version", version)
	}

	gateway := anki.NewGateway(a.anki,
		anki.WithDeck(a.cfg.Anki.Deck),
		anki.WithBasicModel(a.cfg.Anki.BasicModel),
		anki.WithVocabModel(a.cfg.Anki.VocabModel),
	)

	opts = append([]pipeline.Option{
		pipeline.WithJournal(a.journal),
		pipeline.WithPrompt(func(prompt string) error {
			dest, err := ui.CopyPrompt(prompt)
			if err != nil {
				return err
			}
			logger.Info("copied generation prompt", "to", dest)
			return nil
		}),
	}, opts...)

	if writes && interactive() {
		opts = append(opts, pipeline.WithProgress(ui.RunProgress))
		if !flags.yes {
			opts = append(opts, pipeline.WithConfirm(ui.ConfirmUpsert))
		}
	}

	return pipeline.New(a.snapshots, synth.New(synthOpts...), gateway,
		config.NewCheckpointStore(a.cfg.CheckpointPath()), opts...), nil
}

func newNotebook(cfg *config.Config) *kindle.Notebook {
	return kindle.NewNotebook(kindle.Config{
		User:        cfg.Kindle.User,
		Password:    cfg.Kindle.Password,
		NotebookURL: cfg.Kindle.NotebookURL,
		BookLimit:   cfg.Kindle.BookLimit,
		Headless:    cfg.Kindle.Headless,
		RemoteURL:   cfg.Kindle.RemoteURL,
	})
}

func newReadwise(cfg *config.Config) (*readwise.Client, error) {
	var opts []readwise.ClientOption
	if cfg.ReadwiseURL != "" {
		opts = append(opts, readwise.WithBaseURL(cfg.ReadwiseURL))
	}
	return readwise.NewClient(cfg.ReadwiseToken, opts...)
}
