// Package cli implements the ankify command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcao2/readwise-ankify/internal/config"
	"github.com/mcao2/readwise-ankify/internal/logging"
)

var (
	configPath string
	verbose    bool

	// set by PersistentPreRunE
	cfg     *config.Config
	logger  *slog.Logger
	closers []io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "ankify",
	Short: "Turn reading highlights and notes into Anki flashcards",
	Long: `ankify captures highlights from the Kindle notebook or Readwise, works out
what each note asks for (a flashcard, a definition, a todo...) and upserts the
resulting cards into Anki through AnkiConnect. Only annotations that were not
processed before are handled.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		for _, c := range closers {
			c.Close()
		}
		closers = nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $ANKIFY_CONFIG or ~/.config/readwise-ankify/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func setup(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		path = config.ConfigPath()
	}

	loaded, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}

	if cfg.LogFile != "" {
		var closer io.Closer
		logger, closer = logging.NewFile(level, logging.FileOptions{Path: cfg.LogFile})
		closers = append(closers, closer)
	} else {
		logger = logging.New(level, cmd.ErrOrStderr())
	}
	logging.SetDefault(logger)

	cmd.SetContext(logging.With(cmd.Context(), logger))
	return nil
}

// Execute runs the root command with a context cancelled on SIGINT or
// SIGTERM and returns the process exit code
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
