package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcao2/readwise-ankify/internal/pipeline"
	"github.com/mcao2/readwise-ankify/internal/synth"
)

var captureLimit int

var captureCmd = &cobra.Command{
	Use:   "capture-snapshot",
	Short: "Capture the Kindle notebook into a new snapshot",
	Long: `Signs in to the Kindle notebook with a headless browser, reads the
highlights and notes of the most recent books and stores them as a new
snapshot file in the data directory. Snapshots are never overwritten.`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().IntVar(&captureLimit, "limit", 0, "number of books to capture (default from config)")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if captureLimit > 0 {
		cfg.Kindle.BookLimit = captureLimit
	}

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runner := pipeline.New(a.snapshots, synth.New(), nil, nil,
		pipeline.WithSource(newNotebook(cfg)),
		pipeline.WithJournal(a.journal),
	)
	name, err := runner.CaptureSnapshot(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Saved snapshot %s\n", name)
	return nil
}
