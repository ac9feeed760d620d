package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcao2/readwise-ankify/internal/pipeline"
)

var (
	diffFlags   runFlags
	diffInitial bool
)

var diffCmd = &cobra.Command{
	Use:   "diff-and-ankify-latest",
	Short: "Upsert what changed between the two latest snapshots",
	Long: `Compares the newest snapshot with the one before it and turns every new
book and annotation into Anki notes. The processed snapshot is remembered, so
running the command again without a new capture does nothing.`,
	Args: cobra.NoArgs,
	RunE: runDiff,
}

func init() {
	diffFlags.register(diffCmd)
	diffCmd.Flags().BoolVar(&diffInitial, "initial", false, "treat a lone snapshot as entirely new")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.runner(ctx, diffFlags)
	if err != nil {
		return err
	}

	report, err := runner.DiffLatest(ctx, pipeline.Options{
		DryRun:     diffFlags.dryRun,
		CopyPrompt: diffFlags.copyPrompt,
		Initial:    diffInitial,
	})
	if err != nil {
		return err
	}
	return printReport(cmd, report)
}
