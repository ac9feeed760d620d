package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcao2/readwise-ankify/internal/changes"
	"github.com/mcao2/readwise-ankify/internal/pipeline"
	"github.com/mcao2/readwise-ankify/internal/ui"
)

func printReport(cmd *cobra.Command, report *pipeline.Report) error {
	summary := changes.Summarize(report.Events)

	switch {
	case len(report.Events) == 0:
		cmd.Println("Nothing new to ankify.")
		return nil

	case report.Prompt != "":
		cmd.Printf("Copied the prompt for %d annotations. Paste it into a chat window to generate the cards.\n", summary.NewAnnotations)
		return nil

	case report.Cancelled:
		cmd.Println("Cancelled, nothing was written.")
		return nil

	case !report.Committed:
		cmd.Println(ui.Preview(report.Events, report.Items, ui.TerminalWidth()))
		cmd.Println("Dry run, nothing was written.")
		return nil
	}

	created, updated, failed := report.Counts()
	cmd.Printf("%d new books, %d new annotations: %d created, %d updated, %d failed\n",
		summary.NewBooks, summary.NewAnnotations, created, updated, failed)
	for _, err := range report.Errors {
		cmd.PrintErrf("  %v\n", err)
	}
	return nil
}
