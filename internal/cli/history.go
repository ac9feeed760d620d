package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcao2/readwise-ankify/internal/journal"
	"github.com/mcao2/readwise-ankify/internal/ui"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	j, err := journal.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.RecentRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		cmd.Println("No runs recorded yet.")
		return nil
	}
	cmd.Println(ui.HistoryTable(runs, ui.TerminalWidth()).View())
	return nil
}
