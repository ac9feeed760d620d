package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/mcao2/readwise-ankify/internal/pipeline"
)

var (
	recentFlags runFlags
	recentSince string
)

var recentCmd = &cobra.Command{
	Use:     "ankify-recent-since-checkpoint",
	Aliases: []string{"ankify-recent"},
	Short:   "Upsert Readwise highlights made since the last run",
	Long: `Fetches the highlights made since the last successful run from Readwise
and turns them into Anki notes. The checkpoint moves to the start of this run
once every item has been attempted.

--since accepts an RFC 3339 timestamp or a phrase like "3 days ago".`,
	Args: cobra.NoArgs,
	RunE: runRecent,
}

func init() {
	recentFlags.register(recentCmd)
	recentCmd.Flags().StringVar(&recentSince, "since", "", "fetch highlights made after this time instead of the checkpoint")
	rootCmd.AddCommand(recentCmd)
}

func runRecent(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	since, err := parseSince(recentSince, time.Now())
	if err != nil {
		return err
	}

	client, err := newReadwise(cfg)
	if err != nil {
		return err
	}
	ok, err := client.VerifyToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify readwise token: %w", err)
	}
	if !ok {
		return errors.New("readwise token rejected")
	}

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.runner(ctx, recentFlags, pipeline.WithFetcher(client))
	if err != nil {
		return err
	}

	report, err := runner.Recent(ctx, pipeline.Options{
		DryRun:     recentFlags.dryRun,
		CopyPrompt: recentFlags.copyPrompt,
		Since:      since,
	})
	if err != nil {
		return err
	}
	return printReport(cmd, report)
}

// parseSince reads an RFC 3339 timestamp, a date, or a natural language
// phrase relative to now. Empty input yields the zero time.
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: expected RFC 3339 or a phrase like \"3 days ago\"", s)
	}
	if r.Time.After(now) {
		return time.Time{}, fmt.Errorf("--since %q is in the future", s)
	}
	return r.Time, nil
}
