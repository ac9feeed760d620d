package ui

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/mcao2/readwise-ankify/internal/changes"
	"github.com/mcao2/readwise-ankify/internal/synth"
)

// ConfirmForm asks a yes/no question
type ConfirmForm struct {
	form   *huh.Form
	result bool
}

// NewConfirmForm builds the form. The default answer is yes.
func NewConfirmForm(title, description string) *ConfirmForm {
	cf := &ConfirmForm{result: true}
	cf.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Push").
				Negative("Cancel").
				Value(&cf.result),
		),
	)
	return cf
}

// Run shows the form and returns the answer
func (cf *ConfirmForm) Run(ctx context.Context) (bool, error) {
	if err := cf.form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return cf.result, nil
}

// GetForm returns the underlying form
func (cf *ConfirmForm) GetForm() *huh.Form {
	return cf.form
}

// ConfirmUpsert prints the items and asks before they are written
func ConfirmUpsert(ctx context.Context, events []changes.Event, items []synth.Item) (bool, error) {
	fmt.Fprintln(os.Stderr, Preview(events, items, TerminalWidth()))

	form := NewConfirmForm(
		fmt.Sprintf("Push %d items to Anki?", len(items)),
		"Existing notes with the same source id are updated in place.",
	)
	return form.Run(ctx)
}

// Preview renders a run summary followed by the item table
func Preview(events []changes.Event, items []synth.Item, width int) string {
	styles := DefaultStyles()
	summary := changes.Summarize(events)

	title := styles.Title.Render(fmt.Sprintf("%d new books, %d new annotations → %d items",
		summary.NewBooks, summary.NewAnnotations, len(items)))
	if len(items) == 0 {
		return title
	}
	return title + "\n" + ItemsTable(items, width).View()
}

// TerminalWidth returns the width of stdout, or 100 when it is not a
// terminal
func TerminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 100
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return 100
	}
	return w
}
