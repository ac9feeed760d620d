// Package ui renders previews, confirmations and upsert progress in the
// terminal.
package ui

import "github.com/charmbracelet/lipgloss"

// Styles holds all the UI styles
type Styles struct {
	Title    lipgloss.Style
	Normal   lipgloss.Style
	Help     lipgloss.Style
	Header   lipgloss.Style
	Cell     lipgloss.Style
	Border   lipgloss.Style
	Error    lipgloss.Style
	Warning  lipgloss.Style
	Success  lipgloss.Style
	KindTags map[string]lipgloss.Style
}

// DefaultStyles returns the default style set
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			PaddingBottom(1),

		Normal: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")),

		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#737373")).
			Italic(true),

		Header: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			BorderBottom(true).
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")),

		Cell: lipgloss.NewStyle().Padding(0, 1),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(1, 2),

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")),

		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB000")),

		Success: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")),

		KindTags: map[string]lipgloss.Style{
			"flashcard":  lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
			"definition": lipgloss.NewStyle().Foreground(lipgloss.Color("#00AFFF")),
			"highlight":  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")),
			"todo":       lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")),
			"note":       lipgloss.NewStyle().Foreground(lipgloss.Color("#AF87FF")),
		},
	}
}

// Kind renders an item kind in its color
func (s Styles) Kind(kind string) string {
	if style, ok := s.KindTags[kind]; ok {
		return style.Render(kind)
	}
	return kind
}
