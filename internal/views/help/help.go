// Package help renders the key reference overlay from the active bindings.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/opsdeck/console/internal/theme"
)

// Section is a titled group of bindings.
type Section struct {
	Title    string
	Bindings []key.Binding
}

// Markdown renders sections as markdown tables. Disabled bindings are
// skipped.
func Markdown(sections []Section) string {
	var b strings.Builder
	b.WriteString("# Keys\n")
	for _, s := range sections {
		fmt.Fprintf(&b, "\n## %s\n\n| Key | Action |\n| --- | --- |\n", s.Title)
		for _, kb := range s.Bindings {
			if !kb.Enabled() {
				continue
			}
			h := kb.Help()
			fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
		}
	}
	b.WriteString("\nIn a terminal session, press `ctrl+]` to return to the console.\n")
	return b.String()
}

// Render converts the key reference to styled terminal text wrapped at
// width. The raw markdown is returned when rendering fails.
func Render(sections []Section, width int) string {
	md := Markdown(sections)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(width-8, 20)),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// View renders the overlay panel.
func View(sections []Section, width int) string {
	body := Render(sections, width)
	footer := theme.StyleDimmed.Render("esc:close")
	return lipgloss.NewStyle().
		Width(max(width-4, 24)).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, strings.TrimRight(body, "\n"), footer))
}
