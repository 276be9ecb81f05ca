// Package detail renders the host info flyout overlay.
package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/opsdeck/console/internal/api"
	"github.com/opsdeck/console/internal/theme"
)

const (
	panelWidth = 64
	labelWidth = 14
)

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(labelWidth)

	styleValue = lipgloss.NewStyle().
			Foreground(theme.ColorBright)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)

	styleFooter = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed)

	styleSectionHeader = lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorDimmed)
)

// Model holds the state for the detail overlay.
type Model struct {
	Host     *api.Host
	Displays []api.Display
	// DisplayErr is set when the display list could not be fetched.
	DisplayErr string
	Shells     []string
	Shell      int
}

// New creates a detail model for the given host with its offered shells.
func New(h *api.Host, shells []string) Model {
	return Model{Host: h, Shells: shells}
}

// SelectedShell returns the shell the terminal will launch.
func (m Model) SelectedShell() string {
	if len(m.Shells) == 0 {
		return ""
	}
	return m.Shells[m.Shell%len(m.Shells)]
}

// CycleShell selects the next offered shell.
func (m *Model) CycleShell() {
	if len(m.Shells) > 0 {
		m.Shell = (m.Shell + 1) % len(m.Shells)
	}
}

// View renders the detail panel. Returns an empty string if no host is set.
func (m Model) View() string {
	if m.Host == nil {
		return ""
	}
	return stylePanel.Width(panelWidth).Render(m.renderInner(m.Host))
}

func (m Model) renderInner(h *api.Host) string {
	var b strings.Builder

	b.WriteString(styleTitle.Render("Host: "+h.Name()) + "\n")
	b.WriteString(strings.Repeat("─", panelWidth-4) + "\n")

	writeRow(&b, "Address", h.Addr)
	writeRow(&b, "Platform", theme.PlatformBadge(h.TargetPlatform)+" "+h.TargetPlatform)
	if h.SystemInfo.LongOSVersion != "" {
		writeRow(&b, "OS", ansi.Truncate(h.SystemInfo.LongOSVersion, 44, "…"))
	}
	if h.SystemInfo.CPUArch != "" {
		writeRow(&b, "Arch", h.SystemInfo.CPUArch)
	}
	writeRow(&b, "Agent", h.Version)
	if h.ConnectedTime != "" {
		writeRow(&b, "Connected", h.ConnectedTime)
	}

	b.WriteString("\n")
	shells := make([]string, len(m.Shells))
	for i, s := range m.Shells {
		if i == m.Shell%max(len(m.Shells), 1) {
			s = theme.StyleSelected.Underline(true).Render(s)
		}
		shells[i] = s
	}
	writeRow(&b, "Shell", strings.Join(shells, " "))

	b.WriteString("\n")
	switch {
	case m.DisplayErr != "":
		b.WriteString(theme.StyleError.Render("Displays: "+m.DisplayErr) + "\n")
	case m.Displays == nil:
		b.WriteString(theme.StyleDimmed.Render("Displays: loading...") + "\n")
	case len(m.Displays) == 0:
		b.WriteString(theme.StyleDimmed.Render("Displays: none") + "\n")
	default:
		b.WriteString(styleSectionHeader.Render(fmt.Sprintf("Displays (%d)", len(m.Displays))) + "\n")
		for _, d := range m.Displays {
			b.WriteString(renderDisplay(d) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(styleFooter.Render("[t] terminal  [s] screen  [tab] shell  [esc] close"))
	return b.String()
}

func renderDisplay(d api.Display) string {
	glyph := lipgloss.NewStyle().Foreground(theme.ColorOpen).Render("●")
	if !d.IsOnline {
		glyph = lipgloss.NewStyle().Foreground(theme.ColorIdle).Render("○")
	}
	line := fmt.Sprintf("  %s %-20s %dx%d", glyph, ansi.Truncate(d.Name, 20, "…"), d.Width, d.Height)
	if d.IsPrimary {
		line += theme.StyleDimmed.Render("  primary")
	}
	return line
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label+":") + styleValue.Render(value) + "\n")
}
