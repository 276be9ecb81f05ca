package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/opsdeck/console/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	// BusState is the notification channel's state name.
	BusState   string
	Hosts      int
	Reconnects int64
	Server     string
	Width      int
}

// New creates a status bar model.
func New() Model {
	return Model{BusState: "idle"}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch m.BusState {
	case "open":
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Agent connected")
	case "closed":
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("✗ Agent closed")
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("○ Connecting...")
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + fmt.Sprintf("%d hosts", m.Hosts)
	if m.Reconnects > 0 {
		content += sep + theme.StyleDimmed.Render(fmt.Sprintf("%d reconnects", m.Reconnects))
	}
	if m.Server != "" {
		content += sep + theme.StyleDimmed.Render("agent "+m.Server)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
