// Package hosts renders the table of hosts connected to the agent.
package hosts

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/opsdeck/console/internal/api"
	"github.com/opsdeck/console/internal/theme"
)

// flashFor is how long a host row keeps the color of its last event.
const flashFor = 5 * time.Second

// Model holds the host table state.
type Model struct {
	Width    int
	Selected int

	hosts  []api.Host
	events map[string]flash
	now    func() time.Time
}

type flash struct {
	kind string
	at   time.Time
}

// New creates an empty host table.
func New() Model {
	return Model{events: make(map[string]flash), now: time.Now}
}

// SetHosts replaces the host list, sorted by address. The selection follows
// the previously selected address when it is still present.
func (m *Model) SetHosts(hosts []api.Host) {
	prev := ""
	if h, ok := m.Current(); ok {
		prev = h.Addr
	}
	m.hosts = append([]api.Host(nil), hosts...)
	sort.Slice(m.hosts, func(i, j int) bool { return m.hosts[i].Addr < m.hosts[j].Addr })

	m.Selected = 0
	for i, h := range m.hosts {
		if h.Addr == prev {
			m.Selected = i
			break
		}
	}
}

// Len is the number of hosts.
func (m Model) Len() int { return len(m.hosts) }

// Current returns the selected host.
func (m Model) Current() (api.Host, bool) {
	if m.Selected < 0 || m.Selected >= len(m.hosts) {
		return api.Host{}, false
	}
	return m.hosts[m.Selected], true
}

// Next moves the selection down, wrapping.
func (m *Model) Next() {
	if len(m.hosts) > 0 {
		m.Selected = (m.Selected + 1) % len(m.hosts)
	}
}

// Prev moves the selection up, wrapping.
func (m *Model) Prev() {
	if len(m.hosts) > 0 {
		m.Selected = (m.Selected - 1 + len(m.hosts)) % len(m.hosts)
	}
}

// Flash marks addr with a notification event kind for a few seconds.
func (m *Model) Flash(addr, kind string) {
	m.events[addr] = flash{kind: kind, at: m.now()}
}

// Flashing returns the event kind addr is currently highlighted with.
func (m Model) Flashing(addr string) (string, bool) {
	return m.flashing(addr, m.now())
}

func (m Model) flashing(addr string, now time.Time) (string, bool) {
	f, ok := m.events[addr]
	if !ok || now.Sub(f.at) >= flashFor {
		return "", false
	}
	return f.kind, true
}

// View renders the table.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	header := theme.StyleHeader.Render("  Hosts")
	if len(m.hosts) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			theme.StyleDimmed.Render("  No hosts connected"),
		)
	}

	colAddr := 22
	colName := 18
	colOS := 24
	colArch := 8
	colVersion := 10

	dimStyle := lipgloss.NewStyle().Foreground(theme.ColorDimmed)
	tableHeader := fmt.Sprintf("  %-*s %-*s %-3s %-*s %-*s %-*s %s",
		colAddr, "Address",
		colName, "Name",
		"",
		colOS, "OS",
		colArch, "Arch",
		colVersion, "Version",
		"Connected",
	)
	lines := []string{
		header,
		dimStyle.Render(ansi.Truncate(tableHeader, width, "…")),
		dimStyle.Render("  " + strings.Repeat("─", max(0, min(width-4, colAddr+colName+colOS+colArch+colVersion+24)))),
	}

	now := m.now()
	for i, h := range m.hosts {
		prefix := "  "
		addrStyle := lipgloss.NewStyle().Foreground(theme.ColorBright)
		if i == m.Selected {
			prefix = "> "
			addrStyle = theme.StyleSelected.Underline(true)
		}
		if kind, ok := m.flashing(h.Addr, now); ok {
			addrStyle = addrStyle.Foreground(theme.EventColor(kind))
		}

		line := prefix +
			addrStyle.Width(colAddr).Render(truncate(h.Addr, colAddr-1)) + " " +
			lipgloss.NewStyle().Width(colName).Render(truncate(h.SystemInfo.HostName, colName-1)) + " " +
			theme.PlatformBadge(h.TargetPlatform) + " " +
			dimStyle.Width(colOS).Render(truncate(h.SystemInfo.LongOSVersion, colOS-1)) + " " +
			dimStyle.Width(colArch).Render(truncate(h.SystemInfo.CPUArch, colArch-1)) + " " +
			dimStyle.Width(colVersion).Render(truncate(h.Version, colVersion-1)) + " " +
			dimStyle.Render(h.ConnectedTime)
		lines = append(lines, ansi.Truncate(line, width, "…"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func truncate(s string, n int) string {
	return ansi.Truncate(s, n, "…")
}
