// Package theme provides the Lip Gloss color palette and reusable styles
// for the opsdeck console. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Connection state colors.
var (
	ColorIdle       = lipgloss.Color("#6b7280")
	ColorConnecting = lipgloss.Color("#d97706")
	ColorOpen       = lipgloss.Color("#22c55e")
	ColorClosed     = lipgloss.Color("#dc2626")
)

// Platform badge colors.
var (
	ColorWindows = lipgloss.Color("#3b82f6")
	ColorMacOS   = lipgloss.Color("#a855f7")
	ColorLinux   = lipgloss.Color("#f59e0b")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// Notification event colors.
var (
	ColorEventConnected    = lipgloss.Color("#22c55e")
	ColorEventDisconnected = lipgloss.Color("#dc2626")
	ColorEventUpdated      = lipgloss.Color("#06b6d4")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorAccent  = lipgloss.Color("#2563eb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StateColor returns the color for a connection state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "connecting":
		return ColorConnecting
	case "open":
		return ColorOpen
	case "closed":
		return ColorClosed
	default:
		return ColorIdle
	}
}

// StateGlyph returns a glyph for a connection state name.
func StateGlyph(state string) string {
	switch state {
	case "connecting":
		return "◌"
	case "open":
		return "●"
	case "closed":
		return "✗"
	default:
		return "○"
	}
}

// PlatformBadge returns a colored badge for a target platform.
func PlatformBadge(platform string) string {
	p := strings.ToLower(platform)
	switch {
	case strings.Contains(p, "windows"):
		return lipgloss.NewStyle().Foreground(ColorWindows).Render("[W]")
	case strings.Contains(p, "macos"), strings.Contains(p, "darwin"):
		return lipgloss.NewStyle().Foreground(ColorMacOS).Render("[M]")
	case strings.Contains(p, "linux"):
		return lipgloss.NewStyle().Foreground(ColorLinux).Render("[L]")
	default:
		return lipgloss.NewStyle().Foreground(ColorDefault).Render("[?]")
	}
}

// EventColor returns the color for a notification event name.
func EventColor(kind string) lipgloss.Color {
	switch kind {
	case "connected":
		return ColorEventConnected
	case "disconnected":
		return ColorEventDisconnected
	case "updated":
		return ColorEventUpdated
	default:
		return ColorDefault
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
		Foreground(ColorDanger)
)
