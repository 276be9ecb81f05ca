package app

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/opsdeck/console/internal/views/help"
)

// KeyMap defines all keyboard bindings for the console.
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	Enter      key.Binding
	Terminal   key.Binding
	Screen     key.Binding
	Codec      key.Binding
	QualityUp  key.Binding
	QualityDn  key.Binding
	Tab        key.Binding
	Disconnect key.Binding
	Refresh    key.Binding
	Debug      key.Binding
	Help       key.Binding
	Escape     key.Binding
	Quit       key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev host"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next host"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "host detail"),
		),
		Terminal: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "open terminal"),
		),
		Screen: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "view screen"),
		),
		Codec: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "switch codec"),
		),
		QualityUp: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "raise quality"),
		),
		QualityDn: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "lower quality"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next shell / display"),
		),
		Disconnect: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "disconnect stream"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh / renegotiate"),
		),
		Debug: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "event log"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "keys"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay / back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// HelpSections groups the bindings for the key reference.
func (k KeyMap) HelpSections() []help.Section {
	return []help.Section{
		{Title: "Hosts", Bindings: []key.Binding{k.Up, k.Down, k.Enter, k.Terminal, k.Screen, k.Refresh}},
		{Title: "Screen", Bindings: []key.Binding{k.Codec, k.QualityUp, k.QualityDn, k.Tab, k.Disconnect, k.Refresh}},
		{Title: "General", Bindings: []key.Binding{k.Debug, k.Help, k.Escape, k.Quit}},
	}
}
