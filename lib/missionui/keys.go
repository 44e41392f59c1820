// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package missionui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the dashboard's key bindings.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Home     key.Binding
	End      key.Binding

	// View controls.
	CycleStatus key.Binding
	CycleType   key.Binding
	ToggleOrder key.Binding
	Search      key.Binding
	Clear       key.Binding

	// Actions.
	Dispatch key.Binding
	Cancel   key.Binding
	KillAll  key.Binding
	Purge    key.Binding
	Refresh  key.Binding

	// Form and dialog navigation.
	NextField     key.Binding
	PreviousField key.Binding
	Submit        key.Binding
	Confirm       key.Binding
	Deny          key.Binding

	Quit key.Binding
}

// DefaultKeyMap is the built-in binding set, vim-style movement beside
// the arrow keys.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "ctrl+u"),
		key.WithHelp("pgup", "page up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "ctrl+d"),
		key.WithHelp("pgdn", "page down"),
	),
	Home: key.NewBinding(
		key.WithKeys("home", "g"),
		key.WithHelp("g", "top"),
	),
	End: key.NewBinding(
		key.WithKeys("end", "G"),
		key.WithHelp("G", "bottom"),
	),
	CycleStatus: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "status"),
	),
	CycleType: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "type"),
	),
	ToggleOrder: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "order"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	Clear: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "clear"),
	),
	Dispatch: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "dispatch"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "cancel"),
	),
	KillAll: key.NewBinding(
		key.WithKeys("K"),
		key.WithHelp("K", "kill all"),
	),
	Purge: key.NewBinding(
		key.WithKeys("D"),
		key.WithHelp("D", "purge"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	NextField: key.NewBinding(
		key.WithKeys("tab", "down"),
		key.WithHelp("tab", "next field"),
	),
	PreviousField: key.NewBinding(
		key.WithKeys("shift+tab", "up"),
		key.WithHelp("shift+tab", "previous field"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "submit"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("y", "Y"),
		key.WithHelp("y", "confirm"),
	),
	Deny: key.NewBinding(
		key.WithKeys("n", "N", "esc"),
		key.WithHelp("n", "back"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
