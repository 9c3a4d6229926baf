package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"

	"github.com/verte-zerg/tuisplit/internal/model"
)

// KeyMap holds the timer key bindings.
type KeyMap struct {
	Split     key.Binding
	Pause     key.Binding
	Reset     key.Binding
	NextGroup key.Binding
	Help      key.Binding
	Quit      key.Binding
}

// NewKeyMap builds bindings, falling back to defaults for empty lists.
func NewKeyMap(cfg model.KeyBindings) KeyMap {
	return KeyMap{
		Split:     binding(cfg.Split, []string{" ", "enter"}, "split"),
		Pause:     binding(cfg.Pause, []string{"p"}, "pause"),
		Reset:     binding(cfg.Reset, []string{"r", "backspace"}, "reset"),
		NextGroup: binding(cfg.NextGroup, []string{"tab", "g"}, "next group"),
		Help:      binding(nil, []string{"?"}, "help"),
		Quit:      binding(cfg.Quit, []string{"q", "ctrl+c"}, "quit"),
	}
}

func binding(keys, defaults []string, desc string) key.Binding {
	if len(keys) == 0 {
		keys = defaults
	}
	matched := make([]string, 0, len(keys)+1)
	names := make([]string, len(keys))
	for i, k := range keys {
		if k == "space" || k == " " {
			// Match the space bar under both spellings.
			matched = append(matched, " ", "space")
		} else {
			matched = append(matched, k)
		}
		names[i] = displayKey(k)
	}
	return key.NewBinding(
		key.WithKeys(matched...),
		key.WithHelp(strings.Join(names, "/"), desc),
	)
}

func displayKey(k string) string {
	if k == " " || k == "space" {
		return "space"
	}
	return k
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Split, k.Pause, k.Reset, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Split, k.Pause, k.Reset},
		{k.NextGroup, k.Help, k.Quit},
	}
}
