package tui

import "charm.land/bubbles/v2/key"

// keyMap holds the watch board bindings.
type keyMap struct {
	quit         key.Binding
	reload       key.Binding
	toggleHelp   key.Binding
	moveUp       key.Binding
	moveDown     key.Binding
	startWork    key.Binding
	pauseWork    key.Binding
	finishWork   key.Binding
	startTesting key.Binding
	pauseTesting key.Binding
	copyID       key.Binding
	toggleInfo   key.Binding
}

// newKeyMap constructs the default bindings.
func newKeyMap() keyMap {
	return keyMap{
		quit:         key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveUp:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		moveDown:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
		startWork:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start/resume work")),
		pauseWork:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause work")),
		finishWork:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "finish work")),
		startTesting: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "start/resume testing")),
		pauseTesting: key.NewBinding(key.WithKeys("P", "shift+p"), key.WithHelp("P", "pause testing")),
		copyID:       key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy id")),
		toggleInfo:   key.NewBinding(key.WithKeys("i", "enter"), key.WithHelp("i/enter", "details")),
	}
}

// ShortHelp returns the bindings shown in the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.startWork, k.pauseWork, k.finishWork, k.startTesting, k.toggleInfo, k.toggleHelp, k.quit,
	}
}

// FullHelp returns every binding grouped by concern.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveUp, k.moveDown, k.toggleInfo, k.copyID, k.reload, k.toggleHelp, k.quit},
		{k.startWork, k.pauseWork, k.finishWork},
		{k.startTesting, k.pauseTesting},
	}
}
