package tui

import (
	"slices"
	"testing"

	"charm.land/bubbles/v2/key"
)

// TestKeyMapHelpCoversEveryBinding verifies full help lists each binding once.
func TestKeyMapHelpCoversEveryBinding(t *testing.T) {
	k := newKeyMap()
	seen := map[string]int{}
	for _, group := range k.FullHelp() {
		for _, b := range group {
			seen[b.Help().Key]++
		}
	}
	for _, want := range []string{"q", "r", "?", "k/↑", "j/↓", "s", "p", "f", "t", "P", "y", "i/enter"} {
		if seen[want] != 1 {
			t.Fatalf("help key %q listed %d times, want 1", want, seen[want])
		}
	}
}

// TestKeyMapPauseBindingsAreCaseSensitive verifies p and P stay distinct.
func TestKeyMapPauseBindingsAreCaseSensitive(t *testing.T) {
	k := newKeyMap()
	if slices.Contains(k.pauseWork.Keys(), "P") {
		t.Fatalf("pauseWork must not bind P: %#v", k.pauseWork.Keys())
	}
	if !slices.Contains(k.pauseTesting.Keys(), "P") {
		t.Fatalf("pauseTesting must bind P: %#v", k.pauseTesting.Keys())
	}
	short := k.ShortHelp()
	if len(short) == 0 || !slices.ContainsFunc(short, func(b key.Binding) bool { return b.Help().Key == "q" }) {
		t.Fatalf("short help missing quit: %#v", short)
	}
}
