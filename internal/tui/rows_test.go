package tui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/tuisplit/internal/model"
)

func TestFitNameTruncatesWideRunes(t *testing.T) {
	got := fitName("ボス戦ボス戦ボス戦", 8)
	if w := runewidth.StringWidth(got); w != 8 {
		t.Fatalf("expected width 8, got %d (%q)", w, got)
	}
	if !strings.HasSuffix(strings.TrimRight(got, " "), "…") {
		t.Fatalf("expected ellipsis, got %q", got)
	}
	if got := fitName("Boss", 6); got != "Boss  " {
		t.Fatalf("expected padding, got %q", got)
	}
}

func TestRowTime(t *testing.T) {
	cur := int64(1500)
	if got := rowTime(model.ComparisonItem{CurrentMs: &cur, BestMs: 2000}, true); got != "00:01.500" {
		t.Fatalf("expected current time, got %q", got)
	}
	if got := rowTime(model.ComparisonItem{BestMs: 2000}, true); got != "00:02.000" {
		t.Fatalf("expected best time, got %q", got)
	}
	if got := rowTime(model.ComparisonItem{BestMs: 0}, false); got != "-" {
		t.Fatalf("expected dash, got %q", got)
	}
}

func TestRenderRowsShowsDiffs(t *testing.T) {
	cur := int64(900)
	diff := int64(-100)
	items := []model.ComparisonItem{
		{Name: "Forest", CurrentMs: &cur, BestMs: 1000, DiffMs: &diff, Status: model.StatusGold},
		{Name: "Boss", BestMs: 2000},
	}
	out := renderRows(items, true, 1, 60)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !containsAll(lines[0], []string{"Forest", "-0.10", "00:00.900"}) {
		t.Fatalf("unexpected first row %q", lines[0])
	}
	if !containsAll(lines[1], []string{"> ", "Boss", "00:02.000"}) {
		t.Fatalf("unexpected second row %q", lines[1])
	}
}

func TestNextGroupWraps(t *testing.T) {
	groups := []model.Group{{ID: 3}, {ID: 7}, {ID: 9}}
	if id, _ := nextGroup(groups, 7); id != 9 {
		t.Fatalf("expected 9, got %d", id)
	}
	if id, _ := nextGroup(groups, 9); id != 3 {
		t.Fatalf("expected wrap to 3, got %d", id)
	}
	if id, _ := nextGroup(groups, 42); id != 3 {
		t.Fatalf("expected first group for unknown id, got %d", id)
	}
	if _, ok := nextGroup(nil, 1); ok {
		t.Fatalf("expected no group")
	}
}

func TestKeyMapOverrides(t *testing.T) {
	keys := NewKeyMap(model.KeyBindings{Split: []string{"space", "x"}})
	space := tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	if !key.Matches(space, keys.Split) {
		t.Fatalf("expected space to split")
	}
	if key.Matches(tea.KeyMsg{Type: tea.KeyEnter}, keys.Split) {
		t.Fatalf("expected override to replace default enter binding")
	}
	if !key.Matches(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}}, keys.Pause) {
		t.Fatalf("expected default pause binding")
	}
	if got := keys.Split.Help().Key; got != "space/x" {
		t.Fatalf("unexpected help label %q", got)
	}
}
