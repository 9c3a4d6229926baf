package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/tuisplit/internal/model"
	"github.com/verte-zerg/tuisplit/internal/splits"
)

const (
	minNameWidth = 8
	diffWidth    = 8
	timeWidth    = 10
)

func statusStyle(s model.Status) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(splits.StatusColor(s)))
}

// fitName truncates or pads name to exactly width cells.
func fitName(name string, width int) string {
	if width < 1 {
		return ""
	}
	if runewidth.StringWidth(name) > width {
		name = runewidth.Truncate(name, width, "…")
	}
	return runewidth.FillRight(name, width)
}

// renderRows renders one line per split. active is the index of the next split or -1.
func renderRows(items []model.ComparisonItem, hasAnyCompleteRun bool, active, width int) string {
	nameWidth := width - diffWidth - timeWidth - 4
	if nameWidth < minNameWidth {
		nameWidth = minNameWidth
	}
	lines := make([]string, 0, len(items))
	for i, item := range items {
		marker := "  "
		if i == active {
			marker = "> "
		}
		name := fitName(item.Name, nameWidth)
		if i == active {
			name = activeStyle.Render(name)
		}

		diff := splits.FormatDiff(item.DiffMs)
		diffCell := statusStyle(item.Status).Render(padLeft(diff, diffWidth))

		timeCell := padLeft(rowTime(item, hasAnyCompleteRun), timeWidth)
		if item.CurrentMs == nil {
			timeCell = pendingStyle.Render(timeCell)
		}
		lines = append(lines, marker+name+" "+diffCell+" "+timeCell)
	}
	return strings.Join(lines, "\n")
}

// rowTime shows the recorded time, else the best run's time, else a dash.
func rowTime(item model.ComparisonItem, hasAnyCompleteRun bool) string {
	switch {
	case item.CurrentMs != nil:
		return splits.FormatMillis(*item.CurrentMs)
	case hasAnyCompleteRun:
		return splits.FormatMillis(item.BestMs)
	default:
		return "-"
	}
}

func padLeft(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return strings.Repeat(" ", width-w) + s
}
