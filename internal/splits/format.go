package splits

import (
	"fmt"

	"github.com/verte-zerg/tuisplit/internal/model"
)

// FormatMillis renders a duration as MM:SS.mmm. Minutes grow past 59 rather than wrapping.
func FormatMillis(ms int64) string {
	sign := ""
	if ms < 0 {
		sign = "-"
		ms = -ms
	}
	minutes := ms / 60000
	seconds := (ms / 1000) % 60
	millis := ms % 1000
	return fmt.Sprintf("%s%02d:%02d.%03d", sign, minutes, seconds, millis)
}

// FormatDiff renders a diff in signed seconds with two decimals, or "" when unset.
func FormatDiff(diff *int64) string {
	if diff == nil {
		return ""
	}
	return fmt.Sprintf("%+.2f", float64(*diff)/1000.0)
}

// StatusColor returns the display color for a status.
func StatusColor(s model.Status) string {
	switch s {
	case model.StatusGold:
		return "#FFD700"
	case model.StatusLossLosing:
		return "#F44336"
	case model.StatusLossGaining:
		return "#B71C1C"
	case model.StatusGainLosing:
		return "#2E7D32"
	case model.StatusGainGaining:
		return "#4CAF50"
	default:
		return "#9E9E9E"
	}
}
