package stats

import (
	"fmt"
	"strings"

	"github.com/verte-zerg/tuisplit/internal/model"
	"github.com/verte-zerg/tuisplit/internal/splits"
)

// PBMessage lists the personal best cumulative times.
func PBMessage(r Report) string {
	return shareMessage("PB - "+r.Group.Name, r.Templates, func(i int) int64 {
		return valueAt(r.BestCumulative, i)
	})
}

// BestPossibleMessage lists the cumulative times assembled from best segments.
func BestPossibleMessage(r Report) string {
	return shareMessage("Best Possible Time - "+r.Group.Name, r.Templates, func(i int) int64 {
		return valueAt(r.TheoreticalBest, i)
	})
}

// RunMessage lists one run's cumulative times. Missing splits show as zero.
func RunMessage(r Report, row RunRow) string {
	title := fmt.Sprintf("Run %d - %s", row.Run.ID, r.Group.Name)
	return shareMessage(title, r.Templates, func(i int) int64 {
		if i < len(row.Cumulative) && row.Cumulative[i] != nil {
			return *row.Cumulative[i]
		}
		return 0
	})
}

func shareMessage(title string, templates []model.SplitTemplate, at func(int) int64) string {
	var b strings.Builder
	b.WriteString(title)
	for i, tpl := range templates {
		fmt.Fprintf(&b, "\n%s: %s", tpl.Name, splits.FormatMillis(at(i)))
	}
	return b.String()
}

func valueAt(values []int64, i int) int64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}
