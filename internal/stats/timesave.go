package stats

import (
	"sort"

	"github.com/verte-zerg/tuisplit/internal/splits"
)

// TimeSave is how much a split's personal best segment trails its best segment.
type TimeSave struct {
	Index  int
	Name   string
	SaveMs int64
}

// TopTimeSaves returns the n splits with the largest possible time save.
func TopTimeSaves(r Report, n int) []TimeSave {
	if n <= 0 || !r.HasAnyCompleteRun {
		return nil
	}
	pbCumulative := make([]*int64, len(r.BestCumulative))
	for i := range r.BestCumulative {
		v := r.BestCumulative[i]
		pbCumulative[i] = &v
	}
	pbSegments := splits.Segments(pbCumulative)

	items := make([]TimeSave, 0, len(r.Templates))
	for i, tpl := range r.Templates {
		if i >= len(pbSegments) || i >= len(r.BestSegments) {
			break
		}
		pb, best := pbSegments[i], r.BestSegments[i]
		if pb == nil || best == nil || *pb <= *best {
			continue
		}
		items = append(items, TimeSave{Index: i, Name: tpl.Name, SaveMs: *pb - *best})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].SaveMs == items[j].SaveMs {
			return items[i].Index < items[j].Index
		}
		return items[i].SaveMs > items[j].SaveMs
	})
	if n > len(items) {
		n = len(items)
	}
	return items[:n]
}
