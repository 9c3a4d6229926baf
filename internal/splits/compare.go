package splits

import "github.com/verte-zerg/tuisplit/internal/model"

// Comparison holds the per-index diffs and statuses of the current run.
type Comparison struct {
	CumulativeDiff []*int64
	CurrentSegment []*int64
	SegmentDiff    []*int64
	Status         []model.Status
}

// Compare derives diffs and statuses. The result is sized to the longest input.
func Compare(bestCumulative []int64, current []*int64, bestSegments []*int64, hasAnyCompleteRun bool) Comparison {
	size := len(current)
	if len(bestCumulative) > size {
		size = len(bestCumulative)
	}
	if len(bestSegments) > size {
		size = len(bestSegments)
	}
	padded := make([]*int64, size)
	copy(padded, current)

	cmp := Comparison{
		CumulativeDiff: make([]*int64, size),
		CurrentSegment: Segments(padded),
		SegmentDiff:    make([]*int64, size),
		Status:         make([]model.Status, size),
	}
	for i := 0; i < size; i++ {
		cur := padded[i]
		if cur != nil {
			var best int64
			if i < len(bestCumulative) {
				best = bestCumulative[i]
			}
			cmp.CumulativeDiff[i] = ptr(*cur - best)
		}
		var bestSeg *int64
		if i < len(bestSegments) {
			bestSeg = bestSegments[i]
		}
		if seg := cmp.CurrentSegment[i]; seg != nil && bestSeg != nil {
			cmp.SegmentDiff[i] = ptr(*seg - *bestSeg)
		}
		cmp.Status[i] = classify(cmp.CurrentSegment[i], bestSeg, cmp.CumulativeDiff[i], cmp.SegmentDiff[i], hasAnyCompleteRun)
	}
	return cmp
}

// classify picks a status. GOLD wins first; the quadrants follow from the sign of the
// cumulative diff (ahead or behind overall) and of the segment diff (ahead or behind on
// this segment). A missing segment diff counts as behind on the segment.
func classify(currentSeg, bestSeg, cumulativeDiff, segmentDiff *int64, hasAnyCompleteRun bool) model.Status {
	if currentSeg != nil {
		if !hasAnyCompleteRun {
			return model.StatusGold
		}
		if bestSeg != nil && *currentSeg <= *bestSeg {
			return model.StatusGold
		}
	}
	if cumulativeDiff == nil {
		return model.StatusNone
	}
	aheadOverall := *cumulativeDiff < 0
	aheadOnSegment := segmentDiff != nil && *segmentDiff < 0
	switch {
	case aheadOverall && aheadOnSegment:
		return model.StatusGainGaining
	case aheadOverall:
		return model.StatusGainLosing
	case aheadOnSegment:
		return model.StatusLossGaining
	default:
		return model.StatusLossLosing
	}
}

// Items combines templates, baselines and the comparison into display rows.
func Items(templates []model.SplitTemplate, bestCumulative []int64, current, bestSegments []*int64, cmp Comparison) []model.ComparisonItem {
	items := make([]model.ComparisonItem, len(templates))
	for i, tpl := range templates {
		item := model.ComparisonItem{
			Index: i,
			Name:  tpl.Name,
		}
		if i < len(bestCumulative) {
			item.BestMs = bestCumulative[i]
		}
		if i < len(current) && current[i] != nil {
			item.CurrentMs = ptr(*current[i])
		}
		if i < len(bestSegments) && bestSegments[i] != nil {
			item.BestSegment = ptr(*bestSegments[i])
		}
		if i < len(cmp.Status) {
			item.DiffMs = cmp.CumulativeDiff[i]
			item.SegmentMs = cmp.CurrentSegment[i]
			item.SegmentDiff = cmp.SegmentDiff[i]
			item.Status = cmp.Status[i]
		}
		items[i] = item
	}
	return items
}
