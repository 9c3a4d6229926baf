// Package baseline computes the comparison baselines of a group from its run history.
package baseline

import (
	"context"
	"fmt"
	"sort"

	"github.com/verte-zerg/tuisplit/internal/model"
)

// History is the read side of the run store used by the calculator.
type History interface {
	GetTotalsByRun(ctx context.Context, groupID int64) ([]model.RunTotal, error)
	GetSegmentRecordsForRun(ctx context.Context, runID, groupID int64) ([]model.SplitTime, error)
	GetBestSegments(ctx context.Context, groupID int64) ([]model.BestSegment, error)
}

// Best is the fastest complete run of a group.
type Best struct {
	// RunID is zero when no complete run exists.
	RunID             int64
	Cumulative        []int64
	HasAnyCompleteRun bool
}

// Calculator derives baselines from a History.
type Calculator struct {
	history History
}

// NewCalculator returns a calculator reading from history.
func NewCalculator(history History) *Calculator {
	return &Calculator{history: history}
}

// BestCumulative selects the complete run with the lowest total. Ties go to the lowest run id.
// Without a candidate the result is zero-filled to templateCount.
func (c *Calculator) BestCumulative(ctx context.Context, groupID int64, templateCount int) (Best, error) {
	best := Best{Cumulative: make([]int64, templateCount)}
	if templateCount <= 0 {
		return best, nil
	}
	totals, err := c.history.GetTotalsByRun(ctx, groupID)
	if err != nil {
		return best, fmt.Errorf("load run totals: %w", err)
	}
	sort.SliceStable(totals, func(i, j int) bool {
		if totals[i].TotalMs != totals[j].TotalMs {
			return totals[i].TotalMs < totals[j].TotalMs
		}
		return totals[i].RunID < totals[j].RunID
	})
	for _, total := range totals {
		records, err := c.history.GetSegmentRecordsForRun(ctx, total.RunID, groupID)
		if err != nil {
			return best, fmt.Errorf("load run %d: %w", total.RunID, err)
		}
		if !IsComplete(records, templateCount) {
			continue
		}
		best.RunID = total.RunID
		best.HasAnyCompleteRun = true
		for _, rec := range records {
			if rec.SplitIndex >= 0 && rec.SplitIndex < templateCount {
				best.Cumulative[rec.SplitIndex] = rec.CumulativeMs
			}
		}
		return best, nil
	}
	return best, nil
}

// IsComplete reports whether records cover indices 0 through templateCount-1.
func IsComplete(records []model.SplitTime, templateCount int) bool {
	if templateCount <= 0 || len(records) < templateCount {
		return false
	}
	minIdx, maxIdx := records[0].SplitIndex, records[0].SplitIndex
	for _, rec := range records[1:] {
		if rec.SplitIndex < minIdx {
			minIdx = rec.SplitIndex
		}
		if rec.SplitIndex > maxIdx {
			maxIdx = rec.SplitIndex
		}
	}
	return minIdx == 0 && maxIdx == templateCount-1
}

// BestSegments returns the best segment per index, nil where no run has a record.
func (c *Calculator) BestSegments(ctx context.Context, groupID int64, templateCount int) ([]*int64, error) {
	segments, err := c.history.GetBestSegments(ctx, groupID)
	if err != nil {
		return make([]*int64, templateCount), fmt.Errorf("load best segments: %w", err)
	}
	return Align(segments, templateCount), nil
}

// Align places best segments by index into a slice of length templateCount.
func Align(segments []model.BestSegment, templateCount int) []*int64 {
	out := make([]*int64, templateCount)
	for _, seg := range segments {
		if seg.Index < 0 || seg.Index >= templateCount {
			continue
		}
		v := seg.BestSegmentMs
		out[seg.Index] = &v
	}
	return out
}
