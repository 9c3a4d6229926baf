// Package stats contains run history calculations and reporting.
package stats

import (
	"context"
	"errors"
	"fmt"

	"github.com/verte-zerg/tuisplit/internal/baseline"
	"github.com/verte-zerg/tuisplit/internal/model"
	"github.com/verte-zerg/tuisplit/internal/splits"
	"github.com/verte-zerg/tuisplit/internal/store"
)

// ReportStore is the read side of the store used for reports.
type ReportStore interface {
	baseline.History
	GetGroup(ctx context.Context, id int64) (model.Group, error)
	GetTemplatesForGroup(ctx context.Context, groupID int64) ([]model.SplitTemplate, error)
	ListRuns(ctx context.Context, groupID int64) ([]model.Run, error)
}

// RunRow is one run aligned to the group's templates.
type RunRow struct {
	Run        model.Run
	Cumulative []*int64
	TotalMs    int64
	Complete   bool
}

// Report contains precomputed data for the runs screen and plain output.
type Report struct {
	Group     model.Group
	Templates []model.SplitTemplate
	// Runs are ordered newest first.
	Runs []RunRow

	BestRunID         int64
	BestCumulative    []int64
	HasAnyCompleteRun bool
	BestSegments      []*int64
	TheoreticalBest   []int64
	SumOfBestMs       int64
	SumOfBestComplete bool
}

// BuildReport loads and prepares data for a group.
func BuildReport(ctx context.Context, st ReportStore, groupID int64) (Report, error) {
	group, err := st.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Report{}, fmt.Errorf("group %d: %w", groupID, err)
		}
		return Report{}, err
	}
	templates, err := st.GetTemplatesForGroup(ctx, groupID)
	if err != nil {
		return Report{}, err
	}
	n := len(templates)

	runs, err := st.ListRuns(ctx, groupID)
	if err != nil {
		return Report{}, err
	}
	rows := make([]RunRow, 0, len(runs))
	for _, run := range runs {
		records, err := st.GetSegmentRecordsForRun(ctx, run.ID, groupID)
		if err != nil {
			return Report{}, err
		}
		rows = append(rows, alignRun(run, records, n))
	}

	calc := baseline.NewCalculator(st)
	best, err := calc.BestCumulative(ctx, groupID, n)
	if err != nil {
		return Report{}, err
	}
	bestSegments, err := calc.BestSegments(ctx, groupID, n)
	if err != nil {
		return Report{}, err
	}
	sob, sobComplete := splits.SumOfBest(bestSegments)

	return Report{
		Group:             group,
		Templates:         templates,
		Runs:              rows,
		BestRunID:         best.RunID,
		BestCumulative:    best.Cumulative,
		HasAnyCompleteRun: best.HasAnyCompleteRun,
		BestSegments:      bestSegments,
		TheoreticalBest:   splits.TheoreticalBest(bestSegments),
		SumOfBestMs:       sob,
		SumOfBestComplete: sobComplete,
	}, nil
}

func alignRun(run model.Run, records []model.SplitTime, n int) RunRow {
	row := RunRow{
		Run:        run,
		Cumulative: make([]*int64, n),
		Complete:   baseline.IsComplete(records, n),
	}
	for _, rec := range records {
		if rec.CumulativeMs > row.TotalMs {
			row.TotalMs = rec.CumulativeMs
		}
		if rec.SplitIndex < 0 || rec.SplitIndex >= n {
			continue
		}
		v := rec.CumulativeMs
		row.Cumulative[rec.SplitIndex] = &v
	}
	return row
}

// FindRun returns the row of a run id.
func (r Report) FindRun(runID int64) (RunRow, bool) {
	for _, row := range r.Runs {
		if row.Run.ID == runID {
			return row, true
		}
	}
	return RunRow{}, false
}

// Totals returns run totals oldest first, skipping incomplete runs.
func (r Report) Totals() []float64 {
	out := make([]float64, 0, len(r.Runs))
	for i := len(r.Runs) - 1; i >= 0; i-- {
		if r.Runs[i].Complete {
			out = append(out, float64(r.Runs[i].TotalMs))
		}
	}
	return out
}

// SegmentSeries returns the segment durations of one split across runs, oldest first.
// Runs without a record at the index are skipped.
func (r Report) SegmentSeries(index int) []float64 {
	out := make([]float64, 0, len(r.Runs))
	for i := len(r.Runs) - 1; i >= 0; i-- {
		cumulative := r.Runs[i].Cumulative
		if index < 0 || index >= len(cumulative) {
			continue
		}
		seg := splits.Segments(cumulative)[index]
		if seg != nil {
			out = append(out, float64(*seg))
		}
	}
	return out
}
