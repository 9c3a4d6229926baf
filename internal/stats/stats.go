package stats

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/docker/go-units"

	"github.com/verte-zerg/tuisplit/internal/splits"
)

const sparkChars = " .:-=+*#%@"

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := seriesMinMax(values)
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// Age renders how long ago t was, e.g. "3 days ago".
func Age(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return units.HumanDuration(now.Sub(t)) + " ago"
}

// RenderSummary prints the headline numbers of a report.
func RenderSummary(w io.Writer, r Report) error {
	if _, err := fmt.Fprintf(w, "%s\n", r.Group.Name); err != nil {
		return err
	}
	pb := "-"
	if r.HasAnyCompleteRun && len(r.BestCumulative) > 0 {
		pb = splits.FormatMillis(r.BestCumulative[len(r.BestCumulative)-1])
	}
	sob := "-"
	if r.SumOfBestComplete {
		sob = splits.FormatMillis(r.SumOfBestMs)
	}
	complete := 0
	for _, row := range r.Runs {
		if row.Complete {
			complete++
		}
	}
	if _, err := fmt.Fprintf(w, "PB: %s\nSum of Best: %s\nRuns: %d (%d complete)\n", pb, sob, len(r.Runs), complete); err != nil {
		return err
	}
	if totals := r.Totals(); len(totals) > 1 {
		if _, err := fmt.Fprintf(w, "Trend: %s\n", Sparkline(totals)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderRunsTable prints every run with one column per split.
func RenderRunsTable(w io.Writer, r Report, now time.Time) error {
	if len(r.Runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}
	headers, rows := RunsTableData(r, now)
	rightAlign := map[int]bool{}
	for i := 1; i < len(headers)-1; i++ {
		rightAlign[i] = true
	}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RunsTableData returns headers and cells for the runs table. The first rows are the PB and
// the best possible time, followed by every run newest first.
func RunsTableData(r Report, now time.Time) ([]string, [][]string) {
	headers := make([]string, 0, len(r.Templates)+3)
	headers = append(headers, "Run")
	for _, tpl := range r.Templates {
		headers = append(headers, tpl.Name)
	}
	headers = append(headers, "Total", "Age")

	rows := make([][]string, 0, len(r.Runs)+2)
	if r.HasAnyCompleteRun {
		rows = append(rows, fixedRow("PB", r.BestCumulative, ""))
	}
	if len(r.TheoreticalBest) > 0 {
		rows = append(rows, fixedRow("Best Possible", r.TheoreticalBest, ""))
	}
	for _, run := range r.Runs {
		label := fmt.Sprintf("Run %d", run.Run.ID)
		if run.Run.ID == r.BestRunID {
			label += " *"
		}
		row := []string{label}
		for _, v := range run.Cumulative {
			if v == nil {
				row = append(row, "-")
				continue
			}
			row = append(row, splits.FormatMillis(*v))
		}
		row = append(row, splits.FormatMillis(run.TotalMs), Age(now, run.Run.CreatedAt))
		rows = append(rows, row)
	}
	return headers, rows
}

func fixedRow(label string, cumulative []int64, age string) []string {
	row := []string{label}
	for _, v := range cumulative {
		row = append(row, splits.FormatMillis(v))
	}
	total := int64(0)
	if len(cumulative) > 0 {
		total = cumulative[len(cumulative)-1]
	}
	return append(row, splits.FormatMillis(total), age)
}

// RenderCurvesWithSize plots run totals and their moving average.
func RenderCurvesWithSize(w io.Writer, r Report, window, totalWidth, height int, useColor bool) error {
	totals := r.Totals()
	if len(totals) == 0 {
		return nil
	}
	return PlotSeriesWithColor(w, "Run Totals", []Series{
		{Name: "Total", Values: totals},
		{Name: fmt.Sprintf("Avg(%d)", window), Values: MovingAverage(totals, window)},
	}, PlotWidthFor(totalWidth), height, useColor)
}

// RenderSplitCurvesWithSize plots segment durations of each split across runs.
func RenderSplitCurvesWithSize(w io.Writer, r Report, window, totalWidth, height int, useColor bool) error {
	width := PlotWidthFor(totalWidth)
	for i, tpl := range r.Templates {
		values := r.SegmentSeries(i)
		if len(values) == 0 {
			continue
		}
		if err := PlotSeriesWithColor(w, tpl.Name, []Series{
			{Name: "Segment", Values: values},
			{Name: fmt.Sprintf("Avg(%d)", window), Values: MovingAverage(values, window)},
		}, width, height, useColor); err != nil {
			return err
		}
	}
	return nil
}
