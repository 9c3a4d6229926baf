package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/tuisplit/internal/splits"
)

// Series is a named series of durations in milliseconds.
type Series struct {
	Name   string
	Values []float64
}

// dash draws a dot on the first on of every period columns.
type dash struct {
	name   string
	period int
	on     int
}

func (d dash) draws(x int) bool {
	return d.period <= 1 || x%d.period < d.on
}

const (
	defaultPlotHeight = 10
	minPlotWidth      = 10
	axisLabelWidth    = 9
	axisSeparator     = " │ "
	colorReset        = "\x1b[0m"
)

var dashes = []dash{
	{name: "solid", period: 1, on: 1},
	{name: "dashed", period: 6, on: 3},
	{name: "dotted", period: 4, on: 1},
	{name: "dashdot", period: 8, on: 3},
}

var palette = []string{
	"\x1b[36m",
	"\x1b[35m",
	"\x1b[33m",
	"\x1b[32m",
	"\x1b[34m",
}

// brailleBits maps a dot inside a 2x4 braille cell to its bit.
var brailleBits = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

// canvas holds one braille bitmask per cell for a single series.
type canvas [][]uint8

func newCanvas(height, width int) canvas {
	c := make(canvas, height)
	for y := range c {
		c[y] = make([]uint8, width)
	}
	return c
}

// set lights the dot at (x, y) in dot coordinates; out of range dots are ignored.
func (c canvas) set(x, y int) {
	cy, cx := y/4, x/2
	if x < 0 || y < 0 || cy >= len(c) || cx >= len(c[cy]) {
		return
	}
	c[cy][cx] |= brailleBits[x%2][y%4]
}

// PlotSeriesWithColor renders a braille plot of the series on a shared time axis.
// Empty series are skipped. Color is emitted only when useColor is set and NO_COLOR is not.
func PlotSeriesWithColor(w io.Writer, title string, series []Series, width, height int, useColor bool) error {
	series = nonEmpty(series)
	if len(series) == 0 {
		return nil
	}
	if height <= 0 {
		height = defaultPlotHeight
	}
	if width < minPlotWidth {
		width = minPlotWidth
	}
	useColor = useColor && os.Getenv("NO_COLOR") == ""

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		smin, smax := seriesMinMax(s.Values)
		lo = math.Min(lo, smin)
		hi = math.Max(hi, smax)
	}
	if hi-lo < 1 {
		lo -= 500
		hi += 500
	}
	lo = math.Max(lo, 0)

	dotRows := height * 4
	canvases := make([]canvas, len(series))
	for si, s := range series {
		c := newCanvas(height, width)
		d := dashes[si%len(dashes)]
		prevX, prevY := -1, -1
		for x, v := range resampleSeries(s.Values, width) {
			px, py := x*2, valueToRow(v, lo, hi, dotRows)
			if prevX < 0 {
				if d.draws(px) {
					c.set(px, py)
				}
			} else {
				drawLine(prevX, prevY, px, py, func(dx, dy int) {
					if d.draws(dx) {
						c.set(dx, dy)
					}
				})
			}
			prevX, prevY = px, py
		}
		canvases[si] = c
	}

	var b strings.Builder
	if title != "" {
		b.WriteString(title + "\n")
	}
	for _, s := range series {
		smin, smax := seriesMinMax(s.Values)
		fmt.Fprintf(&b, "%s: best=%s worst=%s\n", s.Name,
			splits.FormatMillis(int64(smin)), splits.FormatMillis(int64(smax)))
	}
	labels := axisLabels(height, lo, hi)
	for y := 0; y < height; y++ {
		fmt.Fprintf(&b, "%*s%s", axisLabelWidth, labels[y], axisSeparator)
		for x := 0; x < width; x++ {
			var mask uint8
			owner := -1
			for i, c := range canvases {
				if c[y][x] == 0 {
					continue
				}
				if owner < 0 {
					owner = i
				}
				mask |= c[y][x]
			}
			ch := string(rune(0x2800 + int(mask)))
			if useColor && owner >= 0 {
				ch = palette[owner%len(palette)] + ch + colorReset
			}
			b.WriteString(ch)
		}
		b.WriteString("\n")
	}
	b.WriteString(legend(series, useColor) + "\n\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// PlotWidthFor computes a plot width that fits within the total available width.
func PlotWidthFor(totalWidth int) int {
	width := totalWidth - axisLabelWidth - runewidth.StringWidth(axisSeparator)
	if width < minPlotWidth {
		return minPlotWidth
	}
	return width
}

func nonEmpty(series []Series) []Series {
	out := make([]Series, 0, len(series))
	for _, s := range series {
		if len(s.Values) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// axisLabels labels the top, middle, and bottom rows.
func axisLabels(height int, lo, hi float64) []string {
	labels := make([]string, height)
	labels[0] = splits.FormatMillis(int64(hi))
	if height > 2 {
		labels[height/2] = splits.FormatMillis(int64((lo + hi) / 2))
	}
	if height > 1 {
		labels[height-1] = splits.FormatMillis(int64(lo))
	}
	return labels
}

// resampleSeries fits values to width columns, averaging buckets when
// shrinking and interpolating linearly when stretching.
func resampleSeries(values []float64, width int) []float64 {
	n := len(values)
	out := make([]float64, width)
	switch {
	case n == width:
		copy(out, values)
	case n > width:
		for i := range out {
			start := i * n / width
			end := max((i+1)*n/width, start+1)
			var sum float64
			for _, v := range values[start:end] {
				sum += v
			}
			out[i] = sum / float64(end-start)
		}
	case n == 1:
		for i := range out {
			out[i] = values[0]
		}
	default:
		for i := range out {
			pos := float64(i) * float64(n-1) / float64(width-1)
			idx := int(pos)
			if idx >= n-1 {
				out[i] = values[n-1]
				continue
			}
			frac := pos - float64(idx)
			out[i] = values[idx]*(1-frac) + values[idx+1]*frac
		}
	}
	return out
}

func seriesMinMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// valueToRow maps v onto [0, rows-1] with hi at the top.
func valueToRow(v, lo, hi float64, rows int) int {
	if rows <= 1 {
		return 0
	}
	pos := (v - lo) / (hi - lo)
	row := int(math.Round((1 - pos) * float64(rows-1)))
	return min(max(row, 0), rows-1)
}

func legend(series []Series, useColor bool) string {
	parts := make([]string, len(series))
	for i, s := range series {
		label := fmt.Sprintf("%c %s (%s)", rune(0x2801), s.Name, dashes[i%len(dashes)].name)
		if useColor {
			label = palette[i%len(palette)] + label + colorReset
		}
		parts[i] = label
	}
	return "Legend: " + strings.Join(parts, "  ")
}

// drawLine walks a Bresenham line from (x0, y0) to (x1, y1).
func drawLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx, sx := x1-x0, 1
	if dx < 0 {
		dx, sx = -dx, -1
	}
	dy, sy := y0-y1, 1
	if dy > 0 {
		dy = -dy
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}
