package stats

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

const (
	DefaultChartWidth  = 60
	DefaultChartHeight = 12
)

// ChartStyle selects the glyphs a chart is drawn with.
type ChartStyle struct {
	Point string
	Axis  string
	Tick  string
	Empty string
}

var (
	ASCIIChartStyle   = ChartStyle{Point: "*", Axis: "|", Tick: "+", Empty: " "}
	UnicodeChartStyle = ChartStyle{Point: "●", Axis: "│", Tick: "┼", Empty: " "}
)

// RenderRewardChart draws points as a scatter of height rows by up to width
// columns with the value range labelled on the left. Points beyond width are
// bucketed by averaging.
func RenderRewardChart(points []RewardPlotPoint, width, height int, style ChartStyle) string {
	if len(points) == 0 {
		return "(no rewards)"
	}
	if width <= 0 {
		width = DefaultChartWidth
	}
	if height <= 1 {
		height = DefaultChartHeight
	}
	if style == (ChartStyle{}) {
		style = ASCIIChartStyle
	}

	columns := bucket(points, width)
	lo, hi := floats.Min(columns), floats.Max(columns)
	span := hi - lo

	grid := make([][]string, height)
	for r := range grid {
		grid[r] = make([]string, len(columns))
		for c := range grid[r] {
			grid[r][c] = style.Empty
		}
	}
	for c, v := range columns {
		row := 0
		if span > 0 {
			row = int((v - lo) / span * float64(height-1))
		}
		grid[height-1-row][c] = style.Point
	}

	hiLabel := fmt.Sprintf("%.1f", hi)
	loLabel := fmt.Sprintf("%.1f", lo)
	pad := max(len(hiLabel), len(loLabel))

	var sb strings.Builder
	for r, cells := range grid {
		label := ""
		switch r {
		case 0:
			label = hiLabel
		case height - 1:
			label = loLabel
		}
		fmt.Fprintf(&sb, "%*s %s%s\n", pad, label, style.Axis, strings.Join(cells, ""))
	}
	fmt.Fprintf(&sb, "%*s %s%s\n", pad, "", style.Tick, strings.Repeat("-", len(columns)))
	fmt.Fprintf(&sb, "%*s  episodes %d..%d", pad, "", points[0].Episode, points[len(points)-1].Episode)
	return sb.String()
}

func bucket(points []RewardPlotPoint, width int) []float64 {
	if len(points) <= width {
		out := make([]float64, len(points))
		for i, p := range points {
			out[i] = p.Value
		}
		return out
	}
	out := make([]float64, width)
	for c := 0; c < width; c++ {
		start := c * len(points) / width
		end := (c + 1) * len(points) / width
		sum := 0.0
		for _, p := range points[start:end] {
			sum += p.Value
		}
		out[c] = sum / float64(end-start)
	}
	return out
}
