package stats

import (
	"math"
	"strings"
	"testing"
)

func TestSummarizeRewards(t *testing.T) {
	rewards := []float64{-4, 0, 2, 6, 10}
	s := SummarizeRewards(rewards, 2)
	if s.Episodes != 5 || s.Min != -4 || s.Max != 10 || s.BestEpisode != 5 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if math.Abs(s.Mean-2.8) > 1e-9 {
		t.Fatalf("unexpected mean: %v", s.Mean)
	}
	if s.FirstWindow != -2 || s.LastWindow != 8 || s.Improvement != 10 {
		t.Fatalf("unexpected windows: %+v", s)
	}
}

func TestSummarizeRewardsEdgeCases(t *testing.T) {
	if s := SummarizeRewards(nil, 10); s.Episodes != 0 {
		t.Fatalf("expected zero summary, got %+v", s)
	}
	s := SummarizeRewards([]float64{3}, 10)
	if s.Window != 1 || s.StdDev != 0 || s.Improvement != 0 {
		t.Fatalf("unexpected single-episode summary: %+v", s)
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{2, 4, 6, 8}, 2)
	want := []float64{2, 3, 5, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestBuildRewardPlotKeepsLastEpisode(t *testing.T) {
	points := BuildRewardPlot([]float64{1, 2, 3, 4, 5}, 1, 2)
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %+v", points)
	}
	if points[0].Episode != 2 || points[1].Episode != 4 || points[2].Episode != 5 || points[2].Value != 5 {
		t.Fatalf("unexpected points: %+v", points)
	}
	if BuildRewardPlot(nil, 1, 1) != nil {
		t.Fatal("expected nil plot for empty rewards")
	}
}

func TestRenderRewardChart(t *testing.T) {
	points := BuildRewardPlot([]float64{0, 5, 10}, 1, 1)
	chart := RenderRewardChart(points, 10, 3, ASCIIChartStyle)
	lines := strings.Split(chart, "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), chart)
	}
	if !strings.HasPrefix(lines[0], "10.0 |") || !strings.HasSuffix(lines[0], "  *") {
		t.Fatalf("unexpected top row %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], " 0.0 |*") {
		t.Fatalf("unexpected bottom row %q", lines[2])
	}
	if !strings.Contains(lines[4], "episodes 1..3") {
		t.Fatalf("unexpected footer %q", lines[4])
	}
}

func TestRenderRewardChartBucketsWidePlots(t *testing.T) {
	rewards := make([]float64, 200)
	for i := range rewards {
		rewards[i] = float64(i)
	}
	chart := RenderRewardChart(BuildRewardPlot(rewards, 1, 1), 20, 4, UnicodeChartStyle)
	first := strings.Split(chart, "\n")[0]
	if got := strings.Count(first, "●") + strings.Count(first, " "); got < 20 {
		t.Fatalf("expected 20 columns in %q", first)
	}
	if RenderRewardChart(nil, 10, 5, ASCIIChartStyle) != "(no rewards)" {
		t.Fatal("expected placeholder for empty plot")
	}
}
