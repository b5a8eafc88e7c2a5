package stats

// RewardPlotPoint is one sample of the smoothed reward curve. Episode is
// 1-based.
type RewardPlotPoint struct {
	Episode int     `json:"episode"`
	Value   float64 `json:"value"`
}

// BuildRewardPlot smooths rewards over window and samples every step
// episodes, always keeping the final episode.
func BuildRewardPlot(rewards []float64, window, step int) []RewardPlotPoint {
	if len(rewards) == 0 {
		return nil
	}
	if step <= 0 {
		step = 1
	}
	smoothed := MovingAverage(rewards, window)
	points := make([]RewardPlotPoint, 0, len(smoothed)/step+1)
	for i := step - 1; i < len(smoothed); i += step {
		points = append(points, RewardPlotPoint{Episode: i + 1, Value: smoothed[i]})
	}
	if last := len(smoothed); len(points) == 0 || points[len(points)-1].Episode != last {
		points = append(points, RewardPlotPoint{Episode: last, Value: smoothed[last-1]})
	}
	return points
}
