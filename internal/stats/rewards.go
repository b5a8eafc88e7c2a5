package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const DefaultRewardWindow = 100

// RewardSummary describes a per-episode reward curve.
type RewardSummary struct {
	Episodes    int     `json:"episodes"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	BestEpisode int     `json:"best_episode"`
	First       float64 `json:"first"`
	Last        float64 `json:"last"`
	Window      int     `json:"window"`
	FirstWindow float64 `json:"first_window_mean"`
	LastWindow  float64 `json:"last_window_mean"`
	Improvement float64 `json:"improvement"`
}

// SummarizeRewards compares the mean of the first and last window episodes.
// BestEpisode is 1-based.
func SummarizeRewards(rewards []float64, window int) RewardSummary {
	if len(rewards) == 0 {
		return RewardSummary{}
	}
	if window <= 0 {
		window = DefaultRewardWindow
	}
	if window > len(rewards) {
		window = len(rewards)
	}

	mean, std := stat.MeanStdDev(rewards, nil)
	if math.IsNaN(std) {
		std = 0
	}
	firstWindow := stat.Mean(rewards[:window], nil)
	lastWindow := stat.Mean(rewards[len(rewards)-window:], nil)
	return RewardSummary{
		Episodes:    len(rewards),
		Mean:        mean,
		StdDev:      std,
		Min:         floats.Min(rewards),
		Max:         floats.Max(rewards),
		BestEpisode: floats.MaxIdx(rewards) + 1,
		First:       rewards[0],
		Last:        rewards[len(rewards)-1],
		Window:      window,
		FirstWindow: firstWindow,
		LastWindow:  lastWindow,
		Improvement: lastWindow - firstWindow,
	}
}

// MovingAverage returns the trailing mean over up to window values at each
// index. The first entries average over what is available.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 0 {
		window = 1
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		n := window
		if i+1 < window {
			n = i + 1
		}
		out[i] = sum / float64(n)
	}
	return out
}
