package tuning

import (
	"fmt"
	"math/rand"
	"strings"
)

const (
	DefaultEpsilonFloor    = 0.01
	DefaultDecayLow        = 0.995
	DefaultDecayHigh       = 0.999
	DefaultFixedDecayRate  = 0.997
	ScheduleStochasticName = "stochastic"
	ScheduleFixedName      = "fixed"
	ScheduleConstantName   = "constant"
)

// EpsilonSchedule maps the current exploration rate to the next one. Next
// must never return a value above current.
type EpsilonSchedule interface {
	Name() string
	Next(current float64, rng *rand.Rand) float64
}

// StochasticDecay multiplies epsilon by a factor drawn uniformly from
// [Low, High] and floors the result.
type StochasticDecay struct {
	Low   float64
	High  float64
	Floor float64
}

func (StochasticDecay) Name() string { return ScheduleStochasticName }

func (p StochasticDecay) Next(current float64, rng *rand.Rand) float64 {
	low, high := p.Low, p.High
	if low <= 0 || low > 1 {
		low = DefaultDecayLow
	}
	if high < low || high > 1 {
		high = low
	}
	factor := low
	if high > low {
		factor = low + rng.Float64()*(high-low)
	}
	return floorEpsilon(current, current*factor, p.Floor)
}

// FixedDecay multiplies epsilon by a constant rate.
type FixedDecay struct {
	Rate  float64
	Floor float64
}

func (FixedDecay) Name() string { return ScheduleFixedName }

func (p FixedDecay) Next(current float64, _ *rand.Rand) float64 {
	rate := p.Rate
	if rate <= 0 || rate > 1 {
		rate = DefaultFixedDecayRate
	}
	return floorEpsilon(current, current*rate, p.Floor)
}

// ConstantEpsilon disables decay.
type ConstantEpsilon struct{}

func (ConstantEpsilon) Name() string { return ScheduleConstantName }

func (ConstantEpsilon) Next(current float64, _ *rand.Rand) float64 {
	return current
}

func DefaultEpsilonSchedule() EpsilonSchedule {
	return StochasticDecay{Low: DefaultDecayLow, High: DefaultDecayHigh, Floor: DefaultEpsilonFloor}
}

func EpsilonScheduleFromName(name string) (EpsilonSchedule, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "", ScheduleStochasticName:
		return DefaultEpsilonSchedule(), nil
	case ScheduleFixedName:
		return FixedDecay{Rate: DefaultFixedDecayRate, Floor: DefaultEpsilonFloor}, nil
	case ScheduleConstantName:
		return ConstantEpsilon{}, nil
	default:
		return nil, fmt.Errorf("unsupported epsilon schedule: %s", name)
	}
}

// floorEpsilon clamps next to floor without ever raising it above current,
// so an epsilon already below the floor (e.g. 0 for greedy playback) stays put.
func floorEpsilon(current, next, floor float64) float64 {
	if floor <= 0 {
		floor = DefaultEpsilonFloor
	}
	if next < floor {
		next = floor
	}
	if next > current {
		return current
	}
	return next
}
