package tuning

import (
	"math/rand"
	"testing"
)

func TestStochasticDecayStaysWithinBounds(t *testing.T) {
	schedule := DefaultEpsilonSchedule()
	rng := rand.New(rand.NewSource(7))
	epsilon := 1.0
	for i := 0; i < 5000; i++ {
		next := schedule.Next(epsilon, rng)
		if next > epsilon {
			t.Fatalf("step %d: epsilon increased from %v to %v", i, epsilon, next)
		}
		if next < DefaultEpsilonFloor {
			t.Fatalf("step %d: epsilon %v below floor", i, next)
		}
		if epsilon > DefaultEpsilonFloor/DefaultDecayLow {
			ratio := next / epsilon
			if ratio < DefaultDecayLow-1e-12 || ratio > DefaultDecayHigh+1e-12 {
				t.Fatalf("step %d: decay factor %v outside [%v, %v]", i, ratio, DefaultDecayLow, DefaultDecayHigh)
			}
		}
		epsilon = next
	}
	if epsilon != DefaultEpsilonFloor {
		t.Fatalf("expected epsilon to settle on the floor, got %v", epsilon)
	}
}

func TestDecayNeverRaisesEpsilonBelowFloor(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, schedule := range []EpsilonSchedule{DefaultEpsilonSchedule(), FixedDecay{}, ConstantEpsilon{}} {
		if got := schedule.Next(0, rng); got != 0 {
			t.Fatalf("%s: expected zero epsilon to stay zero, got %v", schedule.Name(), got)
		}
		if got := schedule.Next(0.005, rng); got != 0.005 {
			t.Fatalf("%s: expected sub-floor epsilon to stay put, got %v", schedule.Name(), got)
		}
	}
}

func TestFixedDecayIsDeterministic(t *testing.T) {
	schedule := FixedDecay{Rate: 0.5, Floor: 0.01}
	if got := schedule.Next(0.8, nil); got != 0.4 {
		t.Fatalf("expected 0.4, got %v", got)
	}
	if got := schedule.Next(0.015, nil); got != 0.01 {
		t.Fatalf("expected floor 0.01, got %v", got)
	}
}

func TestEpsilonScheduleFromName(t *testing.T) {
	cases := map[string]string{
		"":           ScheduleStochasticName,
		"stochastic": ScheduleStochasticName,
		"FIXED":      ScheduleFixedName,
		" constant ": ScheduleConstantName,
	}
	for input, want := range cases {
		schedule, err := EpsilonScheduleFromName(input)
		if err != nil {
			t.Fatalf("schedule %q: %v", input, err)
		}
		if schedule.Name() != want {
			t.Fatalf("schedule %q: got %s want %s", input, schedule.Name(), want)
		}
	}
	if _, err := EpsilonScheduleFromName("cosine"); err == nil {
		t.Fatal("expected error for unknown schedule")
	}
}
