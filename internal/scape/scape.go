package scape

import (
	"context"

	"melodyrl/internal/music"
)

type Fitness float64

type Trace map[string]any

type Agent interface {
	ID() string
}

// Composer picks the next action for a state. The validity predicate is
// handed over at call time together with the beat it should be checked at.
type Composer interface {
	Agent
	SelectAction(stateKey string, currentBeat float64, valid music.ValidityFunc) int
}

// Environment is the step/reset contract a learning driver works against.
type Environment interface {
	Name() string
	Reset() string
	Step(action int) (string, float64, bool, StepInfo)
	IsValidDuration(d music.Duration) bool
	IsValidDurationAt(beat float64, d music.Duration) bool
	CurrentBeat() float64
	Actions() *music.ActionSpace
}

type Scape interface {
	Name() string
	Evaluate(ctx context.Context, agent Agent) (Fitness, Trace, error)
}
