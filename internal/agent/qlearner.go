package agent

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"melodyrl/internal/music"
	"melodyrl/internal/tuning"
)

const (
	DefaultLearningRate    = 0.1
	DefaultGamma           = 0.95
	DefaultEpsilon         = 0.1
	DefaultBeatsPerMeasure = 4
)

// Source tells which branch of the policy produced an action.
type Source int

const (
	SourceGreedy Source = iota
	SourceExplore
	SourcePattern
)

func (s Source) String() string {
	switch s {
	case SourceGreedy:
		return "greedy"
	case SourceExplore:
		return "explore"
	case SourcePattern:
		return "pattern"
	default:
		return "unknown"
	}
}

type Config struct {
	LearningRate     float64
	Gamma            float64
	Epsilon          float64
	PatternThreshold float64
	BeatsPerMeasure  int
	Schedule         tuning.EpsilonSchedule
}

func DefaultConfig() Config {
	return Config{
		LearningRate:     DefaultLearningRate,
		Gamma:            DefaultGamma,
		Epsilon:          DefaultEpsilon,
		PatternThreshold: DefaultPatternThreshold,
		BeatsPerMeasure:  DefaultBeatsPerMeasure,
		Schedule:         tuning.DefaultEpsilonSchedule(),
	}
}

// QLearner is an epsilon-greedy tabular controller that masks actions whose
// duration would cross a bar line and remembers rewarding measures.
type QLearner struct {
	id              string
	actions         *music.ActionSpace
	lr              float64
	gamma           float64
	epsilon         float64
	beatsPerMeasure int
	schedule        tuning.EpsilonSchedule
	rng             *rand.Rand

	table    *ValueTable
	patterns *PatternMemory
}

func NewQLearner(id string, actions *music.ActionSpace, cfg Config, rng *rand.Rand) (*QLearner, error) {
	if id == "" {
		return nil, errors.New("agent id is required")
	}
	if actions == nil || actions.Size() == 0 {
		return nil, errors.New("action space is required")
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if cfg.LearningRate <= 0 || cfg.LearningRate > 1 {
		return nil, fmt.Errorf("learning rate must be in (0, 1], got %v", cfg.LearningRate)
	}
	if cfg.Gamma < 0 || cfg.Gamma > 1 {
		return nil, fmt.Errorf("gamma must be in [0, 1], got %v", cfg.Gamma)
	}
	if cfg.Epsilon < 0 || cfg.Epsilon > 1 {
		return nil, fmt.Errorf("epsilon must be in [0, 1], got %v", cfg.Epsilon)
	}
	if cfg.BeatsPerMeasure <= 0 {
		cfg.BeatsPerMeasure = DefaultBeatsPerMeasure
	}
	if cfg.Schedule == nil {
		cfg.Schedule = tuning.DefaultEpsilonSchedule()
	}

	return &QLearner{
		id:              id,
		actions:         actions,
		lr:              cfg.LearningRate,
		gamma:           cfg.Gamma,
		epsilon:         cfg.Epsilon,
		beatsPerMeasure: cfg.BeatsPerMeasure,
		schedule:        cfg.Schedule,
		rng:             rng,
		table:           NewValueTable(actions.Size()),
		patterns:        NewPatternMemory(cfg.PatternThreshold),
	}, nil
}

func (q *QLearner) ID() string {
	return q.id
}

func (q *QLearner) Epsilon() float64 {
	return q.epsilon
}

func (q *QLearner) SetEpsilon(epsilon float64) {
	q.epsilon = math.Max(0, math.Min(1, epsilon))
}

func (q *QLearner) ScheduleName() string {
	return q.schedule.Name()
}

func (q *QLearner) Table() *ValueTable {
	return q.table
}

func (q *QLearner) Memory() *PatternMemory {
	return q.patterns
}

// SelectAction implements scape.Composer.
func (q *QLearner) SelectAction(stateKey string, currentBeat float64, valid music.ValidityFunc) int {
	action, _ := q.Decide(stateKey, currentBeat, valid)
	return action
}

// Decide picks an action and reports which branch chose it.
//
// At the top of a measure a remembered pattern's opening action is replayed
// with probability 1-epsilon, bypassing the table. Otherwise epsilon decides
// between a uniformly random valid action and the masked greedy action.
func (q *QLearner) Decide(stateKey string, currentBeat float64, valid music.ValidityFunc) (int, Source) {
	if q.atMeasureStart(currentBeat) && q.patterns.Len() > 0 && q.rng.Float64() > q.epsilon {
		if pattern, ok := q.patterns.Random(q.rng); ok && len(pattern.Actions) > 0 {
			return pattern.Actions[0], SourcePattern
		}
	}

	if q.rng.Float64() < q.epsilon {
		candidates := q.validActions(currentBeat, valid)
		if len(candidates) == 0 {
			// Nothing fits: fall back to action 0 and let the reward punish it.
			return 0, SourceExplore
		}
		return candidates[q.rng.Intn(len(candidates))], SourceExplore
	}

	return q.BestAction(stateKey, currentBeat, valid), SourceGreedy
}

// BestAction is the greedy choice for stateKey under the validity mask. It
// creates the state's row if this is the first visit.
func (q *QLearner) BestAction(stateKey string, currentBeat float64, valid music.ValidityFunc) int {
	row := q.table.Row(stateKey)
	return MaskedArgmax(row, func(action int) bool {
		return q.actionValid(action, currentBeat, valid)
	})
}

// Update applies the one-step Q-learning rule and feeds the pattern memory.
func (q *QLearner) Update(stateKey string, action int, reward float64, nextStateKey string, done bool, duration music.Duration, measureComplete bool) {
	row := q.table.Row(stateKey)
	next := q.table.Row(nextStateKey)
	if action < 0 || action >= len(row) {
		panic(fmt.Sprintf("action %d outside value row of width %d", action, len(row)))
	}

	future := 0.0
	if !done {
		future = q.gamma * maxValue(next)
	}
	row[action] += q.lr * (reward + future - row[action])

	q.patterns.Record(action, duration, reward)
	if measureComplete {
		q.patterns.CompleteMeasure()
	}
}

// EndEpisode drops any partial measure so it cannot bleed into the next
// episode's first measure.
func (q *QLearner) EndEpisode() {
	q.patterns.Discard()
}

func (q *QLearner) DecayEpsilon() {
	q.epsilon = q.schedule.Next(q.epsilon, q.rng)
}

func (q *QLearner) atMeasureStart(beat float64) bool {
	return math.Mod(beat, float64(q.beatsPerMeasure)) == 0
}

func (q *QLearner) actionValid(action int, beat float64, valid music.ValidityFunc) bool {
	if valid == nil {
		return true
	}
	note := q.actions.MustNote(action)
	return valid(beat, note.Duration)
}

func (q *QLearner) validActions(beat float64, valid music.ValidityFunc) []int {
	out := make([]int, 0, q.actions.Size())
	for action := 0; action < q.actions.Size(); action++ {
		if q.actionValid(action, beat, valid) {
			out = append(out, action)
		}
	}
	return out
}
