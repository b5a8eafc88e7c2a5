package agent

import (
	"math/rand"
	"strconv"
	"strings"

	"melodyrl/internal/music"
)

const DefaultPatternThreshold = 5.0

// Pattern is the action sequence of one well-rewarded measure.
type Pattern struct {
	Actions   []int            `json:"actions"`
	Durations []music.Duration `json:"durations"`
	Reward    float64          `json:"reward"`
}

func (p Pattern) key() string {
	parts := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		parts[i] = strconv.Itoa(a)
	}
	return strings.Join(parts, ",")
}

// PatternMemory accumulates the actions of the measure in progress and keeps
// every distinct measure whose total reward beat the threshold. It only ever
// grows.
type PatternMemory struct {
	threshold float64
	patterns  []Pattern
	seen      map[string]struct{}

	actions   []int
	durations []music.Duration
	rewards   []float64

	measures int
}

func NewPatternMemory(threshold float64) *PatternMemory {
	return &PatternMemory{
		threshold: threshold,
		seen:      make(map[string]struct{}),
	}
}

// Record appends one step to the in-progress measure.
func (m *PatternMemory) Record(action int, duration music.Duration, reward float64) {
	m.actions = append(m.actions, action)
	m.durations = append(m.durations, duration)
	m.rewards = append(m.rewards, reward)
}

// CompleteMeasure closes the in-progress measure. It reports whether the
// measure was stored. The buffers are cleared either way.
func (m *PatternMemory) CompleteMeasure() bool {
	m.measures++
	defer m.clearBuffers()

	if len(m.actions) == 0 {
		return false
	}
	total := 0.0
	for _, r := range m.rewards {
		total += r
	}
	if total <= m.threshold {
		return false
	}
	candidate := Pattern{
		Actions:   append([]int(nil), m.actions...),
		Durations: append([]music.Duration(nil), m.durations...),
		Reward:    total,
	}
	key := candidate.key()
	if _, exists := m.seen[key]; exists {
		return false
	}
	m.seen[key] = struct{}{}
	m.patterns = append(m.patterns, candidate)
	return true
}

// Discard drops the in-progress measure without counting it.
func (m *PatternMemory) Discard() {
	m.clearBuffers()
}

func (m *PatternMemory) clearBuffers() {
	m.actions = m.actions[:0]
	m.durations = m.durations[:0]
	m.rewards = m.rewards[:0]
}

func (m *PatternMemory) Len() int {
	return len(m.patterns)
}

// MeasuresSeen counts every completed measure offered to the memory.
func (m *PatternMemory) MeasuresSeen() int {
	return m.measures
}

func (m *PatternMemory) Pending() int {
	return len(m.actions)
}

func (m *PatternMemory) Contains(actions []int) bool {
	_, ok := m.seen[Pattern{Actions: actions}.key()]
	return ok
}

// Random picks a stored pattern uniformly.
func (m *PatternMemory) Random(rng *rand.Rand) (Pattern, bool) {
	if len(m.patterns) == 0 {
		return Pattern{}, false
	}
	return m.patterns[rng.Intn(len(m.patterns))], true
}

func (m *PatternMemory) Patterns() []Pattern {
	out := make([]Pattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, Pattern{
			Actions:   append([]int(nil), p.Actions...),
			Durations: append([]music.Duration(nil), p.Durations...),
			Reward:    p.Reward,
		})
	}
	return out
}
