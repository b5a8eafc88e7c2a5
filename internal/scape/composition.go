package scape

import (
	"context"
	"fmt"
	"math"
	"strings"

	"melodyrl/internal/music"
)

const (
	DefaultBeatsPerMeasure   = 4
	DefaultMeasuresPerPhrase = 4
	DefaultPhrases           = 8
	StateWindow              = 3
)

// Layout fixes the time grid of an episode.
type Layout struct {
	BeatsPerMeasure   int `json:"beats_per_measure"`
	MeasuresPerPhrase int `json:"measures_per_phrase"`
	Phrases           int `json:"phrases"`
}

var DefaultLayout = Layout{
	BeatsPerMeasure:   DefaultBeatsPerMeasure,
	MeasuresPerPhrase: DefaultMeasuresPerPhrase,
	Phrases:           DefaultPhrases,
}

func (l Layout) Validate() error {
	if l.BeatsPerMeasure <= 0 || l.MeasuresPerPhrase <= 0 || l.Phrases <= 0 {
		return fmt.Errorf("layout values must be > 0: %+v", l)
	}
	return nil
}

func (l Layout) MeasureSixteenths() int {
	return l.BeatsPerMeasure * music.SixteenthsPerBeat
}

func (l Layout) PhraseSixteenths() int {
	return l.MeasureSixteenths() * l.MeasuresPerPhrase
}

func (l Layout) TotalSixteenths() int {
	return l.PhraseSixteenths() * l.Phrases
}

func (l Layout) TotalBeats() int {
	return l.BeatsPerMeasure * l.MeasuresPerPhrase * l.Phrases
}

func (l Layout) TotalMeasures() int {
	return l.MeasuresPerPhrase * l.Phrases
}

// StepInfo is the side channel returned with every step.
type StepInfo struct {
	CurrentBeat     float64     `json:"current_beat"`
	CurrentMeasure  int         `json:"current_measure"`
	CurrentPhrase   int         `json:"current_phrase"`
	MeasureComplete bool        `json:"measure_complete"`
	Note            music.Note  `json:"-"`
	Valid           bool        `json:"valid"`
	Breakdown       []RuleScore `json:"breakdown,omitempty"`
}

// CompositionScape is a fixed-length melody-writing environment. The beat
// counter is kept in sixteenths so fractional durations never drift.
type CompositionScape struct {
	layout  Layout
	actions *music.ActionSpace
	rules   []RewardRule
	cells   []RhythmCell

	beat         int
	measure      int
	phrase       int
	window       [StateWindow]music.Note
	measureNotes []music.Note
	phraseNotes  []music.Note
	previous     music.Note
	hasPrevious  bool
}

func NewCompositionScape() *CompositionScape {
	env, err := NewCompositionScapeWithLayout(DefaultLayout, music.DefaultActionSpace())
	if err != nil {
		panic(err)
	}
	return env
}

func NewCompositionScapeWithLayout(layout Layout, actions *music.ActionSpace) (*CompositionScape, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if actions == nil || actions.Size() == 0 {
		return nil, fmt.Errorf("composition scape requires a non-empty action space")
	}
	env := &CompositionScape{
		layout:  layout,
		actions: actions,
		rules:   DefaultRewardRules,
		cells:   RhythmCells,
	}
	env.Reset()
	return env, nil
}

func (*CompositionScape) Name() string {
	return "composition"
}

func (s *CompositionScape) Layout() Layout {
	return s.layout
}

func (s *CompositionScape) Actions() *music.ActionSpace {
	return s.actions
}

// Reset starts a new episode and returns the initial state key.
func (s *CompositionScape) Reset() string {
	s.beat = 0
	s.measure = 0
	s.phrase = 0
	for i := range s.window {
		s.window[i] = music.StartNote
	}
	s.measureNotes = nil
	s.phraseNotes = nil
	s.previous = music.Note{}
	s.hasPrevious = false
	return s.StateKey()
}

// StateKey encodes the recent-note window. Beat position is deliberately
// absent: it shapes the mask and the reward but not the table address.
func (s *CompositionScape) StateKey() string {
	parts := make([]string, len(s.window))
	for i, n := range s.window {
		parts[i] = n.String()
	}
	return strings.Join(parts, "|")
}

func (s *CompositionScape) CurrentBeat() float64 {
	return sixteenthsToBeats(s.beat)
}

func (s *CompositionScape) CurrentMeasure() int {
	return s.measure
}

func (s *CompositionScape) CurrentPhrase() int {
	return s.phrase
}

func (s *CompositionScape) Done() bool {
	return s.beat >= s.layout.TotalSixteenths()
}

// IsValidDuration reports whether a note of length d placed now stays inside
// the current measure.
func (s *CompositionScape) IsValidDuration(d music.Duration) bool {
	return fitsMeasure(s.beat, d, s.layout)
}

func (s *CompositionScape) IsValidDurationAt(beat float64, d music.Duration) bool {
	return fitsMeasure(beatsToSixteenths(beat), d, s.layout)
}

// IsMeasureComplete is true when the counter sits exactly on a bar line
// after at least one note.
func (s *CompositionScape) IsMeasureComplete() bool {
	return s.beat > 0 && s.beat%s.layout.MeasureSixteenths() == 0
}

// Step places the note for action and advances the clock by its length.
// A note that overruns the bar is penalised but still applied.
func (s *CompositionScape) Step(action int) (string, float64, bool, StepInfo) {
	note := s.actions.MustNote(action)

	rctx := RewardContext{
		Note:         note,
		Layout:       s.layout,
		Start:        s.beat,
		MeasureNotes: s.measureNotes,
		PhraseNotes:  s.phraseNotes,
		Previous:     s.previous,
		HasPrevious:  s.hasPrevious,
		Cells:        s.cells,
	}
	reward, breakdown := EvaluateRules(s.rules, rctx)
	valid := rctx.Fits()

	s.beat += note.Duration.Sixteenths()
	copy(s.window[:], s.window[1:])
	s.window[len(s.window)-1] = note
	s.measureNotes = append(s.measureNotes, note)
	s.phraseNotes = append(s.phraseNotes, note)
	s.previous = note
	s.hasPrevious = true

	measureComplete := s.IsMeasureComplete()
	if measureComplete {
		s.measure++
		s.measureNotes = nil
		if s.measure%s.layout.MeasuresPerPhrase == 0 {
			s.phrase++
			s.phraseNotes = nil
		}
	}

	info := StepInfo{
		CurrentBeat:     s.CurrentBeat(),
		CurrentMeasure:  s.measure,
		CurrentPhrase:   s.phrase,
		MeasureComplete: measureComplete,
		Note:            note,
		Valid:           valid,
		Breakdown:       breakdown,
	}
	return s.StateKey(), reward, s.Done(), info
}

// Evaluate plays one episode with composer and no learning. The trace
// carries the produced melody under "melody".
func (s *CompositionScape) Evaluate(ctx context.Context, agent Agent) (Fitness, Trace, error) {
	composer, ok := agent.(Composer)
	if !ok {
		return 0, nil, fmt.Errorf("agent %s does not implement composer", agent.ID())
	}

	state := s.Reset()
	melody := make([]music.Note, 0, s.layout.TotalBeats())
	rewards := make([]float64, 0, s.layout.TotalBeats())
	total := 0.0
	invalid := 0
	measures := 0
	for !s.Done() {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		action := composer.SelectAction(state, s.CurrentBeat(), s.IsValidDurationAt)
		next, reward, done, info := s.Step(action)
		melody = append(melody, info.Note)
		rewards = append(rewards, reward)
		total += reward
		if !info.Valid {
			invalid++
		}
		if info.MeasureComplete {
			measures++
		}
		state = next
		if done {
			break
		}
	}

	return Fitness(total), Trace{
		"melody":            melody,
		"rewards":           rewards,
		"total_reward":      total,
		"notes":             len(melody),
		"invalid_notes":     invalid,
		"measures_complete": measures,
		"total_beats":       s.CurrentBeat(),
	}, nil
}

func fitsMeasure(sixteenth int, d music.Duration, layout Layout) bool {
	offset := sixteenth % layout.MeasureSixteenths()
	return offset+d.Sixteenths() <= layout.MeasureSixteenths()
}

func sixteenthsToBeats(n int) float64 {
	return float64(n) / music.SixteenthsPerBeat
}

func beatsToSixteenths(beat float64) int {
	return int(math.Round(beat * music.SixteenthsPerBeat))
}
