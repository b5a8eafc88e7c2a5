package scape

import "melodyrl/internal/music"

const (
	validFitReward     = 1.0
	invalidFitPenalty  = -5.0
	varietyReward      = 0.5
	rhythmCellReward   = 2.0
	cadenceReward      = 2.0
	stepwiseReward     = 1.0
	leapReward         = 1.0
	repetitionPenalty  = -8.0
	resolutionReward   = 5.0
	stepwiseMaxSemis   = 2
	leapMinSemis       = 4
	repetitionLookback = 2
)

// RewardContext is everything a rule may look at when scoring a candidate
// note. Positions are in sixteenths and describe the moment before the note
// is placed.
type RewardContext struct {
	Note   music.Note
	Layout Layout
	Start  int
	// MeasureNotes and PhraseNotes hold the notes already placed in the
	// current measure and phrase.
	MeasureNotes []music.Note
	PhraseNotes  []music.Note
	// Previous is the last real note of the episode, if any.
	Previous    music.Note
	HasPrevious bool
	Cells       []RhythmCell
}

func (c RewardContext) Offset() int {
	return c.Start % c.Layout.MeasureSixteenths()
}

func (c RewardContext) Fits() bool {
	return c.Offset()+c.Note.Duration.Sixteenths() <= c.Layout.MeasureSixteenths()
}

// MeasureDurations is the duration sequence of the measure including the
// candidate note.
func (c RewardContext) MeasureDurations() []music.Duration {
	out := make([]music.Duration, 0, len(c.MeasureNotes)+1)
	for _, n := range c.MeasureNotes {
		out = append(out, n.Duration)
	}
	return append(out, c.Note.Duration)
}

// RewardRule is one additive term of the reward.
type RewardRule struct {
	Name  string
	Score func(RewardContext) float64
}

// RuleScore is the contribution a rule made to one step.
type RuleScore struct {
	Rule  string  `json:"rule"`
	Value float64 `json:"value"`
}

// DefaultRewardRules is evaluated in order and summed. Rhythm rules come
// first, then melodic rules, then the terminal bonus.
var DefaultRewardRules = []RewardRule{
	{Name: "measure_fit", Score: scoreMeasureFit},
	{Name: "duration_variety", Score: scoreDurationVariety},
	{Name: "rhythm_cells", Score: scoreRhythmCells},
	{Name: "cadence", Score: scoreCadence},
	{Name: "stepwise_short", Score: scoreStepwiseShort},
	{Name: "leap_long", Score: scoreLeapLong},
	{Name: "phrase_repetition", Score: scorePhraseRepetition},
	{Name: "tonic_resolution", Score: scoreTonicResolution},
}

// EvaluateRules sums every rule and returns the non-zero contributions.
func EvaluateRules(rules []RewardRule, ctx RewardContext) (float64, []RuleScore) {
	total := 0.0
	var breakdown []RuleScore
	for _, rule := range rules {
		v := rule.Score(ctx)
		if v == 0 {
			continue
		}
		total += v
		breakdown = append(breakdown, RuleScore{Rule: rule.Name, Value: v})
	}
	return total, breakdown
}

func scoreMeasureFit(ctx RewardContext) float64 {
	if ctx.Fits() {
		return validFitReward
	}
	return invalidFitPenalty
}

func scoreDurationVariety(ctx RewardContext) float64 {
	if len(ctx.MeasureNotes) == 0 {
		return 0
	}
	if ctx.MeasureNotes[len(ctx.MeasureNotes)-1].Duration != ctx.Note.Duration {
		return varietyReward
	}
	return 0
}

func scoreRhythmCells(ctx RewardContext) float64 {
	durations := ctx.MeasureDurations()
	total := 0.0
	for _, cell := range ctx.Cells {
		if cell.Matches(durations) {
			total += rhythmCellReward
		}
	}
	return total
}

func scoreCadence(ctx RewardContext) float64 {
	if !ctx.Note.Duration.IsLong() {
		return 0
	}
	end := ctx.Start + ctx.Note.Duration.Sixteenths()
	if end%ctx.Layout.PhraseSixteenths() == 0 {
		return cadenceReward
	}
	return 0
}

func scoreStepwiseShort(ctx RewardContext) float64 {
	if !ctx.HasPrevious || !ctx.Note.Duration.IsShort() {
		return 0
	}
	if music.Interval(ctx.Note.Pitch, ctx.Previous.Pitch) <= stepwiseMaxSemis {
		return stepwiseReward
	}
	return 0
}

func scoreLeapLong(ctx RewardContext) float64 {
	if !ctx.HasPrevious || !ctx.Note.Duration.IsLong() {
		return 0
	}
	if music.Interval(ctx.Note.Pitch, ctx.Previous.Pitch) >= leapMinSemis {
		return leapReward
	}
	return 0
}

func scorePhraseRepetition(ctx RewardContext) float64 {
	if len(ctx.PhraseNotes) < repetitionLookback {
		return 0
	}
	for _, n := range ctx.PhraseNotes[len(ctx.PhraseNotes)-repetitionLookback:] {
		if n.Pitch != ctx.Note.Pitch {
			return 0
		}
	}
	return repetitionPenalty
}

func scoreTonicResolution(ctx RewardContext) float64 {
	finalMeasureStart := ctx.Layout.TotalSixteenths() - ctx.Layout.MeasureSixteenths()
	if ctx.Start < finalMeasureStart {
		return 0
	}
	if ctx.Note == (music.Note{Pitch: music.C4, Duration: music.Whole}) {
		return resolutionReward
	}
	return 0
}
