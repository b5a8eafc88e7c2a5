package scape

import "melodyrl/internal/music"

// RhythmCell is a named duration figure that earns a bonus whenever the
// notes of the current measure end with it.
type RhythmCell struct {
	Name      string
	Durations []music.Duration
}

// RhythmCells is the static library of canonical figures.
var RhythmCells = []RhythmCell{
	{Name: "basic", Durations: []music.Duration{music.Quarter, music.Quarter, music.Quarter, music.Quarter}},
	{Name: "waltz", Durations: []music.Duration{music.Half, music.Quarter, music.Quarter}},
	{Name: "syncopated", Durations: []music.Duration{music.Eighth, music.Quarter, music.Eighth, music.Quarter, music.Quarter}},
	{Name: "long_short", Durations: []music.Duration{music.Half, music.Eighth, music.Eighth, music.Quarter}},
	{Name: "gallop", Durations: []music.Duration{music.Eighth, music.Sixteenth, music.Sixteenth, music.Eighth, music.Sixteenth, music.Sixteenth}},
	{Name: "dotted_feel", Durations: []music.Duration{music.Quarter, music.Eighth, music.Eighth, music.Half}},
}

// Matches reports whether durations ends with the cell.
func (c RhythmCell) Matches(durations []music.Duration) bool {
	if len(c.Durations) == 0 || len(durations) < len(c.Durations) {
		return false
	}
	tail := durations[len(durations)-len(c.Durations):]
	for i, d := range c.Durations {
		if tail[i] != d {
			return false
		}
	}
	return true
}

// MatchingCells returns the names of every cell that durations ends with.
func MatchingCells(cells []RhythmCell, durations []music.Duration) []string {
	var matched []string
	for _, cell := range cells {
		if cell.Matches(durations) {
			matched = append(matched, cell.Name)
		}
	}
	return matched
}
