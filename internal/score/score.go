// Package score renders generated melodies as text: one line of notes per
// measure, a compact rhythm grid and a per-phrase split.
package score

import (
	"strings"

	"melodyrl/internal/music"
)

const DefaultMeasuresPerLine = 4

// FormatMelody prints one measure per line as PITCH(DURATION) tokens. A
// measure closes once its notes reach beatsPerMeasure; an overrunning note
// closes it too and the overflow is not carried.
func FormatMelody(notes []music.Note, beatsPerMeasure int) string {
	measure := measureSixteenths(beatsPerMeasure)
	var (
		lines   []string
		current []string
		filled  int
	)
	for _, note := range notes {
		if note.IsStart() {
			continue
		}
		current = append(current, note.Label())
		filled += note.Duration.Sixteenths()
		if filled >= measure {
			lines = append(lines, strings.Join(current, " "))
			current = nil
			filled = 0
		}
	}
	if len(current) > 0 {
		lines = append(lines, strings.Join(current, " "))
	}
	return strings.Join(lines, "\n")
}

// VisualizeRhythm draws duration symbols (w h q e s) with a bar at the start
// of every measure, measuresPerLine measures per line.
func VisualizeRhythm(notes []music.Note, beatsPerMeasure, measuresPerLine int) string {
	if measuresPerLine <= 0 {
		measuresPerLine = DefaultMeasuresPerLine
	}
	measure := measureSixteenths(beatsPerMeasure)

	var (
		lines    []string
		current  []string
		filled   int
		measures int
	)
	for _, note := range notes {
		if note.IsStart() {
			continue
		}
		if filled == 0 {
			current = append(current, "|")
		}
		current = append(current, note.Duration.Symbol())
		filled += note.Duration.Sixteenths()
		if filled >= measure {
			measures++
			filled = 0
			if measures%measuresPerLine == 0 {
				current = append(current, "|")
				lines = append(lines, strings.Join(current, " "))
				current = nil
			}
		}
	}
	if len(current) > 0 {
		if current[len(current)-1] != "|" {
			current = append(current, "|")
		}
		lines = append(lines, strings.Join(current, " "))
	}
	return strings.Join(lines, "\n")
}

// SplitPhrases groups notes by the phrase their onset falls in. Phrase i
// covers beats [i*beatsPerPhrase, (i+1)*beatsPerPhrase).
func SplitPhrases(notes []music.Note, beatsPerPhrase int) [][]music.Note {
	if beatsPerPhrase <= 0 {
		return [][]music.Note{append([]music.Note(nil), notes...)}
	}
	phrase := beatsPerPhrase * music.SixteenthsPerBeat

	var (
		phrases [][]music.Note
		onset   int
	)
	for _, note := range notes {
		if note.IsStart() {
			continue
		}
		idx := onset / phrase
		for len(phrases) <= idx {
			phrases = append(phrases, nil)
		}
		phrases[idx] = append(phrases[idx], note)
		onset += note.Duration.Sixteenths()
	}
	return phrases
}

func measureSixteenths(beatsPerMeasure int) int {
	if beatsPerMeasure <= 0 {
		beatsPerMeasure = 4
	}
	return beatsPerMeasure * music.SixteenthsPerBeat
}
