package music

import (
	"fmt"
	"strings"
)

// Duration is a note length measured in sixteenth notes so beat arithmetic
// stays exact (four sixteenths always sum to one beat).
type Duration int

const (
	Sixteenth Duration = 1
	Eighth    Duration = 2
	Quarter   Duration = 4
	Half      Duration = 8
	Whole     Duration = 16
)

const SixteenthsPerBeat = 4

// Durations lists every supported note length from shortest to longest.
var Durations = []Duration{Sixteenth, Eighth, Quarter, Half, Whole}

func (d Duration) Sixteenths() int {
	return int(d)
}

// Beats returns the length in beats (0.25, 0.5, 1, 2 or 4).
func (d Duration) Beats() float64 {
	return float64(d) / SixteenthsPerBeat
}

func (d Duration) Valid() bool {
	switch d {
	case Sixteenth, Eighth, Quarter, Half, Whole:
		return true
	default:
		return false
	}
}

func (d Duration) String() string {
	switch d {
	case Sixteenth:
		return "SIXTEENTH"
	case Eighth:
		return "EIGHTH"
	case Quarter:
		return "QUARTER"
	case Half:
		return "HALF"
	case Whole:
		return "WHOLE"
	default:
		return "NONE"
	}
}

// Symbol is the single-letter rhythm notation used by text renderers.
func (d Duration) Symbol() string {
	switch d {
	case Sixteenth:
		return "s"
	case Eighth:
		return "e"
	case Quarter:
		return "q"
	case Half:
		return "h"
	case Whole:
		return "w"
	default:
		return "?"
	}
}

func (d Duration) IsShort() bool {
	return d == Sixteenth || d == Eighth
}

func (d Duration) IsLong() bool {
	return d == Half || d == Whole
}

func ParseDuration(s string) (Duration, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SIXTEENTH", "S":
		return Sixteenth, nil
	case "EIGHTH", "E":
		return Eighth, nil
	case "QUARTER", "Q":
		return Quarter, nil
	case "HALF", "H":
		return Half, nil
	case "WHOLE", "W":
		return Whole, nil
	default:
		return 0, fmt.Errorf("unsupported duration: %q", s)
	}
}

// DurationFromBeats maps a beat length back onto a Duration.
func DurationFromBeats(beats float64) (Duration, bool) {
	for _, d := range Durations {
		if d.Beats() == beats {
			return d, true
		}
	}
	return 0, false
}

// Pitch is a diatonic scale degree in C major between C4 and C5. Start is the
// sentinel that fills the history window before the first note is played.
type Pitch int

const (
	Start Pitch = iota - 1
	C4
	D4
	E4
	F4
	G4
	A4
	B4
	C5
)

// Pitches lists the playable scale degrees in ascending order.
var Pitches = []Pitch{C4, D4, E4, F4, G4, A4, B4, C5}

var (
	pitchNames = []string{"C4", "D4", "E4", "F4", "G4", "A4", "B4", "C5"}
	pitchMIDI  = []int{60, 62, 64, 65, 67, 69, 71, 72}
)

func (p Pitch) Valid() bool {
	return p >= C4 && p <= C5
}

func (p Pitch) String() string {
	if p == Start {
		return "START"
	}
	if !p.Valid() {
		return fmt.Sprintf("Pitch(%d)", int(p))
	}
	return pitchNames[p]
}

// MIDI returns the MIDI key number, or 0 for the start sentinel.
func (p Pitch) MIDI() int {
	if !p.Valid() {
		return 0
	}
	return pitchMIDI[p]
}

// Interval is the absolute distance between two pitches in semitones.
func Interval(a, b Pitch) int {
	delta := a.MIDI() - b.MIDI()
	if delta < 0 {
		return -delta
	}
	return delta
}

func ParsePitch(s string) (Pitch, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "START" {
		return Start, nil
	}
	for i, candidate := range pitchNames {
		if candidate == name {
			return Pitch(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported pitch: %q", s)
}

// Note is an immutable (pitch, duration) pair.
type Note struct {
	Pitch    Pitch
	Duration Duration
}

// StartNote is the placeholder held in the history window at episode start.
var StartNote = Note{Pitch: Start}

func (n Note) IsStart() bool {
	return n.Pitch == Start
}

// String encodes the note as PITCH:DURATION, e.g. "C4:QUARTER" or "START:NONE".
func (n Note) String() string {
	return n.Pitch.String() + ":" + n.Duration.String()
}

// Label is the display form used in melody listings, e.g. "C4(QUARTER)".
func (n Note) Label() string {
	return fmt.Sprintf("%s(%s)", n.Pitch, n.Duration)
}

func ParseNote(s string) (Note, error) {
	pitchPart, durationPart, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Note{}, fmt.Errorf("note %q must be PITCH:DURATION", s)
	}
	pitch, err := ParsePitch(pitchPart)
	if err != nil {
		return Note{}, err
	}
	if pitch == Start {
		return StartNote, nil
	}
	duration, err := ParseDuration(durationPart)
	if err != nil {
		return Note{}, err
	}
	return Note{Pitch: pitch, Duration: duration}, nil
}

// TotalBeats sums the lengths of the real notes in a melody.
func TotalBeats(notes []Note) float64 {
	sixteenths := 0
	for _, n := range notes {
		if n.IsStart() {
			continue
		}
		sixteenths += n.Duration.Sixteenths()
	}
	return float64(sixteenths) / SixteenthsPerBeat
}
