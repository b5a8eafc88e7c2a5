package music

import "fmt"

// ValidityFunc reports whether a note of length d may start at the given beat.
// The beat is passed in at call time instead of being captured so the same
// predicate can be evaluated for any candidate position.
type ValidityFunc func(beat float64, d Duration) bool

// ActionSpace enumerates every pitch×duration combination. Actions are
// numbered pitch-major: action = pitchIndex*len(durations) + durationIndex.
// Both lookup tables are built once and never mutated.
type ActionSpace struct {
	notes    []Note
	byString map[string]int
}

func NewActionSpace(pitches []Pitch, durations []Duration) (*ActionSpace, error) {
	if len(pitches) == 0 || len(durations) == 0 {
		return nil, fmt.Errorf("action space requires pitches and durations")
	}
	space := &ActionSpace{
		notes:    make([]Note, 0, len(pitches)*len(durations)),
		byString: make(map[string]int, len(pitches)*len(durations)),
	}
	for _, p := range pitches {
		if !p.Valid() {
			return nil, fmt.Errorf("invalid pitch in action space: %s", p)
		}
		for _, d := range durations {
			if !d.Valid() {
				return nil, fmt.Errorf("invalid duration in action space: %d", int(d))
			}
			note := Note{Pitch: p, Duration: d}
			key := note.String()
			if _, exists := space.byString[key]; exists {
				return nil, fmt.Errorf("duplicate note in action space: %s", key)
			}
			space.byString[key] = len(space.notes)
			space.notes = append(space.notes, note)
		}
	}
	return space, nil
}

// DefaultActionSpace is the full 8 pitch × 5 duration space (40 actions).
func DefaultActionSpace() *ActionSpace {
	space, err := NewActionSpace(Pitches, Durations)
	if err != nil {
		panic(err)
	}
	return space
}

func (s *ActionSpace) Size() int {
	return len(s.notes)
}

func (s *ActionSpace) Note(action int) (Note, bool) {
	if action < 0 || action >= len(s.notes) {
		return Note{}, false
	}
	return s.notes[action], true
}

// MustNote decodes an action and panics when it is outside the space. An
// out-of-range action can only come from a broken caller.
func (s *ActionSpace) MustNote(action int) Note {
	note, ok := s.Note(action)
	if !ok {
		panic(fmt.Sprintf("action %d outside action space of size %d", action, len(s.notes)))
	}
	return note
}

func (s *ActionSpace) Action(n Note) (int, bool) {
	action, ok := s.byString[n.String()]
	return action, ok
}

func (s *ActionSpace) Notes() []Note {
	return append([]Note(nil), s.notes...)
}
