package score

import (
	"fmt"
	"sort"
	"strings"

	"melodyrl/internal/music"

	"gonum.org/v1/gonum/stat"
)

// Analysis summarises a melody's rhythm and pitch content.
type Analysis struct {
	TotalBeats      float64
	NoteCount       int
	Durations       map[music.Duration]int
	Pitches         map[music.Pitch]int
	Intervals       []float64
	AverageInterval float64
}

func Analyze(notes []music.Note) Analysis {
	a := Analysis{
		Durations: make(map[music.Duration]int, len(music.Durations)),
		Pitches:   make(map[music.Pitch]int, len(music.Pitches)),
	}
	var (
		prev    music.Pitch
		hasPrev bool
	)
	for _, note := range notes {
		if note.IsStart() {
			continue
		}
		a.NoteCount++
		a.TotalBeats += note.Duration.Beats()
		a.Durations[note.Duration]++
		a.Pitches[note.Pitch]++
		if hasPrev {
			a.Intervals = append(a.Intervals, float64(music.Interval(note.Pitch, prev)))
		}
		prev = note.Pitch
		hasPrev = true
	}
	if len(a.Intervals) > 0 {
		a.AverageInterval = stat.Mean(a.Intervals, nil)
	}
	return a
}

// FormatAnalysis renders an analysis as the multi-section report printed
// after generation.
func FormatAnalysis(a Analysis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "total_beats=%g\n", a.TotalBeats)
	fmt.Fprintf(&sb, "notes=%d\n", a.NoteCount)

	sb.WriteString("durations:\n")
	for _, d := range music.Durations {
		count := a.Durations[d]
		if count == 0 {
			continue
		}
		fmt.Fprintf(&sb, "  %s: %d (%.1f%%)\n", d, count, percent(count, a.NoteCount))
	}

	sb.WriteString("pitches:\n")
	pitches := make([]music.Pitch, 0, len(a.Pitches))
	for p := range a.Pitches {
		pitches = append(pitches, p)
	}
	sort.Slice(pitches, func(i, j int) bool { return pitches[i] < pitches[j] })
	for _, p := range pitches {
		count := a.Pitches[p]
		fmt.Fprintf(&sb, "  %s: %d (%.1f%%)\n", p, count, percent(count, a.NoteCount))
	}

	fmt.Fprintf(&sb, "average_interval=%.2f semitones\n", a.AverageInterval)
	return sb.String()
}

func percent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}
