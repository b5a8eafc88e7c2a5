// Package midiout writes generated melodies as Standard MIDI Files: a
// melody track with velocity shaped by note length and an optional drum
// track keeping time underneath.
package midiout

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"melodyrl/internal/music"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	DefaultTempo           = 120
	DefaultBeatsPerMeasure = 4
	TicksPerBeat           = 480

	melodyChannel = 0
	drumChannel   = 9

	shortVelocity = 50
	longVelocity  = 100
	drumVelocity  = 25

	swellSteps       = 8
	crescendoChance  = 0.3
	crescendoFrom    = 60
	crescendoTo      = 90
	decrescendoFrom  = 90
	decrescendoTo    = 30
	drumHitBeats     = 0.25
	swellMinDuration = music.Whole
)

// Drum keys on the General MIDI percussion map.
const (
	Kick        uint8 = 36
	Snare       uint8 = 38
	HiHatClosed uint8 = 42
	HiHatOpen   uint8 = 46
)

// DrumHit is one percussion stroke at a beat offset inside a measure.
type DrumHit struct {
	Key    uint8
	Offset float64
}

// SyncPattern is the default one-measure groove.
var SyncPattern = []DrumHit{
	{Key: Kick, Offset: 0}, {Key: HiHatClosed, Offset: 0.5},
	{Key: Kick, Offset: 1}, {Key: HiHatOpen, Offset: 1.25}, {Key: Snare, Offset: 1.75},
	{Key: Kick, Offset: 2}, {Key: HiHatClosed, Offset: 2.5}, {Key: Snare, Offset: 3.25},
}

var ErrEmptyMelody = errors.New("melody has no playable notes")

type Options struct {
	Tempo           int
	BeatsPerMeasure int
	// Rand picks crescendo or decrescendo for sustained chords. Nil always
	// decrescendos.
	Rand *rand.Rand
	// Chords renders whole notes as a swelling major triad.
	Chords bool
	// Drums adds a percussion track repeating Pattern every measure.
	Drums   bool
	Pattern []DrumHit
}

func DefaultOptions(rng *rand.Rand) Options {
	return Options{
		Tempo:           DefaultTempo,
		BeatsPerMeasure: DefaultBeatsPerMeasure,
		Rand:            rng,
		Chords:          true,
		Drums:           true,
		Pattern:         SyncPattern,
	}
}

type event struct {
	tick uint32
	off  bool
	msg  midi.Message
}

// Encode builds the SMF for notes. Start sentinels are skipped.
func Encode(notes []music.Note, opts Options) (*smf.SMF, error) {
	opts = normalize(opts)

	melody, endBeat := melodyEvents(notes, opts)
	if len(melody) == 0 {
		return nil, ErrEmptyMelody
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerBeat)

	var lead smf.Track
	lead.Add(0, smf.MetaTrackSequenceName("melody"))
	lead.Add(0, smf.MetaMeter(uint8(opts.BeatsPerMeasure), 4))
	lead.Add(0, smf.MetaTempo(float64(opts.Tempo)))
	appendEvents(&lead, melody)
	if err := s.Add(lead); err != nil {
		return nil, fmt.Errorf("add melody track: %w", err)
	}

	if opts.Drums && len(opts.Pattern) > 0 {
		var drums smf.Track
		drums.Add(0, smf.MetaTrackSequenceName("drums"))
		appendEvents(&drums, drumEvents(endBeat, opts))
		if err := s.Add(drums); err != nil {
			return nil, fmt.Errorf("add drum track: %w", err)
		}
	}
	return s, nil
}

func Write(w io.Writer, notes []music.Note, opts Options) error {
	s, err := Encode(notes, opts)
	if err != nil {
		return err
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("write midi: %w", err)
	}
	return nil
}

// WriteFile writes the melody to path, creating parent directories.
func WriteFile(path string, notes []music.Note, opts Options) error {
	var buf bytes.Buffer
	if err := Write(&buf, notes, opts); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func normalize(opts Options) Options {
	if opts.Tempo <= 0 {
		opts.Tempo = DefaultTempo
	}
	if opts.BeatsPerMeasure <= 0 {
		opts.BeatsPerMeasure = DefaultBeatsPerMeasure
	}
	if opts.Drums && len(opts.Pattern) == 0 {
		opts.Pattern = SyncPattern
	}
	return opts
}

// Velocity is the attack for a single melody note of length d.
func Velocity(d music.Duration) uint8 {
	if d.Beats() <= 1 {
		return shortVelocity
	}
	return longVelocity
}

func melodyEvents(notes []music.Note, opts Options) ([]event, float64) {
	var (
		events []event
		beat   float64
	)
	for _, note := range notes {
		if note.IsStart() || !note.Pitch.Valid() {
			continue
		}
		key := uint8(note.Pitch.MIDI())
		length := note.Duration.Beats()

		if opts.Chords && note.Duration >= swellMinDuration {
			from, to := decrescendoFrom, decrescendoTo
			if opts.Rand != nil && opts.Rand.Float64() < crescendoChance {
				from, to = crescendoFrom, crescendoTo
			}
			for _, interval := range []uint8{0, 4, 7} {
				events = append(events, swell(key+interval, beat, length, from, to)...)
			}
		} else {
			events = append(events, noteEvents(melodyChannel, key, Velocity(note.Duration), beat, length)...)
		}
		beat += length
	}
	return events, beat
}

// swell splits one sustained key into equal slices ramping linearly from
// one velocity towards another.
func swell(key uint8, start, length float64, from, to int) []event {
	step := length / swellSteps
	delta := float64(to-from) / swellSteps
	velocity := float64(from)
	events := make([]event, 0, swellSteps*2)
	for i := 0; i < swellSteps; i++ {
		at := start + float64(i)*step
		events = append(events, noteEvents(melodyChannel, key, uint8(velocity), at, step)...)
		velocity += delta
	}
	return events
}

func drumEvents(endBeat float64, opts Options) []event {
	measures := int(math.Ceil(endBeat / float64(opts.BeatsPerMeasure)))
	events := make([]event, 0, measures*len(opts.Pattern)*2)
	for m := 0; m < measures; m++ {
		base := float64(m * opts.BeatsPerMeasure)
		for _, hit := range opts.Pattern {
			at := base + hit.Offset
			if at >= endBeat {
				continue
			}
			events = append(events, noteEvents(drumChannel, hit.Key, drumVelocity, at, drumHitBeats)...)
		}
	}
	return events
}

func noteEvents(channel, key, velocity uint8, start, length float64) []event {
	on := beatsToTicks(start)
	off := beatsToTicks(start + length)
	return []event{
		{tick: on, msg: midi.NoteOn(channel, key, velocity)},
		{tick: off, off: true, msg: midi.NoteOff(channel, key)},
	}
}

// appendEvents sorts absolute-time events, releasing keys before new
// attacks on the same tick, and adds them as delta-timed messages.
func appendEvents(track *smf.Track, events []event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return events[i].off && !events[j].off
	})
	var last uint32
	for _, ev := range events {
		track.Add(ev.tick-last, ev.msg)
		last = ev.tick
	}
	track.Close(0)
}

func beatsToTicks(beats float64) uint32 {
	return uint32(math.Round(beats * TicksPerBeat))
}
