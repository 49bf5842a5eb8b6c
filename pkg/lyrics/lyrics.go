package lyrics

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidInput is returned when lyrics, timing data or durations can't be
// processed.
var ErrInvalidInput = errors.New("lyrics: invalid input")

// TimedWord is a single token with its position in the audio, in seconds.
type TimedWord struct {
	Word  string  `json:"word" yaml:"word" csv:"word"`
	Start float64 `json:"start" yaml:"start" csv:"start"`
	End   float64 `json:"end" yaml:"end" csv:"end"`
}

// Line is a display unit of lyrics. Marker lines are section labels that are
// kept for bookkeeping but never displayed.
type Line struct {
	Words  []string `json:"words"`
	Marker bool     `json:"marker"`
}

func (l Line) Text() string {
	return strings.Join(l.Words, " ")
}

// AlignedLine is a displayable line with the interval where it must be shown.
type AlignedLine struct {
	Text    string  `json:"text" yaml:"text" csv:"text"`
	Start   float64 `json:"start" yaml:"start" csv:"start"`
	End     float64 `json:"end" yaml:"end" csv:"end"`
	Matched int     `json:"matched" yaml:"matched" csv:"matched"`
}

func (l AlignedLine) Duration() float64 {
	return l.End - l.Start
}

// Validate checks that words are ordered by start time and that no word ends
// before it starts.
func Validate(words []TimedWord) error {
	for i, w := range words {
		if math.IsNaN(w.Start) || math.IsNaN(w.End) || math.IsInf(w.Start, 0) || math.IsInf(w.End, 0) {
			return fmt.Errorf("%w: word %d (%q) has invalid times", ErrInvalidInput, i, w.Word)
		}
		if w.End < w.Start {
			return fmt.Errorf("%w: word %d (%q) ends before it starts (%.3f < %.3f)", ErrInvalidInput, i, w.Word, w.End, w.Start)
		}
		if i > 0 && w.Start < words[i-1].Start {
			return fmt.Errorf("%w: word %d (%q) starts before the previous one", ErrInvalidInput, i, w.Word)
		}
	}
	return nil
}
