package task

import (
	"time"
	"unicode/utf8"
)

// Default estimator rates.
const (
	DefaultBase           = 2 * time.Second
	DefaultMusicPerSecond = 500 * time.Millisecond
	DefaultSpeechPerChar  = 60 * time.Millisecond
)

// Estimator guesses how long a synthesis call will take from the size of its input.
// The guess is never exact; the runner clamps around it.
type Estimator struct {
	Base           time.Duration
	MusicPerSecond time.Duration
	SpeechPerChar  time.Duration
}

// DefaultEstimator returns the stock rates.
func DefaultEstimator() Estimator {
	return Estimator{
		Base:           DefaultBase,
		MusicPerSecond: DefaultMusicPerSecond,
		SpeechPerChar:  DefaultSpeechPerChar,
	}
}

// Music estimates a music call proportional to the requested duration.
func (e Estimator) Music(durationSeconds int) time.Duration {
	return e.Base + time.Duration(max(durationSeconds, 0))*e.MusicPerSecond
}

// Speech estimates a speech call proportional to the text length in characters.
func (e Estimator) Speech(text string) time.Duration {
	return e.Base + time.Duration(utf8.RuneCountInString(text))*e.SpeechPerChar
}
