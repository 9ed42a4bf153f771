// Package core defines the shared types and capability interfaces for the vibe creator.
package core

import (
	"context"
	"io"
)

// AudioBuffer holds decoded samples in memory.
// Samples are interleaved by channel and nominally lie in [-1.0, 1.0].
type AudioBuffer struct {
	Samples     []float64
	NumChannels int
	SampleRate  int
}

// Frames returns the number of sample frames (samples per channel).
func (b *AudioBuffer) Frames() int {
	if b == nil || b.NumChannels <= 0 {
		return 0
	}

	return len(b.Samples) / b.NumChannels
}

// FirstChannel returns the samples of channel 0 only.
// Mono buffers are returned without copying.
func (b *AudioBuffer) FirstChannel() []float64 {
	if b == nil {
		return nil
	}

	if b.NumChannels <= 1 {
		return b.Samples
	}

	frames := b.Frames()
	mono := make([]float64, frames)

	for frame := range frames {
		mono[frame] = b.Samples[frame*b.NumChannels]
	}

	return mono
}

// DurationSeconds returns the playback length of the buffer.
func (b *AudioBuffer) DurationSeconds() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}

	return float64(b.Frames()) / float64(b.SampleRate)
}

// StreamInfo is a snapshot of the technical properties of an audio file.
// BitRate is 0 when the probing tool did not report a numeric value;
// callers must read 0 as "unknown".
type StreamInfo struct {
	Path            string
	Codec           string
	SampleRate      int
	Channels        int
	BitRate         int64
	DurationSeconds float64
	SizeBytes       int64
}

// SpeechRequest describes one text-to-speech call.
type SpeechRequest struct {
	Text        string
	VoiceSample string
	Language    string
}

// MusicRequest describes one music synthesis call.
type MusicRequest struct {
	Prompt          string
	DurationSeconds int
}

// SpeechSynthesizer turns text into speech conditioned on a reference voice sample.
// The synthesized audio is written to outputPath.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest, outputPath string) error
}

// MusicSynthesizer turns a prompt into one or more raw sample buffers.
type MusicSynthesizer interface {
	Compose(ctx context.Context, req MusicRequest) ([]*AudioBuffer, error)
}

// Engines bundles the synthesis engines constructed once at process start.
// The handle is read-only and shared by every request.
type Engines struct {
	Speech SpeechSynthesizer
	Music  MusicSynthesizer
}

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data io.Reader) error
}
