package audio

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/book-expert/vibe-creator/internal/core"
)

// ErrSampleRateMismatch is returned when two buffers cannot be overlaid without resampling.
var ErrSampleRateMismatch = errors.New("sample rates differ")

// Mix overlays b onto a sample by sample. Both inputs are truncated to the
// shorter one's frame count; nothing is padded. The sum is not clamped here,
// it saturates when the result is encoded.
//
// Buffers with equal channel counts are summed channel for channel. Otherwise
// both are reduced to their first channel and the result is mono.
func Mix(a, b *core.AudioBuffer) (*core.AudioBuffer, error) {
	if a == nil || b == nil {
		return nil, core.Validationf("mix needs two buffers")
	}

	if a.SampleRate != b.SampleRate {
		return nil, fmt.Errorf("%w: %d Hz vs %d Hz", ErrSampleRateMismatch, a.SampleRate, b.SampleRate)
	}

	frames := min(a.Frames(), b.Frames())

	left, right, channels := a.Samples, b.Samples, a.NumChannels
	if a.NumChannels != b.NumChannels {
		left, right, channels = a.FirstChannel(), b.FirstChannel(), 1
	}

	length := frames * channels
	mixed := make([]float64, length)
	copy(mixed, left[:length])
	floats.Add(mixed, right[:length])

	return &core.AudioBuffer{
		Samples:     mixed,
		NumChannels: channels,
		SampleRate:  a.SampleRate,
	}, nil
}
