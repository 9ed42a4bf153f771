package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"

	"github.com/book-expert/vibe-creator/internal/core"
)

// ErrNotWAV is returned when a file is not a readable PCM WAV container.
var ErrNotWAV = errors.New("not a valid wav file")

// Decode reads a PCM WAV file into a normalized float buffer.
// All channels are kept, interleaved as stored in the file.
func Decode(path string) (*core.AudioBuffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	buf, err := DecodeReader(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return buf, nil
}

// DecodeReader reads a PCM WAV stream into a normalized float buffer.
func DecodeReader(r io.ReadSeeker) (*core.AudioBuffer, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrNotWAV
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}

	bitDepth := pcm.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(decoder.BitDepth)
	}

	if bitDepth <= 0 {
		return nil, fmt.Errorf("%w: no bit depth", ErrNotWAV)
	}

	scale := float64(int64(1) << (bitDepth - 1))
	samples := make([]float64, len(pcm.Data))

	for i, value := range pcm.Data {
		samples[i] = float64(value) / scale
	}

	return &core.AudioBuffer{
		Samples:     samples,
		NumChannels: pcm.Format.NumChannels,
		SampleRate:  pcm.Format.SampleRate,
	}, nil
}
