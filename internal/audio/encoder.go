// Package audio converts sample buffers to and from 16-bit PCM WAV files and mixes them.
package audio

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/book-expert/vibe-creator/internal/core"
)

// Output container parameters. Encoded files are always mono 16-bit PCM.
const (
	pcmBitDepth    = 16
	pcmChannels    = 1
	wavFormatPCM   = 1
	pcm16MaxScale  = 32767
	pcm16MinSample = math.MinInt16
	pcm16MaxSample = math.MaxInt16
)

// Error messages.
const (
	errEmptyBuffer       = "buffer has no samples"
	errFmtSampleRate     = "sample rate must be positive, got %d"
	errFmtCreateFile     = "failed to create %s: %w"
	errFmtWriteSamples   = "failed to write samples to %s: %w"
	errFmtFinalizeHeader = "failed to finalize wav header of %s: %w"
	errFmtCloseFile      = "failed to close %s: %w"
)

// ToPCM16 converts a normalized float sample to a signed 16-bit value.
// Values outside [-1.0, 1.0] saturate at the int16 limits instead of wrapping.
// NaN encodes as silence.
func ToPCM16(sample float64) int {
	if math.IsNaN(sample) {
		return 0
	}

	scaled := math.Round(sample * pcm16MaxScale)

	switch {
	case scaled > pcm16MaxSample:
		return pcm16MaxSample
	case scaled < pcm16MinSample:
		return pcm16MinSample
	default:
		return int(scaled)
	}
}

// Encode writes buf to path as a mono 16-bit PCM WAV file at the buffer's own
// sample rate. Multi-channel buffers keep only their first channel; no mixdown
// and no resampling is performed. The destination is created or overwritten.
func Encode(buf *core.AudioBuffer, path string) error {
	if buf.Frames() == 0 {
		return core.Validationf(errEmptyBuffer)
	}

	if buf.SampleRate <= 0 {
		return core.Validationf(errFmtSampleRate, buf.SampleRate)
	}

	mono := buf.FirstChannel()
	data := make([]int, len(mono))

	for i, sample := range mono {
		data[i] = ToPCM16(sample)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: "+errFmtCreateFile, core.ErrEncode, path, err)
	}

	encoder := wav.NewEncoder(file, buf.SampleRate, pcmBitDepth, pcmChannels, wavFormatPCM)

	writeErr := encoder.Write(&goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: pcmChannels,
			SampleRate:  buf.SampleRate,
		},
		Data:           data,
		SourceBitDepth: pcmBitDepth,
	})
	if writeErr != nil {
		_ = file.Close()

		return fmt.Errorf("%w: "+errFmtWriteSamples, core.ErrEncode, path, writeErr)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		_ = file.Close()

		return fmt.Errorf("%w: "+errFmtFinalizeHeader, core.ErrEncode, path, closeErr)
	}

	fileErr := file.Close()
	if fileErr != nil {
		return fmt.Errorf("%w: "+errFmtCloseFile, core.ErrEncode, path, fileErr)
	}

	return nil
}
