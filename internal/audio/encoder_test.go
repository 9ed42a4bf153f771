package audio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/vibe-creator/internal/audio"
	"github.com/book-expert/vibe-creator/internal/core"
)

func TestToPCM16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sample float64
		want   int
	}{
		{name: "silence", sample: 0, want: 0},
		{name: "full scale positive", sample: 1.0, want: 32767},
		{name: "full scale negative", sample: -1.0, want: -32767},
		{name: "half scale rounds", sample: 0.5, want: 16384},
		{name: "over range saturates high", sample: 1.5, want: 32767},
		{name: "under range saturates low", sample: -1.5, want: -32768},
		{name: "far over range", sample: 1000, want: 32767},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, audio.ToPCM16(testCase.sample))
		})
	}
}

func TestEncode_WritesMono16BitAtNativeRate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stereo.wav")
	buf := &core.AudioBuffer{
		Samples:     []float64{0.5, -0.9, 1.5, -0.9, -1.5, -0.9, 0, -0.9},
		NumChannels: 2,
		SampleRate:  32000,
	}

	require.NoError(t, audio.Encode(buf, path))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	decoder := wav.NewDecoder(file)
	require.True(t, decoder.IsValidFile())

	pcm, err := decoder.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, 1, pcm.Format.NumChannels)
	assert.Equal(t, 32000, pcm.Format.SampleRate)
	assert.Equal(t, uint16(16), decoder.BitDepth)
	assert.Equal(t, []int{16384, 32767, -32768, 0}, pcm.Data)
}

func TestEncode_RoundTripsThroughDecode(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mono.wav")
	buf := &core.AudioBuffer{
		Samples:     []float64{0.25, -0.25, 0.75, -0.75},
		NumChannels: 1,
		SampleRate:  22050,
	}

	require.NoError(t, audio.Encode(buf, path))

	decoded, err := audio.Decode(path)
	require.NoError(t, err)

	assert.Equal(t, 22050, decoded.SampleRate)
	assert.Equal(t, 1, decoded.NumChannels)
	require.Len(t, decoded.Samples, 4)

	for i, sample := range buf.Samples {
		assert.InDelta(t, sample, decoded.Samples[i], 1e-3)
	}
}

func TestEncode_RejectsInvalidBuffers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	err := audio.Encode(&core.AudioBuffer{NumChannels: 1, SampleRate: 8000}, filepath.Join(dir, "empty.wav"))
	require.ErrorIs(t, err, core.ErrValidation)

	err = audio.Encode(&core.AudioBuffer{Samples: []float64{0.1}, NumChannels: 1}, filepath.Join(dir, "norate.wav"))
	require.ErrorIs(t, err, core.ErrValidation)

	assert.NoFileExists(t, filepath.Join(dir, "empty.wav"))
}

func TestEncode_UnwritableDestination(t *testing.T) {
	t.Parallel()

	buf := &core.AudioBuffer{Samples: []float64{0.1}, NumChannels: 1, SampleRate: 8000}

	err := audio.Encode(buf, filepath.Join(t.TempDir(), "missing", "dir", "out.wav"))
	require.ErrorIs(t, err, core.ErrEncode)
}

func TestDecode_RejectsNonWAV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o600))

	_, err := audio.Decode(path)
	require.ErrorIs(t, err, audio.ErrNotWAV)
}
