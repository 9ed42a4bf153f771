package core_test

import (
	"errors"
	"testing"

	"github.com/book-expert/vibe-creator/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioBuffer_FirstChannel(t *testing.T) {
	t.Parallel()

	stereo := &core.AudioBuffer{
		Samples:     []float64{0.1, -0.1, 0.2, -0.2, 0.3, -0.3},
		NumChannels: 2,
		SampleRate:  8000,
	}

	assert.Equal(t, 3, stereo.Frames())
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, stereo.FirstChannel())
	assert.InDelta(t, 3.0/8000.0, stereo.DurationSeconds(), 1e-9)
}

func TestAudioBuffer_NilIsEmpty(t *testing.T) {
	t.Parallel()

	var buf *core.AudioBuffer

	assert.Equal(t, 0, buf.Frames())
	assert.Nil(t, buf.FirstChannel())
	assert.Zero(t, buf.DurationSeconds())
}

func TestStageError_Unwraps(t *testing.T) {
	t.Parallel()

	err := error(&core.StageError{Workflow: "song", Stage: "speech", Err: core.ErrSynthesis})

	require.ErrorIs(t, err, core.ErrSynthesis)
	assert.Contains(t, err.Error(), `"speech"`)

	var stageErr *core.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "song", stageErr.Workflow)
}

func TestProcessError_CarriesStderr(t *testing.T) {
	t.Parallel()

	err := error(&core.ProcessError{Tool: "ffmpeg", ExitCode: 1, Stderr: "bad filter", Err: core.ErrEncode})

	require.ErrorIs(t, err, core.ErrEncode)
	assert.Equal(t, "ffmpeg failed (exit 1): bad filter", err.Error())
}

func TestValidationf(t *testing.T) {
	t.Parallel()

	err := core.Validationf("voice sample %q not found", "a.wav")

	require.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, `validation failed: voice sample "a.wav" not found`, err.Error())
}
