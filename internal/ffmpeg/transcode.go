package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/book-expert/vibe-creator/internal/core"
	"github.com/book-expert/vibe-creator/internal/exec"
)

// DefaultTranscodeBinary is used when no ffmpeg path is configured.
const DefaultTranscodeBinary = "ffmpeg"

const (
	toolFFmpeg          = "ffmpeg"
	resampleCodec       = "pcm_s16le"
	monoChannels        = "1"
	errFmtRemovePartial = "failed to remove partial output %s: %w"
	errFmtBadRate       = "sample rate must be positive, got %d"
)

// Transcoder applies a filter chain to a file through ffmpeg in a single pass.
type Transcoder struct {
	runner *exec.Runner
	binary string
}

// NewTranscoder creates a transcoder. An empty binary selects DefaultTranscodeBinary.
func NewTranscoder(runner *exec.Runner, binary string) *Transcoder {
	if binary == "" {
		binary = DefaultTranscodeBinary
	}

	return &Transcoder{runner: runner, binary: binary}
}

// Transcode filters input into output, overwriting output if it exists.
// On a non-zero exit the returned *core.ProcessError carries ffmpeg's stderr
// verbatim and wraps core.ErrEncode; any partial output is removed.
func (t *Transcoder) Transcode(ctx context.Context, input, filterChain, codec, output string) error {
	return t.run(ctx, output,
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", input,
		"-af", filterChain,
		"-c:a", codec,
		output,
	)
}

// Resample converts input to a mono 16-bit WAV at sampleRate.
func (t *Transcoder) Resample(ctx context.Context, input string, sampleRate int, output string) error {
	if sampleRate <= 0 {
		return core.Validationf(errFmtBadRate, sampleRate)
	}

	return t.run(ctx, output,
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", input,
		"-ar", strconv.Itoa(sampleRate),
		"-ac", monoChannels,
		"-c:a", resampleCodec,
		output,
	)
}

func (t *Transcoder) run(ctx context.Context, output string, args ...string) error {
	result, err := t.runner.Run(ctx, t.binary, args...)
	if err == nil {
		return nil
	}

	removeErr := os.Remove(output)
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		err = errors.Join(err, fmt.Errorf(errFmtRemovePartial, output, removeErr))
	}

	processErr := &core.ProcessError{
		Tool: toolFFmpeg,
		Err:  fmt.Errorf("%w: %w", core.ErrEncode, err),
	}

	if result != nil {
		processErr.ExitCode = result.ExitCode
		processErr.Stderr = result.Stderr

		if processErr.Stderr == "" {
			processErr.Stderr = result.Stdout
		}
	}

	return processErr
}
