// Package ffmpeg wraps the ffprobe and ffmpeg command line tools.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/book-expert/vibe-creator/internal/core"
	"github.com/book-expert/vibe-creator/internal/exec"
)

// DefaultProbeBinary is used when no ffprobe path is configured.
const DefaultProbeBinary = "ffprobe"

// probeFieldCount is the number of plain-text lines ffprobe prints for the
// requested entries: codec_name, sample_rate, channels, bit_rate, duration, size.
const probeFieldCount = 6

const (
	errFmtFileMissing   = "%w: %s does not exist"
	errFmtProbeFailed   = "%w: %v"
	errFmtShortOutput   = "%w: expected %d fields, got %d"
	errFmtBadField      = "%w: field %s=%q: %v"
	fieldSampleRate     = "sample_rate"
	fieldChannels       = "channels"
	fieldDuration       = "duration"
	fieldSize           = "size"
	selectFirstAudio    = "a:0"
	streamEntries       = "stream=sample_rate,channels,bit_rate,codec_name"
	formatEntries       = "format=duration,size"
	plainValueFormatter = "default=noprint_wrappers=1:nokey=1"
)

// Prober reads stream metadata through ffprobe.
type Prober struct {
	runner *exec.Runner
	binary string
}

// NewProber creates a prober. An empty binary selects DefaultProbeBinary.
func NewProber(runner *exec.Runner, binary string) *Prober {
	if binary == "" {
		binary = DefaultProbeBinary
	}

	return &Prober{runner: runner, binary: binary}
}

// Probe returns the properties of the first audio stream of path.
// Duration and size come from the container, not the stream.
// Every failure wraps core.ErrProbe; callers treat it as "no info available".
func (p *Prober) Probe(ctx context.Context, path string) (*core.StreamInfo, error) {
	_, statErr := os.Stat(path)
	if statErr != nil {
		return nil, fmt.Errorf(errFmtFileMissing, core.ErrProbe, path)
	}

	result, err := p.runner.Run(ctx, p.binary,
		"-v", "error",
		"-select_streams", selectFirstAudio,
		"-show_entries", streamEntries,
		"-show_entries", formatEntries,
		"-of", plainValueFormatter,
		path,
	)
	if err != nil {
		return nil, fmt.Errorf(errFmtProbeFailed, core.ErrProbe, err)
	}

	return parseProbeOutput(path, result.Stdout)
}

func parseProbeOutput(path, stdout string) (*core.StreamInfo, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) < probeFieldCount {
		return nil, fmt.Errorf(errFmtShortOutput, core.ErrProbe, probeFieldCount, len(lines))
	}

	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	sampleRate, err := strconv.Atoi(lines[1])
	if err != nil {
		return nil, fmt.Errorf(errFmtBadField, core.ErrProbe, fieldSampleRate, lines[1], err)
	}

	channels, err := strconv.Atoi(lines[2])
	if err != nil {
		return nil, fmt.Errorf(errFmtBadField, core.ErrProbe, fieldChannels, lines[2], err)
	}

	duration, err := strconv.ParseFloat(lines[4], 64)
	if err != nil {
		return nil, fmt.Errorf(errFmtBadField, core.ErrProbe, fieldDuration, lines[4], err)
	}

	size, err := strconv.ParseInt(lines[5], 10, 64)
	if err != nil {
		return nil, fmt.Errorf(errFmtBadField, core.ErrProbe, fieldSize, lines[5], err)
	}

	return &core.StreamInfo{
		Path:            path,
		Codec:           lines[0],
		SampleRate:      sampleRate,
		Channels:        channels,
		BitRate:         parseBitRate(lines[3]),
		DurationSeconds: duration,
		SizeBytes:       size,
	}, nil
}

// parseBitRate maps anything that is not a non-negative integer (ffprobe prints
// "N/A" for PCM in some containers) to 0, meaning unknown.
func parseBitRate(field string) int64 {
	bitRate, err := strconv.ParseInt(field, 10, 64)
	if err != nil || bitRate < 0 {
		return 0
	}

	return bitRate
}
