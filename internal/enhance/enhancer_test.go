package enhance_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/vibe-creator/internal/core"
	"github.com/book-expert/vibe-creator/internal/enhance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errToolCrashed = errors.New("tool crashed")

type fakeProber struct {
	mu    sync.Mutex
	infos map[string]*core.StreamInfo
	calls []string
}

func (f *fakeProber) Probe(_ context.Context, path string) (*core.StreamInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, path)

	info, ok := f.infos[filepath.Base(path)]
	if !ok {
		return nil, core.ErrProbe
	}

	copied := *info
	copied.Path = path

	return &copied, nil
}

type fakeTranscoder struct {
	err    error
	calls  int
	chain  string
	codec  string
	output string
}

func (f *fakeTranscoder) Transcode(_ context.Context, _, filterChain, codec, output string) error {
	f.calls++
	f.chain = filterChain
	f.codec = codec
	f.output = output

	if f.err != nil {
		return f.err
	}

	return os.WriteFile(output, []byte("RIFF"), 0o600)
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "enhance-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func writeSource(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("source"), 0o600))

	return path
}

func TestEnhance_LowBitRateSource(t *testing.T) {
	t.Parallel()

	source := writeSource(t, "demo.mp3")
	prober := &fakeProber{infos: map[string]*core.StreamInfo{
		"demo.mp3":          {Codec: "mp3", BitRate: 128000, DurationSeconds: 3.5, SizeBytes: 56000},
		"demo_ENHANCED.wav": {Codec: "pcm_s16le", BitRate: 705600, DurationSeconds: 3.5, SizeBytes: 308700},
	}}
	transcoder := &fakeTranscoder{}

	result, err := enhance.NewEnhancer(prober, transcoder, newTestLogger(t)).Enhance(context.Background(), source)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(source), "demo_ENHANCED.wav"), result.Path)
	assert.Equal(t, enhance.StatusEnhanced, result.Status)
	assert.Equal(t, "dynaudnorm=f=200:g=15,volume=6dB", transcoder.chain)
	assert.Equal(t, "pcm_s16le", transcoder.codec)
	assert.FileExists(t, source)

	rows := result.Report.Rows()
	require.Len(t, rows, 5)
	assert.Equal(t, enhance.Row{Label: "File", Original: "demo.mp3", Enhanced: "demo_ENHANCED.wav"}, rows[0])
	assert.Equal(t, enhance.Row{Label: "Format", Original: "MP3", Enhanced: "PCM_S16LE"}, rows[1])
	assert.Equal(t, enhance.Row{Label: "Bitrate", Original: "128 kbps", Enhanced: "705 kbps"}, rows[3])

	text := result.Report.String()
	assert.Contains(t, text, "STUDIO REPORT")
	assert.Contains(t, text, enhance.ActionGain)
	assert.Contains(t, text, "3.50 sec")
}

func TestEnhance_LoudSourceKeepsVolume(t *testing.T) {
	t.Parallel()

	source := writeSource(t, "master.wav")
	prober := &fakeProber{infos: map[string]*core.StreamInfo{
		"master.wav":          {Codec: "pcm_s16le", BitRate: 1411200},
		"master_ENHANCED.wav": {Codec: "pcm_s16le", BitRate: 1411200},
	}}
	transcoder := &fakeTranscoder{}

	result, err := enhance.NewEnhancer(prober, transcoder, newTestLogger(t)).Enhance(context.Background(), source)
	require.NoError(t, err)

	assert.Equal(t, "dynaudnorm=f=200:g=15", transcoder.chain)
	assert.Contains(t, result.Plan.Actions, enhance.ActionVolumeUnchanged)
}

func TestEnhance_MissingFileSkipsTranscode(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{}
	transcoder := &fakeTranscoder{}
	missing := filepath.Join(t.TempDir(), "nope.wav")

	_, err := enhance.NewEnhancer(prober, transcoder, newTestLogger(t)).Enhance(context.Background(), missing)

	require.ErrorIs(t, err, core.ErrProbe)
	assert.Contains(t, err.Error(), enhance.StatusFileNotFound+": nope.wav")
	assert.Zero(t, transcoder.calls)
}

func TestEnhance_UnprobeableSourceSkipsTranscode(t *testing.T) {
	t.Parallel()

	source := writeSource(t, "corrupt.wav")
	transcoder := &fakeTranscoder{}

	_, err := enhance.NewEnhancer(&fakeProber{}, transcoder, newTestLogger(t)).Enhance(context.Background(), source)

	require.ErrorIs(t, err, core.ErrProbe)
	assert.Zero(t, transcoder.calls)
}

func TestEnhance_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := enhance.NewEnhancer(&fakeProber{}, &fakeTranscoder{}, newTestLogger(t)).Enhance(context.Background(), "")

	require.ErrorIs(t, err, core.ErrValidation)
	assert.Contains(t, err.Error(), enhance.StatusNoFileSelected)
}

func TestEnhance_TranscodeFailure(t *testing.T) {
	t.Parallel()

	source := writeSource(t, "demo.wav")
	prober := &fakeProber{infos: map[string]*core.StreamInfo{"demo.wav": {Codec: "pcm_s16le"}}}
	transcoder := &fakeTranscoder{err: &core.ProcessError{Tool: "ffmpeg", ExitCode: 1, Stderr: "boom", Err: errToolCrashed}}

	_, err := enhance.NewEnhancer(prober, transcoder, newTestLogger(t)).Enhance(context.Background(), source)

	require.ErrorIs(t, err, errToolCrashed)

	var processErr *core.ProcessError
	require.ErrorAs(t, err, &processErr)
	assert.Equal(t, "boom", processErr.Stderr)
}

func TestEnhance_ReprobeFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	source := writeSource(t, "demo.wav")
	prober := &fakeProber{infos: map[string]*core.StreamInfo{"demo.wav": {Codec: "pcm_s16le"}}}

	result, err := enhance.NewEnhancer(prober, &fakeTranscoder{}, newTestLogger(t)).Enhance(context.Background(), source)
	require.NoError(t, err)

	assert.Nil(t, result.Report.Rows())
	assert.Contains(t, result.Report.String(), "Unable to get audio info for comparison.")
}

func TestEnhance_AlreadyEnhancedStacksSuffix(t *testing.T) {
	t.Parallel()

	source := writeSource(t, "demo_ENHANCED.wav")
	prober := &fakeProber{infos: map[string]*core.StreamInfo{
		"demo_ENHANCED.wav":          {Codec: "pcm_s16le", BitRate: 705600},
		"demo_ENHANCED_ENHANCED.wav": {Codec: "pcm_s16le", BitRate: 705600},
	}}
	transcoder := &fakeTranscoder{}

	result, err := enhance.NewEnhancer(prober, transcoder, newTestLogger(t)).Enhance(context.Background(), source)
	require.NoError(t, err)

	assert.Equal(t, "demo_ENHANCED_ENHANCED.wav", filepath.Base(result.Path))
	assert.Equal(t, "dynaudnorm=f=200:g=15", transcoder.chain)
}
