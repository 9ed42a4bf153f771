package tts_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/vibe-creator/internal/config"
	"github.com/book-expert/vibe-creator/internal/core"
	"github.com/book-expert/vibe-creator/internal/exec"
	"github.com/book-expert/vibe-creator/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTTSScript records its arguments and writes audio to the path after --out_path.
// Tests that exec freshly written scripts do not run in parallel.
const fakeTTSScript = `#!/bin/sh
printf '%s\n' "$@" > "$(dirname "$0")/args.txt"
while [ $# -gt 0 ]; do
  if [ "$1" = "--out_path" ]; then printf 'RIFF' > "$2"; fi
  shift
done
`

func writeFakeBinary(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tts")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o700))

	return path
}

func cliConfig(binary string) config.TTSConfig {
	cfg := config.Default().TTS
	cfg.Engine = config.EngineCLI
	cfg.BinaryPath = binary
	cfg.ModelName = "tts_models/multilingual/multi-dataset/xtts_v2"

	return cfg
}

func TestCLIEngine_Synthesize(t *testing.T) {
	binary := writeFakeBinary(t, fakeTTSScript)
	engine := tts.NewCLIEngine(exec.NewRunner(), cliConfig(binary), createTestLogger(t))
	output := filepath.Join(t.TempDir(), "vocal.wav")

	err := engine.Synthesize(context.Background(), core.SpeechRequest{
		Text:        "sing me a song",
		VoiceSample: "/voices/me.wav",
	}, output)
	require.NoError(t, err)

	assert.FileExists(t, output)

	args, err := os.ReadFile(filepath.Join(filepath.Dir(binary), "args.txt"))
	require.NoError(t, err)
	assert.Equal(t,
		"--text\nsing me a song\n--model_name\ntts_models/multilingual/multi-dataset/xtts_v2\n"+
			"--speaker_wav\n/voices/me.wav\n--language_idx\nen\n--out_path\n"+output+"\n",
		string(args))
}

func TestCLIEngine_NonZeroExit(t *testing.T) {
	binary := writeFakeBinary(t, "#!/bin/sh\necho 'CUDA out of memory' >&2\nexit 2\n")
	engine := tts.NewCLIEngine(exec.NewRunner(), cliConfig(binary), createTestLogger(t))

	err := engine.Synthesize(context.Background(), core.SpeechRequest{
		Text:        "hi",
		VoiceSample: "/voices/me.wav",
	}, filepath.Join(t.TempDir(), "vocal.wav"))

	require.ErrorIs(t, err, core.ErrSynthesis)

	var processErr *core.ProcessError
	require.ErrorAs(t, err, &processErr)
	assert.Equal(t, 2, processErr.ExitCode)
	assert.Contains(t, processErr.Stderr, "CUDA out of memory")
}

func TestCLIEngine_MissingOutput(t *testing.T) {
	binary := writeFakeBinary(t, "#!/bin/sh\nexit 0\n")
	engine := tts.NewCLIEngine(exec.NewRunner(), cliConfig(binary), createTestLogger(t))

	err := engine.Synthesize(context.Background(), core.SpeechRequest{
		Text:        "hi",
		VoiceSample: "/voices/me.wav",
	}, filepath.Join(t.TempDir(), "vocal.wav"))

	require.ErrorIs(t, err, core.ErrSynthesis)
	assert.Contains(t, err.Error(), "produced no audio")
}

func TestCLIEngine_ValidatesBeforeRunning(t *testing.T) {
	binary := writeFakeBinary(t, fakeTTSScript)
	engine := tts.NewCLIEngine(exec.NewRunner(), cliConfig(binary), createTestLogger(t))

	err := engine.Synthesize(context.Background(), core.SpeechRequest{Text: "hi"}, filepath.Join(t.TempDir(), "v.wav"))

	require.ErrorIs(t, err, tts.ErrVoiceSampleEmpty)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(binary), "args.txt"))
}
