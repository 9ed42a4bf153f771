package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"

	"github.com/book-expert/vibe-creator/internal/config"
	"github.com/book-expert/vibe-creator/internal/core"
	"github.com/book-expert/vibe-creator/internal/exec"
	"github.com/book-expert/vibe-creator/internal/fsutil"
)

// DefaultBinary is the speech synthesis CLI used when none is configured.
const DefaultBinary = "tts"

const (
	errFmtNoOutput    = "%w: %s produced no audio at %s"
	logFmtRunningCLI  = "Running %s for %d characters (model: %s, language: %s)"
	logFmtCLIFinished = "%s finished in %s"
	logFmtCLIFailed   = "%s exited with code %d: %s"
)

// CLIEngine synthesizes speech by running a local synthesis binary once per request.
type CLIEngine struct {
	runner *exec.Runner
	config config.TTSConfig
	logger *logger.Logger
}

// NewCLIEngine creates an engine that runs cfg.BinaryPath.
func NewCLIEngine(runner *exec.Runner, cfg config.TTSConfig, log *logger.Logger) *CLIEngine {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = DefaultBinary
	}

	return &CLIEngine{runner: runner, config: cfg, logger: log}
}

// Synthesize writes speech for req to outputPath.
func (e *CLIEngine) Synthesize(ctx context.Context, req core.SpeechRequest, outputPath string) error {
	inputErr := validateSpeechInputs(req, outputPath)
	if inputErr != nil {
		return inputErr
	}

	prepErr := fsutil.EnsureDir(filepath.Dir(outputPath))
	if prepErr != nil {
		return fmt.Errorf(errFmtPrepareOutput, prepErr)
	}

	language := resolveLanguage(req.Language, e.config.Language)
	binary := filepath.Base(e.config.BinaryPath)
	e.logger.Info(logFmtRunningCLI, binary, len(req.Text), e.config.ModelName, language)

	result, err := e.runner.Run(ctx, e.config.BinaryPath, e.args(req, language, outputPath)...)
	if err != nil {
		processErr := &core.ProcessError{
			Tool: binary,
			Err:  fmt.Errorf("%w: %w", core.ErrSynthesis, err),
		}

		if result != nil {
			processErr.ExitCode = result.ExitCode
			processErr.Stderr = result.Stderr
		}

		e.logger.Error(logFmtCLIFailed, binary, processErr.ExitCode, processErr.Stderr)

		return processErr
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil || info.Size() == 0 {
		return fmt.Errorf(errFmtNoOutput, core.ErrSynthesis, binary, outputPath)
	}

	e.logger.Info(logFmtCLIFinished, binary, result.Duration)

	return nil
}

func (e *CLIEngine) args(req core.SpeechRequest, language, outputPath string) []string {
	args := []string{"--text", req.Text}

	if e.config.ModelName != "" {
		args = append(args, "--model_name", e.config.ModelName)
	}

	return append(args,
		"--speaker_wav", req.VoiceSample,
		"--language_idx", language,
		"--out_path", outputPath,
	)
}
