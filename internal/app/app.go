// Package app wires the configured engines and tools into an orchestrator.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"

	"github.com/book-expert/vibe-creator/internal/config"
	"github.com/book-expert/vibe-creator/internal/core"
	"github.com/book-expert/vibe-creator/internal/enhance"
	"github.com/book-expert/vibe-creator/internal/exec"
	"github.com/book-expert/vibe-creator/internal/ffmpeg"
	"github.com/book-expert/vibe-creator/internal/music"
	"github.com/book-expert/vibe-creator/internal/pipeline"
	"github.com/book-expert/vibe-creator/internal/tts"
)

// Engine names used in health reports.
const (
	EngineSpeech = "speech"
	EngineMusic  = "music"
)

const (
	errFmtUnhealthy       = "%s engine unhealthy: %w"
	logFmtEngineHealthy   = "%s engine is healthy"
	logFmtEngineSkipped   = "%s engine has no health endpoint"
	logFmtEngineUnhealthy = "%s engine health check failed: %v"
)

// HealthChecker is implemented by engines that front a remote service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// App holds the process-wide collaborators built once at start-up.
type App struct {
	Prober       *ffmpeg.Prober
	Orchestrator *pipeline.Orchestrator

	engines map[string]any
	log     *logger.Logger
}

// Build constructs the engines, tools and orchestrator described by cfg.
func Build(cfg *config.Config, log *logger.Logger) (*App, error) {
	dirErr := cfg.EnsureDirectories()
	if dirErr != nil {
		return nil, fmt.Errorf("failed to prepare directories: %w", dirErr)
	}

	runner := exec.NewRunner()
	prober := ffmpeg.NewProber(runner, cfg.Tools.FFprobePath)
	transcoder := ffmpeg.NewTranscoder(runner, cfg.Tools.FFmpegPath)

	speech, err := tts.New(cfg.TTS, runner, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech engine: %w", err)
	}

	composer := music.NewClient(cfg.Music, log)

	orchestrator, err := pipeline.New(pipeline.Options{
		Engines: core.Engines{
			Speech: speech,
			Music:  composer,
		},
		Runner:    cfg.Progress.Runner(),
		Estimator: cfg.Progress.Estimator(),
		Enhancer:  enhance.NewEnhancer(prober, transcoder, log),
		Resampler: transcoder,
		OutputDir: cfg.Paths.OutputDir,
		VoiceDir:  cfg.Paths.VoiceDir,
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	log.Info("Engines ready: speech=%s music=%s", cfg.TTS.Engine, cfg.Music.ServiceURL)

	return &App{
		Prober:       prober,
		Orchestrator: orchestrator,
		engines:      map[string]any{EngineSpeech: speech, EngineMusic: composer},
		log:          log,
	}, nil
}

// CheckHealth asks every engine with a health endpoint whether its service
// answers. Engines without one are skipped. All failures are joined.
func (a *App) CheckHealth(ctx context.Context) error {
	var failures []error

	for _, name := range []string{EngineSpeech, EngineMusic} {
		checker, ok := a.engines[name].(HealthChecker)
		if !ok {
			a.log.Info(logFmtEngineSkipped, name)

			continue
		}

		err := checker.HealthCheck(ctx)
		if err != nil {
			a.log.Warn(logFmtEngineUnhealthy, name, err)
			failures = append(failures, fmt.Errorf(errFmtUnhealthy, name, err))

			continue
		}

		a.log.Info(logFmtEngineHealthy, name)
	}

	return errors.Join(failures...)
}
