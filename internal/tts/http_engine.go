package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"

	"github.com/book-expert/vibe-creator/internal/config"
	"github.com/book-expert/vibe-creator/internal/core"
	"github.com/book-expert/vibe-creator/internal/fsutil"
)

const filePermissions = 0o600

// Static errors.
var (
	ErrOutputPathEmpty  = errors.New("output path cannot be empty")
	ErrVoiceSampleEmpty = errors.New("voice sample cannot be empty")
)

// Log and error formats.
const (
	errFmtSpeechFailed    = "%w: failed to generate speech: %w"
	errFmtWriteAudio      = "failed to write audio file: %w"
	errFmtPrepareOutput   = "failed to prepare output directory: %w"
	logFmtRequestSpeech   = "Requesting speech for %d characters (voice: %s, language: %s)"
	logFmtGeneratedAudio  = "Generated audio: %s (%d bytes)"
	logFmtHealthCheckFail = "Speech service health check failed: %v"
)

// HTTPEngine synthesizes speech through a standalone speech service.
type HTTPEngine struct {
	client *HTTPClient
	config config.TTSConfig
	logger *logger.Logger
}

// NewHTTPEngine creates an engine for the service configured in cfg.
func NewHTTPEngine(cfg config.TTSConfig, log *logger.Logger) *HTTPEngine {
	return NewHTTPEngineWithClient(cfg, log, NewHTTPClient(cfg.ServiceURL, cfg.Timeout()))
}

// NewHTTPEngineWithClient creates an engine around an existing client.
func NewHTTPEngineWithClient(cfg config.TTSConfig, log *logger.Logger, client *HTTPClient) *HTTPEngine {
	return &HTTPEngine{
		client: client,
		config: cfg,
		logger: log,
	}
}

// Synthesize writes speech for req to outputPath.
func (e *HTTPEngine) Synthesize(ctx context.Context, req core.SpeechRequest, outputPath string) error {
	inputErr := validateSpeechInputs(req, outputPath)
	if inputErr != nil {
		return inputErr
	}

	prepErr := fsutil.EnsureDir(filepath.Dir(outputPath))
	if prepErr != nil {
		return fmt.Errorf(errFmtPrepareOutput, prepErr)
	}

	language := resolveLanguage(req.Language, e.config.Language)
	e.logger.Info(logFmtRequestSpeech, len(req.Text), filepath.Base(req.VoiceSample), language)

	audioData, speechErr := e.client.GenerateSpeech(ctx, Request{
		Text:           req.Text,
		SpeakerRefPath: req.VoiceSample,
		Language:       language,
		Temperature:    e.config.Temperature,
	})
	if speechErr != nil {
		return fmt.Errorf(errFmtSpeechFailed, core.ErrSynthesis, speechErr)
	}

	writeErr := os.WriteFile(outputPath, audioData, filePermissions)
	if writeErr != nil {
		return fmt.Errorf(errFmtWriteAudio, writeErr)
	}

	e.logger.Info(logFmtGeneratedAudio, outputPath, len(audioData))

	return nil
}

// HealthCheck verifies the speech service is reachable.
func (e *HTTPEngine) HealthCheck(ctx context.Context) error {
	err := e.client.HealthCheck(ctx)
	if err != nil {
		e.logger.Warn(logFmtHealthCheckFail, err)

		return err
	}

	return nil
}

func validateSpeechInputs(req core.SpeechRequest, outputPath string) error {
	if req.Text == "" {
		return ErrTextEmpty
	}

	if req.VoiceSample == "" {
		return ErrVoiceSampleEmpty
	}

	if outputPath == "" {
		return ErrOutputPathEmpty
	}

	return nil
}

// resolveLanguage picks the request language, then the configured one, then English.
func resolveLanguage(requested, configured string) string {
	if requested != "" {
		return requested
	}

	if configured != "" {
		return configured
	}

	return defaultLanguage
}
