package tts

import (
	"fmt"

	"github.com/book-expert/logger"

	"github.com/book-expert/vibe-creator/internal/config"
	"github.com/book-expert/vibe-creator/internal/core"
	"github.com/book-expert/vibe-creator/internal/exec"
)

const errFmtUnknownEngine = "%w: unknown speech engine %q"

// New builds the speech engine selected by cfg.Engine.
func New(cfg config.TTSConfig, runner *exec.Runner, log *logger.Logger) (core.SpeechSynthesizer, error) {
	switch cfg.Engine {
	case config.EngineHTTP, "":
		return NewHTTPEngine(cfg, log), nil
	case config.EngineCLI:
		return NewCLIEngine(runner, cfg, log), nil
	default:
		return nil, fmt.Errorf(errFmtUnknownEngine, core.ErrValidation, cfg.Engine)
	}
}
