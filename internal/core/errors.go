package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every error surfaced by the pipeline wraps exactly one of these.
var (
	// ErrValidation marks missing or invalid input rejected before any work is scheduled.
	ErrValidation = errors.New("validation failed")
	// ErrProbe marks a file whose technical properties could not be read.
	ErrProbe = errors.New("no audio info available")
	// ErrEncode marks a failure to write or transcode an audio file.
	ErrEncode = errors.New("encode failed")
	// ErrSynthesis marks a failure raised by a synthesis engine.
	ErrSynthesis = errors.New("synthesis failed")
)

// StageError identifies the workflow stage that aborted a pipeline.
type StageError struct {
	Workflow string
	Stage    string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s workflow failed at stage %q: %v", e.Workflow, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ProcessError represents a non-zero exit of an external tool.
// Stderr holds the diagnostic stream captured verbatim.
type ProcessError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed (exit %d): %s", e.Tool, e.ExitCode, e.Stderr)
	}

	return fmt.Sprintf("%s failed (exit %d)", e.Tool, e.ExitCode)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Validationf returns an ErrValidation carrying a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
