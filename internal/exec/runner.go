// Package exec runs external tools and captures their output.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Result holds the captured output of one command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes commands synchronously; Run blocks until the process exits.
type Runner struct{}

// NewRunner creates a runner that inherits the current environment.
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes name with args. A non-zero exit is returned as an error wrapping
// *exec.ExitError; the Result is returned alongside so callers keep stderr.
func (*Runner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	// #nosec G204 -- binaries and arguments come from configuration, not from request payloads
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	}

	if err != nil {
		return result, fmt.Errorf("%s failed: %w", name, err)
	}

	return result, nil
}
