package enhance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"

	"github.com/book-expert/vibe-creator/internal/core"
	"github.com/book-expert/vibe-creator/internal/fsutil"
)

// Status texts shown to the user.
const (
	StatusEnhanced       = "Track successfully enhanced!"
	StatusNoFileSelected = "No file selected."
	StatusFileNotFound   = "File not found"
)

// Log and error formats.
const (
	errFmtFileNotFound    = "%w: %s: %s"
	errFmtNoInfo          = "could not get audio info for %s: %w"
	errFmtEnhanceFailed   = "failed to enhance %s: %w"
	logFmtEnhancing       = "Enhancing %s -> %s (filters: %s)"
	logFmtReprobeFailed   = "Could not probe enhanced file %s: %v"
	logFmtEnhanced        = "Enhanced %s"
	logFmtAbsPathFallback = "Could not resolve absolute path of %s: %v"
)

// StreamProber reads the technical properties of a file.
type StreamProber interface {
	Probe(ctx context.Context, path string) (*core.StreamInfo, error)
}

// FilterTranscoder applies a filter chain in one external pass.
type FilterTranscoder interface {
	Transcode(ctx context.Context, input, filterChain, codec, output string) error
}

// Result is the outcome of one enhancement.
type Result struct {
	Path   string
	Status string
	Plan   Plan
	Report *Report
}

// Enhancer probes, plans, transcodes and re-probes a file.
type Enhancer struct {
	prober     StreamProber
	transcoder FilterTranscoder
	log        *logger.Logger
}

// NewEnhancer creates an Enhancer.
func NewEnhancer(prober StreamProber, transcoder FilterTranscoder, log *logger.Logger) *Enhancer {
	return &Enhancer{prober: prober, transcoder: transcoder, log: log}
}

// Enhance writes an enhanced copy of path next to it and reports before/after
// properties. It fails before transcoding when the source cannot be probed.
// The source file is never overwritten.
func (e *Enhancer) Enhance(ctx context.Context, path string) (*Result, error) {
	if path == "" {
		return nil, core.Validationf("%s", StatusNoFileSelected)
	}

	_, statErr := os.Stat(path)
	if statErr != nil {
		return nil, fmt.Errorf(errFmtFileNotFound, core.ErrProbe, StatusFileNotFound, filepath.Base(path))
	}

	original, err := e.prober.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf(errFmtNoInfo, filepath.Base(path), err)
	}

	plan := Analyze(original)
	output := fsutil.EnhancedPath(path, plan.Extension)

	e.log.Info(logFmtEnhancing, filepath.Base(path), filepath.Base(output), plan.FilterChain())

	err = e.transcoder.Transcode(ctx, path, plan.FilterChain(), plan.Codec, output)
	if err != nil {
		return nil, fmt.Errorf(errFmtEnhanceFailed, filepath.Base(path), err)
	}

	enhanced, err := e.prober.Probe(ctx, output)
	if err != nil {
		e.log.Warn(logFmtReprobeFailed, output, err)

		enhanced = nil
	}

	absolute, err := filepath.Abs(output)
	if err != nil {
		e.log.Warn(logFmtAbsPathFallback, output, err)

		absolute = output
	}

	e.log.Info(logFmtEnhanced, absolute)

	return &Result{
		Path:   absolute,
		Status: StatusEnhanced,
		Plan:   plan,
		Report: &Report{Original: original, Enhanced: enhanced, Actions: plan.Actions},
	}, nil
}
