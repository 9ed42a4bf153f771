// Package task runs one blocking synthesis call in the background while
// reporting an estimated, smoothly advancing progress fraction.
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/vibe-creator/internal/core"
	"github.com/book-expert/vibe-creator/internal/fsutil"
)

// Runner defaults.
const (
	DefaultInterval = 400 * time.Millisecond
	DefaultCapRatio = 0.9
	minimumEstimate = time.Second
)

// Event messages and error formats.
const (
	msgAlmostDone     = "almost done..."
	msgFmtRemaining   = "~%s remaining"
	msgDone           = "done"
	msgFmtFailed      = "failed: %v"
	errFmtNoCall      = "job %q has nothing to run"
	errFmtInvalidSpan = "invalid progress span [%.2f, %.2f] for job %q"
	errFmtPanic       = "job panicked: %v"
	errFmtJobFailed   = "%s: %w"
	errFmtSynthesis   = "%w: %s: %w"
)

// Span is the sub-range of the overall [0,1] progress scale owned by one stage.
type Span struct {
	Lower float64
	Upper float64
}

// Width returns the size of the span.
func (s Span) Width() float64 {
	return s.Upper - s.Lower
}

func (s Span) valid() bool {
	return s.Lower >= 0 && s.Upper <= 1 && s.Lower <= s.Upper
}

// Event is one progress report. Exactly one event per job has Terminal set,
// and it is always the last one delivered.
type Event struct {
	Stage     string
	Fraction  float64
	Remaining time.Duration
	Message   string
	Terminal  bool
	Err       error
}

// Callback receives progress events on the goroutine that called Run.
type Callback func(Event)

// Job is one opaque, long-running synthesis call with a guessed duration.
type Job[T any] struct {
	Stage    string
	Estimate time.Duration
	Call     func(ctx context.Context) (T, error)
}

// Runner holds the reporting cadence shared by every job.
type Runner struct {
	interval time.Duration
	capRatio float64
	now      func() time.Time
}

// NewRunner creates a Runner. A non-positive interval and a cap ratio outside
// (0,1) fall back to the defaults.
func NewRunner(interval time.Duration, capRatio float64) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}

	if capRatio <= 0 || capRatio >= 1 {
		capRatio = DefaultCapRatio
	}

	return &Runner{interval: interval, capRatio: capRatio, now: time.Now}
}

// Interval returns the reporting cadence.
func (r *Runner) Interval() time.Duration {
	return r.interval
}

// CapRatio returns the share of a span that progress may reach while a job is running.
func (r *Runner) CapRatio() float64 {
	return r.capRatio
}

type outcome[T any] struct {
	value T
	err   error
}

// Run starts job.Call on its own goroutine and reports progress within span
// until it returns. The job is never abandoned: ctx is handed to the call and
// Run waits for it to finish. Failures are reported as core.ErrSynthesis.
func Run[T any](ctx context.Context, runner *Runner, job Job[T], span Span, callback Callback) (T, error) {
	var zero T

	if job.Call == nil {
		return zero, core.Validationf(errFmtNoCall, job.Stage)
	}

	if !span.valid() {
		return zero, core.Validationf(errFmtInvalidSpan, span.Lower, span.Upper, job.Stage)
	}

	if callback == nil {
		callback = func(Event) {}
	}

	estimate := max(job.Estimate, minimumEstimate)
	done := make(chan outcome[T], 1)
	start := runner.now()

	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- outcome[T]{err: fmt.Errorf(errFmtPanic, recovered)}
			}
		}()

		value, err := job.Call(ctx)
		done <- outcome[T]{value: value, err: err}
	}()

	ticker := time.NewTicker(runner.interval)
	defer ticker.Stop()

	last := span.Lower
	callback(Event{Stage: job.Stage, Fraction: last, Remaining: estimate, Message: RemainingText(estimate)})

	for {
		select {
		case result := <-done:
			if result.err != nil {
				err := synthesisError(job.Stage, result.err)
				callback(Event{
					Stage:    job.Stage,
					Fraction: last,
					Message:  fmt.Sprintf(msgFmtFailed, result.err),
					Terminal: true,
					Err:      err,
				})

				return zero, err
			}

			callback(Event{Stage: job.Stage, Fraction: span.Upper, Message: msgDone, Terminal: true})

			return result.value, nil

		case <-ticker.C:
			elapsed := runner.now().Sub(start)
			last = max(last, Interpolate(span, elapsed, estimate, runner.capRatio))
			remaining := max(estimate-elapsed, 0)

			callback(Event{Stage: job.Stage, Fraction: last, Remaining: remaining, Message: RemainingText(remaining)})
		}
	}
}

// Interpolate maps elapsed time against the estimate onto span, never passing
// Lower + capRatio*Width while the job is still running.
func Interpolate(span Span, elapsed, estimate time.Duration, capRatio float64) float64 {
	ceiling := span.Lower + capRatio*span.Width()
	if estimate <= 0 {
		return ceiling
	}

	fraction := span.Lower + (elapsed.Seconds()/estimate.Seconds())*span.Width()

	return min(max(fraction, span.Lower), ceiling)
}

// RemainingText renders a remaining-time estimate for humans.
func RemainingText(remaining time.Duration) string {
	if remaining <= 0 {
		return msgAlmostDone
	}

	return fmt.Sprintf(msgFmtRemaining, fsutil.FormatDuration(remaining.Seconds()))
}

func synthesisError(stage string, err error) error {
	if errors.Is(err, core.ErrSynthesis) {
		return fmt.Errorf(errFmtJobFailed, stage, err)
	}

	return fmt.Errorf(errFmtSynthesis, core.ErrSynthesis, stage, err)
}
