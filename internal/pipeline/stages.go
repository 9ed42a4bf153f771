package pipeline

import (
	"github.com/book-expert/vibe-creator/internal/task"
)

// Workflow names.
const (
	WorkflowTrack   = "track"
	WorkflowVoice   = "voice"
	WorkflowSong    = "song"
	WorkflowEnhance = "enhance"
)

// Stage names.
const (
	StageValidate = "validate"
	StageSpeech   = "speech"
	StageMusic    = "music"
	StageEncode   = "encode"
	StageEnhance  = "enhance"
	StageResample = "resample"
	StageMix      = "mix"
	StageDone     = "done"
)

// stage reserves the progress range ending at upper; it starts where the
// previous stage of the plan ends.
type stage struct {
	name  string
	upper float64
}

// plan is an ordered list of stages covering [0,1] without gaps.
type plan []stage

var (
	trackPlan = plan{
		{StageMusic, 0.8},
		{StageEncode, 1.0},
	}
	trackEnhancePlan = plan{
		{StageMusic, 0.8},
		{StageEncode, 0.9},
		{StageEnhance, 1.0},
	}
	voicePlan = plan{
		{StageSpeech, 1.0},
	}
	songPlan = plan{
		{StageSpeech, 0.4},
		{StageMusic, 0.8},
		{StageEncode, 0.9},
		{StageMix, 1.0},
	}
	enhancePlan = plan{
		{StageEnhance, 1.0},
	}
)

// span returns the progress range of the named stage.
func (p plan) span(name string) task.Span {
	lower := 0.0

	for _, s := range p {
		if s.name == name {
			return task.Span{Lower: lower, Upper: s.upper}
		}

		lower = s.upper
	}

	return task.Span{Lower: lower, Upper: lower}
}

// reporter turns the per-job events of a workflow into one stream that rises
// monotonically and ends with exactly one terminal event.
type reporter struct {
	callback task.Callback
	last     float64
	closed   bool
}

func newReporter(callback task.Callback) *reporter {
	if callback == nil {
		callback = func(task.Event) {}
	}

	return &reporter{callback: callback}
}

// forward relays a job event. Job terminals become stage boundaries and job
// failures are left to fail.
func (r *reporter) forward(event task.Event) {
	if event.Err != nil {
		return
	}

	event.Terminal = false
	r.emit(event)
}

// enter marks the start of a stage that runs inline.
func (r *reporter) enter(name string, span task.Span, message string) {
	r.emit(task.Event{Stage: name, Fraction: span.Lower, Message: message})
}

func (r *reporter) done(message string) {
	r.emit(task.Event{Stage: StageDone, Fraction: 1, Message: message, Terminal: true})
}

func (r *reporter) fail(stageName string, err error) {
	r.emit(task.Event{Stage: stageName, Fraction: r.last, Message: err.Error(), Terminal: true, Err: err})
}

func (r *reporter) emit(event task.Event) {
	if r.closed {
		return
	}

	event.Fraction = max(event.Fraction, r.last)
	r.last = event.Fraction
	r.closed = event.Terminal
	r.callback(event)
}
