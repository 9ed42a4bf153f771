// Package pipeline composes synthesis jobs, encoding, mixing and enhancement
// into the track, voice and song workflows.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/vibe-creator/internal/audio"
	"github.com/book-expert/vibe-creator/internal/core"
	"github.com/book-expert/vibe-creator/internal/enhance"
	"github.com/book-expert/vibe-creator/internal/fsutil"
	"github.com/book-expert/vibe-creator/internal/task"
)

// Status texts returned with a finished workflow.
const (
	StatusTrackCreated      = "Track created!"
	StatusVoiceCreated      = "Voice generated!"
	StatusSongCreated       = "Song ready!"
	StatusFmtEnhanceSkipped = "Track created, enhancement failed: %v"
)

// Default names and fixed prompt parts.
const (
	defaultVoiceName     = "tts_voice"
	defaultSongName      = "final_song"
	vocalSuffix          = "_vocal"
	instrumentalSuffix   = "_instrumental"
	resampledSuffix      = "_resampled"
	instrumentalTemplate = "%s instrumental"
)

// Stage progress messages.
const (
	msgEncoding   = "Saving track..."
	msgEnhancing  = "Enhancing track..."
	msgResampling = "Matching vocal sample rate..."
	msgMixing     = "Mixing..."
)

// Validation reasons.
const (
	errPromptRequired   = "a prompt is required"
	errTextRequired     = "text is required"
	errLyricsRequired   = "lyrics are required"
	errGenreRequired    = "a genre is required"
	errFmtBadDuration   = "duration must be positive, got %d"
	errVoiceRequired    = "please select a voice file for generation"
	errFmtVoiceMissing  = "voice file %s not found"
	errFmtNotAudio      = "%s is not an audio file"
	errNoAudioReturned  = "music engine returned no audio"
	errFmtMissingOption = "pipeline option %s is required"
)

// Log formats.
const (
	logFmtStageFailed     = "[%s] failed at %s: %v"
	logFmtWorkflowDone    = "[%s] %s created in %.1f sec."
	logFmtEnhanceFallback = "[%s] enhancement failed, keeping %s: %v"
	logFmtResampling      = "[%s] resampling vocal from %d Hz to %d Hz"
)

// Enhancer post-processes a finished file.
type Enhancer interface {
	Enhance(ctx context.Context, path string) (*enhance.Result, error)
}

// Resampler rewrites a file as mono PCM at a new sample rate.
type Resampler interface {
	Resample(ctx context.Context, input string, sampleRate int, output string) error
}

// Options are the collaborators of an Orchestrator. Enhancer and Resampler are optional.
type Options struct {
	Engines   core.Engines
	Runner    *task.Runner
	Estimator task.Estimator
	Enhancer  Enhancer
	Resampler Resampler
	OutputDir string
	VoiceDir  string
	Logger    *logger.Logger
}

// Orchestrator runs workflows against engines shared by every request.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	engines   core.Engines
	runner    *task.Runner
	estimator task.Estimator
	enhancer  Enhancer
	resampler Resampler
	outputDir string
	voiceDir  string
	log       *logger.Logger
}

// TrackRequest asks for a solo instrumental track.
type TrackRequest struct {
	Prompt          string
	DurationSeconds int
	Name            string
	Enhance         bool
}

// VoiceRequest asks for narrated speech in the voice of a sample.
type VoiceRequest struct {
	Text        string
	VoiceSample string
	Language    string
	Name        string
}

// SongRequest asks for sung lyrics over a generated instrumental.
type SongRequest struct {
	Lyrics          string
	Genre           string
	DurationSeconds int
	VoiceSample     string
	Language        string
	Name            string
}

// Result is the outcome of a finished workflow.
type Result struct {
	Workflow string
	Path     string
	Status   string
	Report   *enhance.Report
	Elapsed  time.Duration
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Engines.Speech == nil:
		return nil, core.Validationf(errFmtMissingOption, "Engines.Speech")
	case opts.Engines.Music == nil:
		return nil, core.Validationf(errFmtMissingOption, "Engines.Music")
	case opts.Runner == nil:
		return nil, core.Validationf(errFmtMissingOption, "Runner")
	case opts.Logger == nil:
		return nil, core.Validationf(errFmtMissingOption, "Logger")
	case opts.OutputDir == "":
		return nil, core.Validationf(errFmtMissingOption, "OutputDir")
	}

	return &Orchestrator{
		engines:   opts.Engines,
		runner:    opts.Runner,
		estimator: opts.Estimator,
		enhancer:  opts.Enhancer,
		resampler: opts.Resampler,
		outputDir: opts.OutputDir,
		voiceDir:  opts.VoiceDir,
		log:       opts.Logger,
	}, nil
}

// SoloTrack composes an instrumental, saves it and optionally enhances it.
// A failed enhancement keeps the un-enhanced track and reports it in the status.
func (o *Orchestrator) SoloTrack(ctx context.Context, req TrackRequest, callback task.Callback) (*Result, error) {
	start := time.Now()
	progress := newReporter(callback)

	stages := trackPlan
	if req.Enhance {
		stages = trackEnhancePlan
	}

	if req.Prompt == "" {
		return nil, o.fail(progress, WorkflowTrack, StageValidate, core.Validationf(errPromptRequired))
	}

	if req.DurationSeconds <= 0 {
		return nil, o.fail(progress, WorkflowTrack, StageValidate, core.Validationf(errFmtBadDuration, req.DurationSeconds))
	}

	err := o.prepareOutput()
	if err != nil {
		return nil, o.fail(progress, WorkflowTrack, StageValidate, err)
	}

	buffer, err := o.compose(ctx, req.Prompt, req.DurationSeconds, stages.span(StageMusic), progress)
	if err != nil {
		return nil, o.fail(progress, WorkflowTrack, StageMusic, err)
	}

	trackPath := o.outputPath(req.Name)
	progress.enter(StageEncode, stages.span(StageEncode), msgEncoding)

	err = audio.Encode(buffer, trackPath)
	if err != nil {
		return nil, o.fail(progress, WorkflowTrack, StageEncode, err)
	}

	result := &Result{Workflow: WorkflowTrack, Path: trackPath, Status: StatusTrackCreated}

	if req.Enhance && o.enhancer != nil {
		progress.enter(StageEnhance, stages.span(StageEnhance), msgEnhancing)

		enhanced, enhanceErr := o.enhancer.Enhance(ctx, trackPath)
		if enhanceErr != nil {
			o.log.Warn(logFmtEnhanceFallback, WorkflowTrack, trackPath, enhanceErr)
			result.Status = fmt.Sprintf(StatusFmtEnhanceSkipped, enhanceErr)
		} else {
			result.Path = enhanced.Path
			result.Report = enhanced.Report
		}
	}

	return o.finish(progress, result, start), nil
}

// SoloVoice speaks text in the voice of the sample.
func (o *Orchestrator) SoloVoice(ctx context.Context, req VoiceRequest, callback task.Callback) (*Result, error) {
	start := time.Now()
	progress := newReporter(callback)

	if req.Text == "" {
		return nil, o.fail(progress, WorkflowVoice, StageValidate, core.Validationf(errTextRequired))
	}

	voiceSample, err := o.resolveVoice(req.VoiceSample)
	if err != nil {
		return nil, o.fail(progress, WorkflowVoice, StageValidate, err)
	}

	err = o.prepareOutput()
	if err != nil {
		return nil, o.fail(progress, WorkflowVoice, StageValidate, err)
	}

	name := req.Name
	if name == "" {
		name = defaultVoiceName
	}

	voicePath := o.outputPath(name)

	err = o.speak(ctx, core.SpeechRequest{Text: req.Text, VoiceSample: voiceSample, Language: req.Language},
		voicePath, voicePlan.span(StageSpeech), progress)
	if err != nil {
		return nil, o.fail(progress, WorkflowVoice, StageSpeech, err)
	}

	return o.finish(progress, &Result{Workflow: WorkflowVoice, Path: voicePath, Status: StatusVoiceCreated}, start), nil
}

// Song sings the lyrics, composes a "<genre> instrumental" and overlays the two.
// Intermediate stems stay in the output directory.
func (o *Orchestrator) Song(ctx context.Context, req SongRequest, callback task.Callback) (*Result, error) {
	start := time.Now()
	progress := newReporter(callback)

	voiceSample, err := o.validateSong(req)
	if err != nil {
		return nil, o.fail(progress, WorkflowSong, StageValidate, err)
	}

	name := req.Name
	if name == "" {
		name = defaultSongName
	}

	vocalPath := o.outputPath(name + vocalSuffix)

	err = o.speak(ctx, core.SpeechRequest{Text: req.Lyrics, VoiceSample: voiceSample, Language: req.Language},
		vocalPath, songPlan.span(StageSpeech), progress)
	if err != nil {
		return nil, o.fail(progress, WorkflowSong, StageSpeech, err)
	}

	prompt := fmt.Sprintf(instrumentalTemplate, req.Genre)

	music, err := o.compose(ctx, prompt, req.DurationSeconds, songPlan.span(StageMusic), progress)
	if err != nil {
		return nil, o.fail(progress, WorkflowSong, StageMusic, err)
	}

	instrumentalPath := o.outputPath(name + instrumentalSuffix)
	progress.enter(StageEncode, songPlan.span(StageEncode), msgEncoding)

	err = audio.Encode(music, instrumentalPath)
	if err != nil {
		return nil, o.fail(progress, WorkflowSong, StageEncode, err)
	}

	progress.enter(StageMix, songPlan.span(StageMix), msgMixing)

	finalPath := o.outputPath(name)

	stageName, err := o.mixdown(ctx, vocalPath, instrumentalPath, finalPath, progress)
	if err != nil {
		return nil, o.fail(progress, WorkflowSong, stageName, err)
	}

	return o.finish(progress, &Result{Workflow: WorkflowSong, Path: finalPath, Status: StatusSongCreated}, start), nil
}

// EnhanceFile enhances an existing file as a one-stage workflow.
func (o *Orchestrator) EnhanceFile(ctx context.Context, path string, callback task.Callback) (*Result, error) {
	start := time.Now()
	progress := newReporter(callback)

	if o.enhancer == nil {
		return nil, o.fail(progress, WorkflowEnhance, StageValidate, core.Validationf(errFmtMissingOption, "Enhancer"))
	}

	if path != "" && !fsutil.IsAudioFile(path) {
		return nil, o.fail(progress, WorkflowEnhance, StageValidate, core.Validationf(errFmtNotAudio, filepath.Base(path)))
	}

	progress.enter(StageEnhance, enhancePlan.span(StageEnhance), msgEnhancing)

	enhanced, err := o.enhancer.Enhance(ctx, path)
	if err != nil {
		return nil, o.fail(progress, WorkflowEnhance, StageEnhance, err)
	}

	result := &Result{
		Workflow: WorkflowEnhance,
		Path:     enhanced.Path,
		Status:   enhanced.Status,
		Report:   enhanced.Report,
	}

	return o.finish(progress, result, start), nil
}

func (o *Orchestrator) validateSong(req SongRequest) (string, error) {
	switch {
	case req.Lyrics == "":
		return "", core.Validationf(errLyricsRequired)
	case req.Genre == "":
		return "", core.Validationf(errGenreRequired)
	case req.DurationSeconds <= 0:
		return "", core.Validationf(errFmtBadDuration, req.DurationSeconds)
	}

	voiceSample, err := o.resolveVoice(req.VoiceSample)
	if err != nil {
		return "", err
	}

	return voiceSample, o.prepareOutput()
}

// resolveVoice accepts a path as given or relative to the voice directory.
func (o *Orchestrator) resolveVoice(sample string) (string, error) {
	if sample == "" {
		return "", core.Validationf(errVoiceRequired)
	}

	if !fsutil.IsAudioFile(sample) {
		return "", core.Validationf(errFmtNotAudio, filepath.Base(sample))
	}

	candidates := []string{sample}
	if o.voiceDir != "" && !filepath.IsAbs(sample) {
		candidates = append(candidates, filepath.Join(o.voiceDir, sample))
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}

	return "", core.Validationf(errFmtVoiceMissing, filepath.Base(sample))
}

func (o *Orchestrator) speak(
	ctx context.Context,
	req core.SpeechRequest,
	outputPath string,
	span task.Span,
	progress *reporter,
) error {
	job := task.Job[struct{}]{
		Stage:    StageSpeech,
		Estimate: o.estimator.Speech(req.Text),
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, o.engines.Speech.Synthesize(ctx, req, outputPath)
		},
	}

	_, err := task.Run(ctx, o.runner, job, span, progress.forward)

	return err
}

func (o *Orchestrator) compose(
	ctx context.Context,
	prompt string,
	durationSeconds int,
	span task.Span,
	progress *reporter,
) (*core.AudioBuffer, error) {
	job := task.Job[[]*core.AudioBuffer]{
		Stage:    StageMusic,
		Estimate: o.estimator.Music(durationSeconds),
		Call: func(ctx context.Context) ([]*core.AudioBuffer, error) {
			return o.engines.Music.Compose(ctx, core.MusicRequest{Prompt: prompt, DurationSeconds: durationSeconds})
		},
	}

	buffers, err := task.Run(ctx, o.runner, job, span, progress.forward)
	if err != nil {
		return nil, err
	}

	if len(buffers) == 0 || buffers[0].Frames() == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrSynthesis, errNoAudioReturned)
	}

	return buffers[0], nil
}

// mixdown overlays the vocal onto the instrumental and saves the result.
// It returns the name of the stage that failed.
func (o *Orchestrator) mixdown(ctx context.Context, vocalPath, instrumentalPath, finalPath string, progress *reporter) (string, error) {
	instrumental, err := audio.Decode(instrumentalPath)
	if err != nil {
		return StageMix, err
	}

	vocal, err := audio.Decode(vocalPath)
	if err != nil {
		return StageMix, err
	}

	if vocal.SampleRate != instrumental.SampleRate && o.resampler != nil {
		o.log.Info(logFmtResampling, WorkflowSong, vocal.SampleRate, instrumental.SampleRate)
		progress.enter(StageMix, songPlan.span(StageMix), msgResampling)

		resampledPath := fsutil.SuffixedPath(vocalPath, resampledSuffix, filepath.Ext(vocalPath))

		err = o.resampler.Resample(ctx, vocalPath, instrumental.SampleRate, resampledPath)
		if err != nil {
			return StageResample, err
		}

		vocal, err = audio.Decode(resampledPath)
		if err != nil {
			return StageResample, err
		}
	}

	mixed, err := audio.Mix(instrumental, vocal)
	if err != nil {
		return StageMix, err
	}

	err = audio.Encode(mixed, finalPath)
	if err != nil {
		return StageMix, err
	}

	return "", nil
}

func (o *Orchestrator) prepareOutput() error {
	return fsutil.EnsureDir(o.outputDir)
}

// outputPath gives every request its own file so concurrent requests for the
// same name never collide.
func (o *Orchestrator) outputPath(name string) string {
	return filepath.Join(o.outputDir, fsutil.UniqueName(name))
}

func (o *Orchestrator) fail(progress *reporter, workflow, stageName string, err error) error {
	var stageErr *core.StageError
	if !errors.As(err, &stageErr) {
		err = &core.StageError{Workflow: workflow, Stage: stageName, Err: err}
	}

	o.log.Error(logFmtStageFailed, workflow, stageName, err)
	progress.fail(stageName, err)

	return err
}

func (o *Orchestrator) finish(progress *reporter, result *Result, start time.Time) *Result {
	result.Elapsed = time.Since(start)
	o.log.Info(logFmtWorkflowDone, result.Workflow, filepath.Base(result.Path), result.Elapsed.Seconds())
	progress.done(result.Status)

	return result
}
