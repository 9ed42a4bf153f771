package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/book-expert/logger"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/book-expert/vibe-creator/internal/app"
	"github.com/book-expert/vibe-creator/internal/config"
	"github.com/book-expert/vibe-creator/internal/enhance"
	"github.com/book-expert/vibe-creator/internal/fsutil"
	"github.com/book-expert/vibe-creator/internal/pipeline"
	"github.com/book-expert/vibe-creator/internal/task"
	"github.com/book-expert/vibe-creator/internal/ui"
)

const logFileName = "vibe.log"

// TrackCmd generates an instrumental track.
type TrackCmd struct {
	Prompt   string `required:"" help:"Music description"`
	Duration int    `default:"30" help:"Track length in seconds"`
	Name     string `default:"track" help:"Output file name"`
	Enhance  bool   `help:"Normalize and export the track as WAV"`
}

func (c *TrackCmd) Run(globals *Globals) error {
	return globals.runWorkflow("Track", func(ctx context.Context, o *pipeline.Orchestrator, callback task.Callback) (*pipeline.Result, error) {
		return o.SoloTrack(ctx, pipeline.TrackRequest{
			Prompt:          c.Prompt,
			DurationSeconds: c.Duration,
			Name:            c.Name,
			Enhance:         c.Enhance,
		}, callback)
	})
}

// VoiceCmd speaks text in a reference voice.
type VoiceCmd struct {
	Text     string `required:"" help:"Text to speak"`
	Voice    string `required:"" help:"Reference voice sample, absolute or relative to the voice directory"`
	Language string `help:"Speech language (defaults to the configured language)"`
	Name     string `help:"Output file name"`
}

func (c *VoiceCmd) Run(globals *Globals) error {
	return globals.runWorkflow("Voice", func(ctx context.Context, o *pipeline.Orchestrator, callback task.Callback) (*pipeline.Result, error) {
		return o.SoloVoice(ctx, pipeline.VoiceRequest{
			Text:        c.Text,
			VoiceSample: c.Voice,
			Language:    c.Language,
			Name:        c.Name,
		}, callback)
	})
}

// SongCmd sings lyrics over a generated instrumental.
type SongCmd struct {
	Lyrics   string `required:"" help:"Lyrics to sing"`
	Genre    string `required:"" help:"Genre of the instrumental"`
	Duration int    `default:"30" help:"Instrumental length in seconds"`
	Voice    string `required:"" help:"Reference voice sample"`
	Language string `help:"Lyrics language"`
	Name     string `help:"Output file name"`
}

func (c *SongCmd) Run(globals *Globals) error {
	return globals.runWorkflow("Song", func(ctx context.Context, o *pipeline.Orchestrator, callback task.Callback) (*pipeline.Result, error) {
		return o.Song(ctx, pipeline.SongRequest{
			Lyrics:          c.Lyrics,
			Genre:           c.Genre,
			DurationSeconds: c.Duration,
			VoiceSample:     c.Voice,
			Language:        c.Language,
			Name:            c.Name,
		}, callback)
	})
}

// EnhanceCmd enhances an existing file.
type EnhanceCmd struct {
	File string `arg:"" help:"Audio file to enhance"`
}

func (c *EnhanceCmd) Run(globals *Globals) error {
	return globals.runWorkflow("Enhance", func(ctx context.Context, o *pipeline.Orchestrator, callback task.Callback) (*pipeline.Result, error) {
		return o.EnhanceFile(ctx, c.File, callback)
	})
}

// ProbeCmd prints stream information.
type ProbeCmd struct {
	File string `arg:"" help:"Audio file to inspect"`
}

func (c *ProbeCmd) Run(globals *Globals) error {
	built, log, err := globals.build()
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	info, err := built.Prober.Probe(context.Background(), c.File)
	if err != nil {
		return err
	}

	rows := []struct {
		label string
		value string
	}{
		{"File", info.Path},
		{"Codec", info.Codec},
		{"Sample rate", fmt.Sprintf("%d Hz", info.SampleRate)},
		{"Channels", fmt.Sprintf("%d", info.Channels)},
		{"Bitrate", enhance.FormatBitRate(info.BitRate)},
		{"Duration", fmt.Sprintf("%.2f sec", info.DurationSeconds)},
		{"Size", fsutil.FormatFileSize(info.SizeBytes)},
	}

	for _, row := range rows {
		fmt.Printf("%s %s\n", labelStyle.Render(fmt.Sprintf("%-12s", row.label)), row.value)
	}

	return nil
}

// HealthCmd checks the configured engines.
type HealthCmd struct{}

func (c *HealthCmd) Run(globals *Globals) error {
	built, log, err := globals.build()
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	err = built.CheckHealth(context.Background())
	if err != nil {
		return err
	}

	fmt.Println(labelStyle.Render("Engines healthy"))

	return nil
}

type workflowFunc func(ctx context.Context, o *pipeline.Orchestrator, callback task.Callback) (*pipeline.Result, error)

func (g *Globals) build() (*app.App, *logger.Logger, error) {
	cfg, err := config.LoadFile(g.Config)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	built, err := app.Build(cfg, log)
	if err != nil {
		_ = log.Close()

		return nil, nil, err
	}

	return built, log, nil
}

func (g *Globals) runWorkflow(title string, workflow workflowFunc) error {
	built, log, err := g.build()
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if g.Plain {
		result, runErr := workflow(ctx, built.Orchestrator, ui.PlainPrinter(os.Stdout))
		if runErr != nil {
			return runErr
		}

		fmt.Println(result.Status)
		fmt.Println(result.Path)

		if result.Report != nil {
			fmt.Println(result.Report.String())
		}

		return nil
	}

	model := ui.NewModel(title)
	program := tea.NewProgram(model)

	go func() {
		result, runErr := workflow(ctx, built.Orchestrator, model.Callback())
		model.Finish(doneMessage(result, runErr))
	}()

	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("UI error: %w", err)
	}

	finalModel, ok := final.(ui.Model)
	if !ok {
		finalModel = model
	}

	outcome := finalModel.Outcome()
	if errors.Is(outcome, ui.ErrAborted) {
		stop()
		model.Discard()
	}

	return outcome
}

func doneMessage(result *pipeline.Result, err error) ui.DoneMsg {
	if err != nil {
		return ui.DoneMsg{Err: err}
	}

	done := ui.DoneMsg{Path: result.Path, Status: result.Status}

	if result.Report != nil {
		done.Report = result.Report.String()
	}

	return done
}
