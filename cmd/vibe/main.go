package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

var version = "0.1.0"

var (
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A40000")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true)
)

// Globals are flags shared by every command.
type Globals struct {
	Config  string           `short:"c" type:"path" help:"Path to TOML config file (optional)"`
	Plain   bool             `help:"Print progress as plain lines instead of a live view"`
	Version kong.VersionFlag `short:"v" help:"Show version information"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Track   TrackCmd   `cmd:"" help:"Generate an instrumental track from a prompt"`
	Voice   VoiceCmd   `cmd:"" help:"Speak text in a reference voice"`
	Song    SongCmd    `cmd:"" help:"Sing lyrics over a generated instrumental"`
	Enhance EnhanceCmd `cmd:"" help:"Normalize and re-export an existing audio file"`
	Probe   ProbeCmd   `cmd:"" help:"Show the technical properties of an audio file"`
	Health  HealthCmd  `cmd:"" help:"Check that the configured engines are reachable"`
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("vibe"),
		kong.Description("Generate music, voices and songs, then polish them"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	err := ctx.Run(&cli.Globals)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}
