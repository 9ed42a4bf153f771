package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/book-expert/vibe-creator/internal/task"
)

const barWidth = 40

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#A40000"))

	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00AA00")).
		Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A40000")).
			Bold(true)
)

func renderProgress(m Model) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.Title))
	b.WriteString("\n\n")

	if m.Stage != "" {
		b.WriteString(stageStyle.Render("⚙ " + m.Stage))
		b.WriteString("  ")
	}

	b.WriteString(m.Message)
	b.WriteString("\n")
	b.WriteString(RenderProgressBar(m.Fraction, barWidth))
	b.WriteString("\n")

	if m.Remaining > 0 {
		b.WriteString(mutedStyle.Render(task.RemainingText(m.Remaining)))
		b.WriteString("\n")
	}

	return b.String()
}

func renderSummary(m Model) string {
	var b strings.Builder

	elapsed := time.Since(m.StartTime).Round(time.Second)

	if m.Result.Err != nil {
		b.WriteString(errorStyle.Render("✗ " + m.Title + " failed"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "   Error: %v\n", m.Result.Err)

		return b.String()
	}

	b.WriteString(okStyle.Render("✓ " + m.Result.Status))
	b.WriteString("\n")
	fmt.Fprintf(&b, "   %s (%s)\n", m.Result.Path, elapsed)

	if m.Result.Report != "" {
		b.WriteString("\n")
		b.WriteString(m.Result.Report)
		b.WriteString("\n")
	}

	return b.String()
}

// RenderProgressBar renders a fraction in [0, 1] as a fixed-width bar.
func RenderProgressBar(fraction float64, width int) string {
	fraction = min(max(fraction, 0), 1)

	filled := int(fraction * float64(width))
	empty := width - filled

	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)
	percentage := int(fraction * 100)

	return fmt.Sprintf("%s %d%%", bar, percentage)
}

// PlainPrinter returns a callback that prints each event as one line.
func PlainPrinter(out io.Writer) task.Callback {
	return func(event task.Event) {
		line := fmt.Sprintf("[%3d%%] %s: %s", int(event.Fraction*100), event.Stage, event.Message)

		if event.Remaining > 0 && !event.Terminal {
			line += " (" + task.RemainingText(event.Remaining) + ")"
		}

		if event.Err != nil {
			line += " error: " + event.Err.Error()
		}

		fmt.Fprintln(out, line)
	}
}
