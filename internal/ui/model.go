// Package ui provides the Bubbletea progress view for the vibe CLI.
package ui

import (
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/book-expert/vibe-creator/internal/task"
)

const progressBuffer = 64

// ErrAborted is returned by Outcome when the view was closed before the workflow returned.
var ErrAborted = errors.New("workflow aborted before it finished")

// Model is the Bubbletea model for a single workflow run.
type Model struct {
	Title     string
	Stage     string
	Message   string
	Fraction  float64
	Remaining time.Duration
	StartTime time.Time

	Done   bool
	Result DoneMsg

	// Messages feeds progress and completion from the workflow goroutine.
	Messages chan tea.Msg

	Width int
}

// NewModel creates a model titled after the workflow it follows.
func NewModel(title string) Model {
	return Model{
		Title:     title,
		StartTime: time.Now(),
		Messages:  make(chan tea.Msg, progressBuffer),
	}
}

// Callback returns a task.Callback that feeds events into the model.
func (m Model) Callback() task.Callback {
	return func(event task.Event) {
		m.Messages <- ProgressMsg{Event: event}
	}
}

// Finish hands the workflow outcome to the model.
func (m Model) Finish(done DoneMsg) {
	m.Messages <- done
}

// Outcome is the error the workflow ended with, or ErrAborted when the view
// was quit while the workflow was still running.
func (m Model) Outcome() error {
	if !m.Done {
		return ErrAborted
	}

	return m.Result.Err
}

// Discard drains messages still sent by an abandoned workflow so its
// callbacks never block on a full channel.
func (m Model) Discard() {
	go func() {
		for range m.Messages {
		}
	}()
}

// Init starts listening for workflow messages.
func (m Model) Init() tea.Cmd {
	return waitForMessage(m.Messages)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width

	case ProgressMsg:
		m = applyEvent(m, msg.Event)

		return m, waitForMessage(m.Messages)

	case DoneMsg:
		m.Done = true
		m.Result = msg

		return m, tea.Quit
	}

	return m, nil
}

// View renders the UI.
func (m Model) View() string {
	if m.Done {
		return renderSummary(m)
	}

	return renderProgress(m)
}

// applyEvent never moves the bar backwards.
func applyEvent(m Model, event task.Event) Model {
	if event.Fraction > m.Fraction {
		m.Fraction = event.Fraction
	}

	if event.Stage != "" {
		m.Stage = event.Stage
	}

	if event.Message != "" {
		m.Message = event.Message
	}

	m.Remaining = event.Remaining

	return m
}

func waitForMessage(messages chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-messages
	}
}
