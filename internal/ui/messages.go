package ui

import (
	"github.com/book-expert/vibe-creator/internal/task"
)

// ProgressMsg carries one progress event of the running workflow.
type ProgressMsg struct {
	Event task.Event
}

// DoneMsg reports that the workflow returned.
type DoneMsg struct {
	Path   string
	Status string
	Report string
	Err    error
}
