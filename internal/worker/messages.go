package worker

import (
	"github.com/book-expert/events"
)

// GenerationRequest asks the service to run one workflow. Workflow is one of
// "track", "voice", "song" or "enhance"; the other fields apply per workflow.
// InputKey names the object an "enhance" request works on.
type GenerationRequest struct {
	Header          events.EventHeader `json:"header"`
	Workflow        string             `json:"workflow"`
	Prompt          string             `json:"prompt,omitempty"`
	Text            string             `json:"text,omitempty"`
	Genre           string             `json:"genre,omitempty"`
	DurationSeconds int                `json:"duration_seconds,omitempty"`
	VoiceSample     string             `json:"voice_sample,omitempty"`
	Language        string             `json:"language,omitempty"`
	TrackName       string             `json:"track_name,omitempty"`
	Enhance         bool               `json:"enhance,omitempty"`
	InputKey        string             `json:"input_key,omitempty"`
}

// ProgressEvent is published for every progress update of a running workflow.
type ProgressEvent struct {
	Header           events.EventHeader `json:"header"`
	Stage            string             `json:"stage"`
	Fraction         float64            `json:"fraction"`
	RemainingSeconds float64            `json:"remaining_seconds"`
	Message          string             `json:"message"`
	Terminal         bool               `json:"terminal"`
	Error            string             `json:"error,omitempty"`
}

// TrackCreatedEvent is the reply to a GenerationRequest. Error is set and the
// other fields are empty when the workflow failed.
type TrackCreatedEvent struct {
	Header         events.EventHeader `json:"header"`
	Workflow       string             `json:"workflow"`
	TrackKey       string             `json:"track_key,omitempty"`
	Path           string             `json:"path,omitempty"`
	Status         string             `json:"status,omitempty"`
	Report         string             `json:"report,omitempty"`
	ElapsedSeconds float64            `json:"elapsed_seconds,omitempty"`
	Error          string             `json:"error,omitempty"`
}
