// Package worker provides a NATS worker that runs generation workflows.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/vibe-creator/internal/config"
	"github.com/book-expert/vibe-creator/internal/core"
	"github.com/book-expert/vibe-creator/internal/fsutil"
	"github.com/book-expert/vibe-creator/internal/pipeline"
	"github.com/book-expert/vibe-creator/internal/task"
)

const (
	defaultWorkers    = 1
	filePermissions   = 0o600
	keySeparator      = "/"
	subjectSeparator  = "."
	drainPollInterval = 10 * time.Millisecond
)

var (
	// ErrUnknownWorkflow indicates a request naming no supported workflow.
	ErrUnknownWorkflow = errors.New("unknown workflow")
	// ErrInputKeyEmpty indicates an enhance request without an input object.
	ErrInputKeyEmpty = errors.New("input key cannot be empty")
	// ErrMissingDependency indicates a worker constructed without a collaborator.
	ErrMissingDependency = errors.New("worker dependency missing")
	// ErrShuttingDown is replied to requests that arrive after shutdown began.
	ErrShuttingDown = errors.New("worker is shutting down")
)

// Log and error formats.
const (
	errFmtSubscribe        = "failed to subscribe to subject %s: %w"
	errFmtDrain            = "failed to drain subscription: %w"
	errFmtUnmarshal        = "failed to unmarshal request: %w"
	errFmtUnknownWorkflow  = "%w: %q"
	errFmtDownloadInput    = "failed to download input '%s': %w"
	errFmtWriteInput       = "failed to stage input '%s': %w"
	errFmtUpload           = "failed to upload track for key '%s': %w"
	errFmtMarshalReply     = "failed to marshal reply event: %w"
	errFmtRespond          = "failed to publish reply event: %w"
	logFmtInvalidRequest   = "Rejected request: %v"
	logFmtWorkflowStarted  = "Workflow %s (%s) started"
	logFmtWorkflowFailed   = "Workflow %s (%s) failed: %v"
	logFmtWorkflowFinished = "Workflow %s (%s) stored as %s"
	logFmtReplyFailed      = "Failed to reply for workflow %s: %v"
	logFmtProgressFailed   = "Failed to publish progress for workflow %s: %v"
)

// TrackStore fetches enhance inputs and stores finished tracks.
type TrackStore interface {
	core.ObjectStore
	UploadFile(ctx context.Context, key, path string) error
}

// Orchestrator runs the workflows a request can ask for.
type Orchestrator interface {
	SoloTrack(ctx context.Context, req pipeline.TrackRequest, callback task.Callback) (*pipeline.Result, error)
	SoloVoice(ctx context.Context, req pipeline.VoiceRequest, callback task.Callback) (*pipeline.Result, error)
	Song(ctx context.Context, req pipeline.SongRequest, callback task.Callback) (*pipeline.Result, error)
	EnhanceFile(ctx context.Context, path string, callback task.Callback) (*pipeline.Result, error)
}

// NatsWorker listens for generation requests and runs each one on its own
// goroutine, at most cfg.Workers at a time.
type NatsWorker struct {
	natsConnection  *nats.Conn
	subject         string
	progressSubject string
	jobTimeout      time.Duration
	inputDir        string
	store           TrackStore
	orchestrator    Orchestrator
	log             *logger.Logger
	workerPool      chan struct{}

	// mu guards closing and every waitGroup.Add.
	mu        sync.Mutex
	closing   bool
	waitGroup sync.WaitGroup
}

// NewNatsWorker creates a worker. inputDir receives objects downloaded for
// enhance requests.
func NewNatsWorker(
	natsConnection *nats.Conn,
	cfg config.NATSConfig,
	inputDir string,
	store TrackStore,
	orchestrator Orchestrator,
	log *logger.Logger,
) (*NatsWorker, error) {
	if natsConnection == nil || store == nil || orchestrator == nil || log == nil {
		return nil, ErrMissingDependency
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &NatsWorker{
		natsConnection:  natsConnection,
		subject:         cfg.RequestSubject,
		progressSubject: cfg.ProgressSubject,
		jobTimeout:      cfg.JobTimeout(),
		inputDir:        inputDir,
		store:           store,
		orchestrator:    orchestrator,
		log:             log,
		workerPool:      make(chan struct{}, workers),
	}, nil
}

// ProgressSubject returns the subject progress of workflowID is published on.
func ProgressSubject(prefix, workflowID string) string {
	return prefix + subjectSeparator + workflowID
}

// Run listens until ctx is cancelled. Requests already delivered to the
// subscription are still accepted; Run returns once every accepted workflow
// has replied.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf(errFmtSubscribe, w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr == nil {
		awaitDrained(sub)
	} else {
		_ = sub.Unsubscribe()
	}

	w.mu.Lock()
	w.closing = true
	w.mu.Unlock()

	w.waitGroup.Wait()

	if drainErr != nil {
		return fmt.Errorf(errFmtDrain, drainErr)
	}

	return nil
}

// awaitDrained blocks until the subscription has delivered its pending
// messages and been removed. Drain itself only starts that process.
func awaitDrained(sub *nats.Subscription) {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for sub.IsValid() {
		<-ticker.C
	}
}

// accept registers one workflow unless shutdown has begun.
func (w *NatsWorker) accept() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closing {
		return false
	}

	w.waitGroup.Add(1)

	return true
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	req, err := parseAndValidateRequest(msg)
	if err != nil {
		w.log.Error(logFmtInvalidRequest, err)
		w.reply(msg, w.failureEvent(req, err))

		return
	}

	if !w.accept() {
		w.reply(msg, w.failureEvent(req, ErrShuttingDown))

		return
	}

	go func() {
		defer w.waitGroup.Done()

		w.workerPool <- struct{}{}

		defer func() { <-w.workerPool }()

		w.reply(msg, w.process(req))
	}()
}

// process runs the workflow and stores its output. It always returns a reply.
func (w *NatsWorker) process(req *GenerationRequest) *TrackCreatedEvent {
	ctx := context.Background()

	if w.jobTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	workflowID := req.Header.WorkflowID
	w.log.Info(logFmtWorkflowStarted, workflowID, req.Workflow)

	result, err := w.runWorkflow(ctx, req, w.progressPublisher(req.Header))
	if err != nil {
		w.log.Error(logFmtWorkflowFailed, workflowID, req.Workflow, err)

		return w.failureEvent(req, err)
	}

	trackKey := workflowID + keySeparator + filepath.Base(result.Path)

	err = w.store.UploadFile(ctx, trackKey, result.Path)
	if err != nil {
		err = fmt.Errorf(errFmtUpload, trackKey, err)
		w.log.Error(logFmtWorkflowFailed, workflowID, req.Workflow, err)

		return w.failureEvent(req, err)
	}

	w.log.Info(logFmtWorkflowFinished, workflowID, req.Workflow, trackKey)

	reply := &TrackCreatedEvent{
		Header:         w.replyHeader(req.Header),
		Workflow:       req.Workflow,
		TrackKey:       trackKey,
		Path:           result.Path,
		Status:         result.Status,
		ElapsedSeconds: result.Elapsed.Seconds(),
	}

	if result.Report != nil {
		reply.Report = result.Report.String()
	}

	return reply
}

func (w *NatsWorker) runWorkflow(ctx context.Context, req *GenerationRequest, callback task.Callback) (*pipeline.Result, error) {
	switch req.Workflow {
	case pipeline.WorkflowTrack:
		return w.orchestrator.SoloTrack(ctx, pipeline.TrackRequest{
			Prompt:          req.Prompt,
			DurationSeconds: req.DurationSeconds,
			Name:            req.TrackName,
			Enhance:         req.Enhance,
		}, callback)
	case pipeline.WorkflowVoice:
		return w.orchestrator.SoloVoice(ctx, pipeline.VoiceRequest{
			Text:        req.Text,
			VoiceSample: req.VoiceSample,
			Language:    req.Language,
			Name:        req.TrackName,
		}, callback)
	case pipeline.WorkflowSong:
		return w.orchestrator.Song(ctx, pipeline.SongRequest{
			Lyrics:          req.Text,
			Genre:           req.Genre,
			DurationSeconds: req.DurationSeconds,
			VoiceSample:     req.VoiceSample,
			Language:        req.Language,
			Name:            req.TrackName,
		}, callback)
	case pipeline.WorkflowEnhance:
		inputPath, err := w.stageInput(ctx, req)
		if err != nil {
			return nil, err
		}

		return w.orchestrator.EnhanceFile(ctx, inputPath, callback)
	default:
		return nil, fmt.Errorf(errFmtUnknownWorkflow, ErrUnknownWorkflow, req.Workflow)
	}
}

// stageInput downloads the object an enhance request names into the input directory.
func (w *NatsWorker) stageInput(ctx context.Context, req *GenerationRequest) (string, error) {
	data, err := w.store.Download(ctx, req.InputKey)
	if err != nil {
		return "", fmt.Errorf(errFmtDownloadInput, req.InputKey, err)
	}

	dir := filepath.Join(w.inputDir, req.Header.WorkflowID)

	err = fsutil.EnsureDir(dir)
	if err != nil {
		return "", fmt.Errorf(errFmtWriteInput, req.InputKey, err)
	}

	path := filepath.Join(dir, filepath.Base(req.InputKey))

	err = os.WriteFile(path, data, filePermissions)
	if err != nil {
		return "", fmt.Errorf(errFmtWriteInput, req.InputKey, err)
	}

	return path, nil
}

// progressPublisher publishes every progress event of one workflow.
func (w *NatsWorker) progressPublisher(header events.EventHeader) task.Callback {
	subject := ProgressSubject(w.progressSubject, header.WorkflowID)

	return func(event task.Event) {
		progress := ProgressEvent{
			Header:           w.replyHeader(header),
			Stage:            event.Stage,
			Fraction:         event.Fraction,
			RemainingSeconds: event.Remaining.Seconds(),
			Message:          event.Message,
			Terminal:         event.Terminal,
		}

		if event.Err != nil {
			progress.Error = event.Err.Error()
		}

		data, err := json.Marshal(progress)
		if err == nil {
			err = w.natsConnection.Publish(subject, data)
		}

		if err != nil {
			w.log.Warn(logFmtProgressFailed, header.WorkflowID, err)
		}
	}
}

func (w *NatsWorker) failureEvent(req *GenerationRequest, err error) *TrackCreatedEvent {
	reply := &TrackCreatedEvent{Error: err.Error()}

	if req != nil {
		reply.Header = w.replyHeader(req.Header)
		reply.Workflow = req.Workflow
	}

	return reply
}

// replyHeader keeps the workflow identity and stamps a new event.
func (w *NatsWorker) replyHeader(header events.EventHeader) events.EventHeader {
	header.Timestamp = time.Now()
	header.EventID = uuid.NewString()

	return header
}

func (w *NatsWorker) reply(msg *nats.Msg, replyEvent *TrackCreatedEvent) {
	err := publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error(logFmtReplyFailed, replyEvent.Header.WorkflowID, err)
	}
}

// publishReplyEvent marshals and responds with the reply event.
func publishReplyEvent(msg *nats.Msg, replyEvent *TrackCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf(errFmtMarshalReply, err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf(errFmtRespond, err)
	}

	return nil
}

// parseAndValidateRequest decodes the request and rejects what no workflow can
// serve. A missing workflow ID is assigned here so progress has a subject.
func parseAndValidateRequest(msg *nats.Msg) (*GenerationRequest, error) {
	var req GenerationRequest

	err := json.Unmarshal(msg.Data, &req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, fmt.Errorf(errFmtUnmarshal, err))
	}

	if req.Header.WorkflowID == "" {
		req.Header.WorkflowID = uuid.NewString()
	}

	switch req.Workflow {
	case pipeline.WorkflowTrack, pipeline.WorkflowVoice, pipeline.WorkflowSong:
	case pipeline.WorkflowEnhance:
		if req.InputKey == "" {
			return &req, fmt.Errorf("%w: %w", core.ErrValidation, ErrInputKeyEmpty)
		}
	default:
		return &req, fmt.Errorf("%w: %w", core.ErrValidation, fmt.Errorf(errFmtUnknownWorkflow, ErrUnknownWorkflow, req.Workflow))
	}

	return &req, nil
}
