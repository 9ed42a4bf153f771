// Package music implements the music synthesis engine as a client of a
// submit-and-poll generation service.
package music

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/vibe-creator/internal/audio"
	"github.com/book-expert/vibe-creator/internal/config"
	"github.com/book-expert/vibe-creator/internal/core"
)

// API endpoints and protocol values.
const (
	apiReleaseTask = "/release_task"
	apiQueryResult = "/query_result"
	apiHealth      = "/health"

	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
	bearerPrefix        = "Bearer "

	codeOK          = 200
	audioFormatWAV  = "wav"
	batchSize       = 1
	randomSeed      = -1
	maxPollFailures = 5
	pathQueryKey    = "path"
)

// Task status values reported by the service.
const (
	statusRunning = 0
	statusSuccess = 1
	statusFailed  = 2
)

// Static errors.
var (
	ErrPromptEmpty     = errors.New("prompt cannot be empty")
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrTaskFailed      = errors.New("generation task failed")
	ErrNoAudio         = errors.New("no audio file in result")
	ErrAPI             = errors.New("music service error")
)

// Log and error formats.
const (
	errFmtMarshal       = "failed to marshal request: %w"
	errFmtCreateRequest = "failed to create request: %w"
	errFmtSubmit        = "failed to submit task to %s: %w"
	errFmtDecode        = "failed to decode response: %w"
	errFmtAPI           = "%w (code %d): %s"
	errFmtTask          = "%w: task %s"
	errFmtPollGaveUp    = "giving up on task %s after %d failed polls: %w"
	errFmtParseResult   = "failed to parse task result: %w"
	errFmtDownload      = "failed to download %s: %w"
	errFmtDownloadCode  = "%w: download of %s returned %s"
	errFmtDecodeAudio   = "failed to decode audio %s: %w"
	errFmtCompose       = "%w: %w"
	logFmtSubmitted     = "Submitted music task %s (%ds, %d steps)"
	logFmtPollRetry     = "Poll of task %s failed (%d/%d): %v"
	logFmtTaskDone      = "Music task %s finished with %d file(s)"
	logFmtSharedVolume  = "Reading %s from shared volume"
)

// GenerateRequest is the payload of a task submission.
type GenerateRequest struct {
	Caption        string `json:"caption"`
	Lyrics         string `json:"lyrics"`
	Duration       int    `json:"audio_duration"`
	InferenceSteps int    `json:"inference_steps"`
	Seed           int    `json:"seed"`
	BatchSize      int    `json:"batch_size"`
	AudioFormat    string `json:"audio_format"`
}

type releaseResponse struct {
	Data struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
	Code  int    `json:"code"`
	Error string `json:"error"`
}

type queryRequest struct {
	TaskIDList []string `json:"task_id_list"`
}

type queryResponse struct {
	Data []taskResult `json:"data"`
	Code int          `json:"code"`
}

type taskResult struct {
	TaskID string `json:"task_id"`
	Status int    `json:"status"`
	// Result is a JSON-encoded list of resultItem.
	Result string `json:"result"`
}

type resultItem struct {
	File   string `json:"file"`
	Status int    `json:"status"`
}

// Client submits music tasks, polls them and decodes the produced audio.
type Client struct {
	apiURL         string
	apiKey         string
	outputDir      string
	inferenceSteps int
	pollInterval   time.Duration
	http           *http.Client
	log            *logger.Logger
}

// NewClient creates a client for the service configured in cfg.
// cfg.OutputDir is the service's output volume when it is mounted locally.
func NewClient(cfg config.MusicConfig, log *logger.Logger) *Client {
	return &Client{
		apiURL:         cfg.ServiceURL,
		apiKey:         cfg.APIKey,
		outputDir:      cfg.OutputDir,
		inferenceSteps: cfg.InferenceSteps,
		pollInterval:   cfg.PollInterval(),
		http:           &http.Client{Timeout: cfg.Timeout()},
		log:            log,
	}
}

// Compose generates music for req and returns the decoded buffers.
func (c *Client) Compose(ctx context.Context, req core.MusicRequest) ([]*core.AudioBuffer, error) {
	if req.Prompt == "" {
		return nil, ErrPromptEmpty
	}

	if req.DurationSeconds <= 0 {
		return nil, ErrInvalidDuration
	}

	taskID, err := c.Submit(ctx, GenerateRequest{
		Caption:        req.Prompt,
		Duration:       req.DurationSeconds,
		InferenceSteps: c.inferenceSteps,
		Seed:           randomSeed,
		BatchSize:      batchSize,
		AudioFormat:    audioFormatWAV,
	})
	if err != nil {
		return nil, fmt.Errorf(errFmtCompose, core.ErrSynthesis, err)
	}

	files, err := c.PollUntilDone(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf(errFmtCompose, core.ErrSynthesis, err)
	}

	buffers := make([]*core.AudioBuffer, 0, len(files))

	for _, fileRef := range files {
		buf, fetchErr := c.fetchAudio(ctx, fileRef)
		if fetchErr != nil {
			return nil, fmt.Errorf(errFmtCompose, core.ErrSynthesis, fetchErr)
		}

		buffers = append(buffers, buf)
	}

	c.log.Info(logFmtTaskDone, taskID, len(buffers))

	return buffers, nil
}

// Submit queues a generation task and returns its ID.
func (c *Client) Submit(ctx context.Context, req GenerateRequest) (string, error) {
	var result releaseResponse

	err := c.postJSON(ctx, apiReleaseTask, req, &result)
	if err != nil {
		return "", fmt.Errorf(errFmtSubmit, c.apiURL, err)
	}

	if result.Code != codeOK {
		return "", fmt.Errorf(errFmtAPI, ErrAPI, result.Code, result.Error)
	}

	c.log.Info(logFmtSubmitted, result.Data.TaskID, req.Duration, req.InferenceSteps)

	return result.Data.TaskID, nil
}

// PollUntilDone waits for the task to finish and returns its file references.
// Transient poll failures are retried; ctx bounds the wait.
func (c *Client) PollUntilDone(ctx context.Context, taskID string) ([]string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	failures := 0

	for {
		task, err := c.query(ctx, taskID)

		switch {
		case err != nil:
			failures++
			c.log.Warn(logFmtPollRetry, taskID, failures, maxPollFailures, err)

			if failures >= maxPollFailures {
				return nil, fmt.Errorf(errFmtPollGaveUp, taskID, failures, err)
			}
		case task.Status == statusSuccess:
			return parseResultFiles(task.Result)
		case task.Status == statusFailed:
			return nil, fmt.Errorf(errFmtTask, ErrTaskFailed, taskID)
		default:
			failures = 0
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// HealthCheck returns nil when the service answers its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf(errFmtCreateRequest, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf(errFmtSubmit, c.apiURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(errFmtAPI, ErrAPI, resp.StatusCode, resp.Status)
	}

	return nil
}

func (c *Client) query(ctx context.Context, taskID string) (*taskResult, error) {
	var result queryResponse

	err := c.postJSON(ctx, apiQueryResult, queryRequest{TaskIDList: []string{taskID}}, &result)
	if err != nil {
		return nil, err
	}

	if len(result.Data) == 0 {
		return &taskResult{TaskID: taskID, Status: statusRunning}, nil
	}

	return &result.Data[0], nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf(errFmtMarshal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf(errFmtCreateRequest, err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)

	if c.apiKey != "" {
		req.Header.Set(headerAuthorization, bearerPrefix+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	err = json.NewDecoder(resp.Body).Decode(target)
	if err != nil {
		return fmt.Errorf(errFmtDecode, err)
	}

	return nil
}

// fetchAudio reads a produced file from the shared volume when it is mounted,
// otherwise downloads it.
func (c *Client) fetchAudio(ctx context.Context, fileRef string) (*core.AudioBuffer, error) {
	localPath := c.sharedVolumePath(fileRef)
	if localPath != "" {
		c.log.Info(logFmtSharedVolume, localPath)

		buf, err := audio.Decode(localPath)
		if err != nil {
			return nil, fmt.Errorf(errFmtDecodeAudio, fileRef, err)
		}

		return buf, nil
	}

	data, err := c.download(ctx, fileRef)
	if err != nil {
		return nil, err
	}

	buf, err := audio.DecodeReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf(errFmtDecodeAudio, fileRef, err)
	}

	return buf, nil
}

// sharedVolumePath resolves references like "/v1/audio?path=outputs/x/0.wav"
// against the local output directory. It returns "" when the file is not there.
func (c *Client) sharedVolumePath(fileRef string) string {
	if c.outputDir == "" {
		return ""
	}

	parsed, err := url.Parse(fileRef)
	if err != nil {
		return ""
	}

	relPath := parsed.Query().Get(pathQueryKey)
	if relPath == "" {
		return ""
	}

	localPath := filepath.Join(c.outputDir, filepath.Clean("/"+relPath))

	_, statErr := os.Stat(localPath)
	if statErr != nil {
		return ""
	}

	return localPath
}

func (c *Client) download(ctx context.Context, fileRef string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+fileRef, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf(errFmtCreateRequest, err)
	}

	if c.apiKey != "" {
		req.Header.Set(headerAuthorization, bearerPrefix+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf(errFmtDownload, fileRef, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(errFmtDownloadCode, ErrAPI, fileRef, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf(errFmtDownload, fileRef, err)
	}

	return data, nil
}

func parseResultFiles(resultJSON string) ([]string, error) {
	var items []resultItem

	err := json.Unmarshal([]byte(resultJSON), &items)
	if err != nil {
		return nil, fmt.Errorf(errFmtParseResult, err)
	}

	files := make([]string, 0, len(items))

	for _, item := range items {
		if item.File != "" {
			files = append(files, item.File)
		}
	}

	if len(files) == 0 {
		return nil, ErrNoAudio
	}

	return files, nil
}
