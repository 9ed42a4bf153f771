package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/vibe-creator/internal/config"
	"github.com/book-expert/vibe-creator/internal/pipeline"
	"github.com/book-expert/vibe-creator/internal/task"
	"github.com/book-expert/vibe-creator/internal/worker"
)

const (
	requestSubject  = "test.generate"
	progressSubject = "test.progress"
	requestTimeout  = 5 * time.Second
)

var (
	errMockDownload = errors.New("mock download error")
	errMockUpload   = errors.New("mock upload error")
	errMockWorkflow = errors.New("mock workflow error")
)

type mockObjectStore struct {
	mu                 sync.Mutex
	downloadShouldFail bool
	uploadShouldFail   bool
	downloadedKey      string
	uploadedKey        string
	uploadedData       []byte
}

func (m *mockObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.downloadShouldFail {
		return nil, errMockDownload
	}

	m.downloadedKey = key

	return []byte("source audio"), nil
}

func (m *mockObjectStore) Upload(_ context.Context, key string, data io.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.uploadShouldFail {
		return errMockUpload
	}

	payload, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	m.uploadedKey = key
	m.uploadedData = payload

	return nil
}

func (m *mockObjectStore) UploadFile(ctx context.Context, key, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return m.Upload(ctx, key, file)
}

func (m *mockObjectStore) uploaded() (string, []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.uploadedKey, m.uploadedData
}

// mockOrchestrator writes a small file per workflow and reports two progress events.
type mockOrchestrator struct {
	mu         sync.Mutex
	outputDir  string
	shouldFail bool
	delay      time.Duration
	track      pipeline.TrackRequest
	song       pipeline.SongRequest
	enhanced   string
	started    atomic.Int32
	finished   atomic.Int32
}

func (m *mockOrchestrator) finish(workflow, name string, callback task.Callback) (*pipeline.Result, error) {
	m.started.Add(1)
	defer m.finished.Add(1)

	callback(task.Event{Stage: "work", Fraction: 0.5, Message: "working"})

	m.mu.Lock()
	shouldFail := m.shouldFail
	delay := m.delay
	m.mu.Unlock()

	time.Sleep(delay)

	if shouldFail {
		callback(task.Event{Stage: "work", Fraction: 0.5, Terminal: true, Err: errMockWorkflow})

		return nil, errMockWorkflow
	}

	path := filepath.Join(m.outputDir, name)

	err := os.WriteFile(path, []byte("audio:"+workflow), 0o600)
	if err != nil {
		return nil, err
	}

	callback(task.Event{Stage: "done", Fraction: 1, Terminal: true, Message: "finished"})

	return &pipeline.Result{Workflow: workflow, Path: path, Status: "ok", Elapsed: time.Second}, nil
}

func (m *mockOrchestrator) SoloTrack(_ context.Context, req pipeline.TrackRequest, callback task.Callback) (*pipeline.Result, error) {
	m.mu.Lock()
	m.track = req
	m.mu.Unlock()

	return m.finish(pipeline.WorkflowTrack, "track.wav", callback)
}

func (m *mockOrchestrator) SoloVoice(_ context.Context, _ pipeline.VoiceRequest, callback task.Callback) (*pipeline.Result, error) {
	return m.finish(pipeline.WorkflowVoice, "voice.wav", callback)
}

func (m *mockOrchestrator) Song(_ context.Context, req pipeline.SongRequest, callback task.Callback) (*pipeline.Result, error) {
	m.mu.Lock()
	m.song = req
	m.mu.Unlock()

	return m.finish(pipeline.WorkflowSong, "song.wav", callback)
}

func (m *mockOrchestrator) EnhanceFile(_ context.Context, path string, callback task.Callback) (*pipeline.Result, error) {
	m.mu.Lock()
	m.enhanced = path
	m.mu.Unlock()

	return m.finish(pipeline.WorkflowEnhance, "enhanced.wav", callback)
}

type harness struct {
	store        *mockObjectStore
	orchestrator *mockOrchestrator
	conn         *nats.Conn
	inputDir     string
	cancel       context.CancelFunc
	runErr       chan error
}

func createTestNatsClient(t *testing.T) (*nats.Conn, *server.Server) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)

	t.Cleanup(func() {
		natsConnection.Close()
		natsServer.Shutdown()
	})

	return natsConnection, natsServer
}

func setupTest(t *testing.T) *harness {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	natsConnection, natsServer := createTestNatsClient(t)

	h := &harness{
		store:        &mockObjectStore{},
		orchestrator: &mockOrchestrator{outputDir: t.TempDir()},
		conn:         natsConnection,
		inputDir:     t.TempDir(),
		runErr:       make(chan error, 1),
	}

	cfg := config.NATSConfig{
		RequestSubject:    requestSubject,
		ProgressSubject:   progressSubject,
		Workers:           2,
		JobTimeoutSeconds: 10,
	}

	workerInstance, err := worker.NewNatsWorker(h.conn, cfg, h.inputDir, h.store, h.orchestrator, testLogger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	go func() {
		h.runErr <- workerInstance.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return natsServer.GlobalAccount().SubscriptionInterest(requestSubject)
	}, requestTimeout, 10*time.Millisecond, "worker never subscribed")

	return h
}

func (h *harness) stop(t *testing.T) {
	t.Helper()

	h.cancel()

	select {
	case err := <-h.runErr:
		assert.NoError(t, err, "worker.Run should not error on graceful shutdown")
	case <-time.After(requestTimeout):
		t.Fatal("worker did not shut down")
	}
}

func (h *harness) request(t *testing.T, req worker.GenerationRequest) worker.TrackCreatedEvent {
	t.Helper()

	data, err := json.Marshal(req)
	require.NoError(t, err)

	replyMsg, err := h.conn.Request(requestSubject, data, requestTimeout)
	require.NoError(t, err, "Request should succeed and receive a reply")

	var reply worker.TrackCreatedEvent

	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))

	return reply
}

func newHeader() events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     "user-1",
		TenantID:   "tenant-1",
	}
}

func TestWorker_TrackWorkflowStoresResultAndPublishesProgress(t *testing.T) {
	t.Parallel()

	h := setupTest(t)
	header := newHeader()

	progressSub, err := h.conn.SubscribeSync(worker.ProgressSubject(progressSubject, header.WorkflowID))
	require.NoError(t, err)
	require.NoError(t, h.conn.Flush())

	reply := h.request(t, worker.GenerationRequest{
		Header:          header,
		Workflow:        pipeline.WorkflowTrack,
		Prompt:          "lofi beat",
		DurationSeconds: 30,
		TrackName:       "chill",
		Enhance:         true,
	})

	require.Empty(t, reply.Error)
	assert.Equal(t, header.WorkflowID, reply.Header.WorkflowID)
	assert.Equal(t, header.TenantID, reply.Header.TenantID)
	assert.NotEqual(t, header.EventID, reply.Header.EventID)
	assert.Equal(t, header.WorkflowID+"/track.wav", reply.TrackKey)
	assert.Equal(t, "ok", reply.Status)
	assert.InDelta(t, 1.0, reply.ElapsedSeconds, 1e-9)

	uploadedKey, uploadedData := h.store.uploaded()
	assert.Equal(t, reply.TrackKey, uploadedKey)
	assert.Equal(t, []byte("audio:track"), uploadedData)

	h.orchestrator.mu.Lock()
	assert.Equal(t, "lofi beat", h.orchestrator.track.Prompt)
	assert.Equal(t, 30, h.orchestrator.track.DurationSeconds)
	assert.True(t, h.orchestrator.track.Enhance)
	h.orchestrator.mu.Unlock()

	var progress []worker.ProgressEvent

	for range 2 {
		msg, nextErr := progressSub.NextMsg(requestTimeout)
		require.NoError(t, nextErr)

		var event worker.ProgressEvent

		require.NoError(t, json.Unmarshal(msg.Data, &event))
		progress = append(progress, event)
	}

	assert.False(t, progress[0].Terminal)
	assert.InDelta(t, 0.5, progress[0].Fraction, 1e-9)
	assert.True(t, progress[1].Terminal)
	assert.Equal(t, "finished", progress[1].Message)

	h.stop(t)
}

func TestWorker_SongMapsLyricsFromText(t *testing.T) {
	t.Parallel()

	h := setupTest(t)

	reply := h.request(t, worker.GenerationRequest{
		Header:          newHeader(),
		Workflow:        pipeline.WorkflowSong,
		Text:            "la la la",
		Genre:           "synthpop",
		DurationSeconds: 20,
		VoiceSample:     "singer.wav",
	})

	require.Empty(t, reply.Error)
	assert.Equal(t, pipeline.WorkflowSong, reply.Workflow)

	h.orchestrator.mu.Lock()
	assert.Equal(t, "la la la", h.orchestrator.song.Lyrics)
	assert.Equal(t, "synthpop", h.orchestrator.song.Genre)
	assert.Equal(t, "singer.wav", h.orchestrator.song.VoiceSample)
	h.orchestrator.mu.Unlock()

	h.stop(t)
}

func TestWorker_EnhanceDownloadsInputFirst(t *testing.T) {
	t.Parallel()

	h := setupTest(t)
	header := newHeader()

	reply := h.request(t, worker.GenerationRequest{
		Header:   header,
		Workflow: pipeline.WorkflowEnhance,
		InputKey: "uploads/song.mp3",
	})

	require.Empty(t, reply.Error)

	h.store.mu.Lock()
	assert.Equal(t, "uploads/song.mp3", h.store.downloadedKey)
	h.store.mu.Unlock()

	h.orchestrator.mu.Lock()
	staged := h.orchestrator.enhanced
	h.orchestrator.mu.Unlock()

	assert.Equal(t, filepath.Join(h.inputDir, header.WorkflowID, "song.mp3"), staged)

	data, err := os.ReadFile(staged)
	require.NoError(t, err)
	assert.Equal(t, []byte("source audio"), data)

	h.stop(t)
}

func TestWorker_AssignsMissingWorkflowID(t *testing.T) {
	t.Parallel()

	h := setupTest(t)

	reply := h.request(t, worker.GenerationRequest{Workflow: pipeline.WorkflowVoice, Text: "hello"})

	require.Empty(t, reply.Error)
	require.NotEmpty(t, reply.Header.WorkflowID)
	assert.Equal(t, reply.Header.WorkflowID+"/voice.wav", reply.TrackKey)

	h.stop(t)
}

func TestWorker_Failures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		request     worker.GenerationRequest
		prepare     func(h *harness)
		errContains string
	}{
		{
			name:        "unknown workflow",
			request:     worker.GenerationRequest{Workflow: "podcast"},
			errContains: "unknown workflow",
		},
		{
			name:        "enhance without input key",
			request:     worker.GenerationRequest{Workflow: pipeline.WorkflowEnhance},
			errContains: "input key cannot be empty",
		},
		{
			name:    "workflow error",
			request: worker.GenerationRequest{Workflow: pipeline.WorkflowTrack, Prompt: "x"},
			prepare: func(h *harness) {
				h.orchestrator.mu.Lock()
				h.orchestrator.shouldFail = true
				h.orchestrator.mu.Unlock()
			},
			errContains: errMockWorkflow.Error(),
		},
		{
			name:    "download error",
			request: worker.GenerationRequest{Workflow: pipeline.WorkflowEnhance, InputKey: "in.wav"},
			prepare: func(h *harness) {
				h.store.mu.Lock()
				h.store.downloadShouldFail = true
				h.store.mu.Unlock()
			},
			errContains: errMockDownload.Error(),
		},
		{
			name:    "upload error",
			request: worker.GenerationRequest{Workflow: pipeline.WorkflowVoice, Text: "hi"},
			prepare: func(h *harness) {
				h.store.mu.Lock()
				h.store.uploadShouldFail = true
				h.store.mu.Unlock()
			},
			errContains: errMockUpload.Error(),
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			h := setupTest(t)

			if testCase.prepare != nil {
				testCase.prepare(h)
			}

			testCase.request.Header = newHeader()

			reply := h.request(t, testCase.request)

			assert.Contains(t, reply.Error, testCase.errContains)
			assert.Empty(t, reply.TrackKey)
			assert.Equal(t, testCase.request.Header.WorkflowID, reply.Header.WorkflowID)

			h.stop(t)
		})
	}
}

func TestWorker_ShutdownRepliesToEveryAcceptedRequest(t *testing.T) {
	t.Parallel()

	const burst = 50

	h := setupTest(t)

	h.orchestrator.mu.Lock()
	h.orchestrator.delay = 10 * time.Millisecond
	h.orchestrator.mu.Unlock()

	inbox := nats.NewInbox()
	replies, err := h.conn.SubscribeSync(inbox)
	require.NoError(t, err)

	for i := range burst {
		data, marshalErr := json.Marshal(worker.GenerationRequest{
			Header:   newHeader(),
			Workflow: pipeline.WorkflowTrack,
			Prompt:   fmt.Sprintf("beat %d", i),
		})
		require.NoError(t, marshalErr)
		require.NoError(t, h.conn.PublishRequest(requestSubject, inbox, data))
	}

	require.NoError(t, h.conn.Flush())

	h.cancel()

	select {
	case runErr := <-h.runErr:
		require.NoError(t, runErr)
	case <-time.After(30 * time.Second):
		t.Fatal("worker did not shut down")
	}

	assert.Equal(t, h.orchestrator.started.Load(), h.orchestrator.finished.Load(),
		"no workflow may still be running after Run returns")

	received, rejected := 0, 0

	for {
		msg, nextErr := replies.NextMsg(time.Second)
		if nextErr != nil {
			break
		}

		var reply worker.TrackCreatedEvent

		require.NoError(t, json.Unmarshal(msg.Data, &reply))

		if reply.Error != "" {
			assert.Contains(t, reply.Error, worker.ErrShuttingDown.Error())

			rejected++
		}

		received++
	}

	assert.Equal(t, burst, received)
	assert.Equal(t, burst, int(h.orchestrator.started.Load())+rejected)
}

func TestWorker_MalformedRequest(t *testing.T) {
	t.Parallel()

	h := setupTest(t)

	replyMsg, err := h.conn.Request(requestSubject, []byte("{not json"), requestTimeout)
	require.NoError(t, err)

	var reply worker.TrackCreatedEvent

	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))
	assert.Contains(t, reply.Error, "failed to unmarshal request")

	h.stop(t)
}

func TestNewNatsWorker_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := worker.NewNatsWorker(nil, config.NATSConfig{}, "", &mockObjectStore{}, &mockOrchestrator{}, nil)

	require.ErrorIs(t, err, worker.ErrMissingDependency)
}
