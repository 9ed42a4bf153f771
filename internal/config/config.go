// Package config provides the configuration structure for the vibe creator.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"

	"github.com/book-expert/vibe-creator/internal/fsutil"
	"github.com/book-expert/vibe-creator/internal/task"
)

// Speech engine kinds.
const (
	EngineHTTP = "http"
	EngineCLI  = "cli"
)

// ErrInvalidConfig is returned when a loaded configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Error messages.
const (
	errFmtConfigurator   = "failed to load configuration from configurator: %w"
	errFmtReadFile       = "failed to read config file %s: %w"
	errFmtParseFile      = "failed to parse config file %s: %w"
	errFmtInvalid        = "%w: %w"
	errMissingOutputDir  = "paths.output_dir is required"
	errMissingVoiceDir   = "paths.voice_dir is required"
	errFmtUnknownEngine  = "tts.engine must be %q or %q, got %q"
	errMissingTTSURL     = "tts.service_url is required for the http engine"
	errMissingTTSBinary  = "tts.binary_path is required for the cli engine"
	errMissingMusicURL   = "music.service_url is required"
	errCapRatioRange     = "progress.cap_ratio must be in (0, 1)"
	errNonPositiveWorker = "nats.workers must be positive"
	errNonPositiveTime   = "timeouts and poll intervals must be positive"
)

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	OutputDir   string `toml:"output_dir"`
	VoiceDir    string `toml:"voice_dir"`
	BaseLogsDir string `toml:"base_logs_dir"`
}

// ToolsConfig names the external probing and transcoding binaries.
type ToolsConfig struct {
	FFprobePath string `toml:"ffprobe_path"`
	FFmpegPath  string `toml:"ffmpeg_path"`
}

// TTSConfig holds the configuration of the text-to-speech engine.
type TTSConfig struct {
	Engine         string  `toml:"engine"`
	ServiceURL     string  `toml:"service_url"`
	BinaryPath     string  `toml:"binary_path"`
	ModelName      string  `toml:"model_name"`
	Language       string  `toml:"language"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Timeout returns the per-call deadline.
func (c TTSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MusicConfig holds the configuration of the music synthesis service.
type MusicConfig struct {
	ServiceURL     string `toml:"service_url"`
	APIKey         string `toml:"api_key"`
	OutputDir      string `toml:"output_dir"`
	InferenceSteps int    `toml:"inference_steps"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
}

// Timeout returns the deadline of a single HTTP round trip.
func (c MusicConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns how often a submitted task is polled.
func (c MusicConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// ProgressConfig tunes the progress estimates.
type ProgressConfig struct {
	PollIntervalMS        int     `toml:"poll_interval_ms"`
	CapRatio              float64 `toml:"cap_ratio"`
	MusicSecondsPerSecond float64 `toml:"music_seconds_per_second"`
	SpeechSecondsPerChar  float64 `toml:"speech_seconds_per_char"`
	BaseSeconds           float64 `toml:"base_seconds"`
}

// PollInterval returns the progress event cadence.
func (c ProgressConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Estimator converts the configured rates into a duration estimator.
func (c ProgressConfig) Estimator() task.Estimator {
	return task.Estimator{
		Base:           seconds(c.BaseSeconds),
		MusicPerSecond: seconds(c.MusicSecondsPerSecond),
		SpeechPerChar:  seconds(c.SpeechSecondsPerChar),
	}
}

// Runner builds the task runner for these settings.
func (c ProgressConfig) Runner() *task.Runner {
	return task.NewRunner(c.PollInterval(), c.CapRatio)
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL               string `toml:"url"`
	RequestSubject    string `toml:"request_subject"`
	ProgressSubject   string `toml:"progress_subject"`
	TrackBucket       string `toml:"track_bucket"`
	Workers           int    `toml:"workers"`
	JobTimeoutSeconds int    `toml:"job_timeout_seconds"`
}

// JobTimeout returns the deadline handed to a workflow run by the service.
func (c NATSConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

// Config is the root configuration structure.
type Config struct {
	Paths    PathsConfig    `toml:"paths"`
	Tools    ToolsConfig    `toml:"tools"`
	TTS      TTSConfig      `toml:"tts"`
	Music    MusicConfig    `toml:"music"`
	Progress ProgressConfig `toml:"progress"`
	NATS     NATSConfig     `toml:"nats"`
}

// Default returns a configuration that works against local services.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			OutputDir:   "outputs",
			VoiceDir:    "voices",
			BaseLogsDir: "logs",
		},
		Tools: ToolsConfig{
			FFprobePath: "ffprobe",
			FFmpegPath:  "ffmpeg",
		},
		TTS: TTSConfig{
			Engine:         EngineHTTP,
			ServiceURL:     "http://localhost:8000",
			BinaryPath:     "tts",
			ModelName:      "tts_models/multilingual/multi-dataset/xtts_v2",
			Language:       "en",
			Temperature:    0.75,
			TimeoutSeconds: 300,
		},
		Music: MusicConfig{
			ServiceURL:     "http://localhost:8001",
			InferenceSteps: 27,
			TimeoutSeconds: 30,
			PollIntervalMS: 1000,
		},
		Progress: ProgressConfig{
			PollIntervalMS:        int(task.DefaultInterval / time.Millisecond),
			CapRatio:              task.DefaultCapRatio,
			MusicSecondsPerSecond: task.DefaultMusicPerSecond.Seconds(),
			SpeechSecondsPerChar:  task.DefaultSpeechPerChar.Seconds(),
			BaseSeconds:           task.DefaultBase.Seconds(),
		},
		NATS: NATSConfig{
			URL:               "nats://127.0.0.1:4222",
			RequestSubject:    "vibe.generate",
			ProgressSubject:   "vibe.progress",
			TrackBucket:       "VIBE_TRACKS",
			Workers:           2,
			JobTimeoutSeconds: 1800,
		},
	}
}

// Load loads the service configuration through the configurator, on top of the defaults.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Default()

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf(errFmtConfigurator, err)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return &cfg, nil
}

// LoadFile decodes a local TOML file on top of the defaults. An empty path
// returns the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf(errFmtReadFile, path, err)
		}

		err = toml.Unmarshal(data, &cfg)
		if err != nil {
			return nil, fmt.Errorf(errFmtParseFile, path, err)
		}
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return &cfg, nil
}

// Validate reports every unusable value at once.
func (c *Config) Validate() error {
	var problems []error

	if c.Paths.OutputDir == "" {
		problems = append(problems, errors.New(errMissingOutputDir))
	}

	if c.Paths.VoiceDir == "" {
		problems = append(problems, errors.New(errMissingVoiceDir))
	}

	switch c.TTS.Engine {
	case EngineHTTP:
		if c.TTS.ServiceURL == "" {
			problems = append(problems, errors.New(errMissingTTSURL))
		}
	case EngineCLI:
		if c.TTS.BinaryPath == "" {
			problems = append(problems, errors.New(errMissingTTSBinary))
		}
	default:
		problems = append(problems, fmt.Errorf(errFmtUnknownEngine, EngineHTTP, EngineCLI, c.TTS.Engine))
	}

	if c.Music.ServiceURL == "" {
		problems = append(problems, errors.New(errMissingMusicURL))
	}

	if c.Progress.CapRatio <= 0 || c.Progress.CapRatio >= 1 {
		problems = append(problems, errors.New(errCapRatioRange))
	}

	if c.NATS.Workers <= 0 {
		problems = append(problems, errors.New(errNonPositiveWorker))
	}

	if c.TTS.TimeoutSeconds <= 0 || c.Music.TimeoutSeconds <= 0 ||
		c.Music.PollIntervalMS <= 0 || c.Progress.PollIntervalMS <= 0 {
		problems = append(problems, errors.New(errNonPositiveTime))
	}

	if len(problems) > 0 {
		return fmt.Errorf(errFmtInvalid, ErrInvalidConfig, errors.Join(problems...))
	}

	return nil
}

// EnsureDirectories creates the output and voice directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.VoiceDir} {
		err := fsutil.EnsureDir(dir)
		if err != nil {
			return err
		}
	}

	return nil
}

func seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}
