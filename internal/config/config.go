// Package config provides configuration loading from environment variables
// for the voice worker and video orchestrator services.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// ErrQueueNameRequired is returned when CONSUMER_QUEUE_NAME is not set and mock mode
// is disabled (for the voice worker, database mode also lifts the requirement).
var ErrQueueNameRequired = errors.New("config: CONSUMER_QUEUE_NAME is required unless USE_MOCK_MODE (or, for the voice worker, USE_DATABASE_MODE) is true")

// Common holds configuration shared by every service in the pipeline.
type Common struct {
	RabbitMQHost     string `env:"RABBITMQ_HOST, default=localhost" json:"rabbitmq_host"`
	RabbitMQPort     int    `env:"RABBITMQ_PORT, default=5672" json:"rabbitmq_port"`
	RabbitMQUser     string `env:"RABBITMQ_USER, default=guest" json:"-"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD, default=guest" json:"-"`
	RabbitMQVHost    string `env:"RABBITMQ_VHOST, default=/" json:"rabbitmq_vhost"`

	PostgresHost     string `env:"POSTGRES_HOST, default=localhost" json:"postgres_host"`
	PostgresPort     int    `env:"POSTGRES_PORT, default=5432" json:"postgres_port"`
	PostgresUser     string `env:"POSTGRES_USER, default=postgres" json:"-"`
	PostgresPassword string `env:"POSTGRES_PASSWORD, default=postgres" json:"-"`
	DatabaseName     string `env:"DATABASE_NAME, default=video_voice_integration" json:"database_name"`

	OutputDir string `env:"OUTPUT_DIR, default=/tmp/pipeline-output" json:"output_dir"`

	LogFile   string `env:"LOG_FILE" json:"log_file,omitempty"`
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`
}

// RabbitMQURL renders the AMQP connection URL for amqp091-go.
func (c *Common) RabbitMQURL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.RabbitMQUser, c.RabbitMQPassword, c.RabbitMQHost, c.RabbitMQPort, c.RabbitMQVHost,
	)
}

// DatabaseDSN renders a libpq-style connection string for pgx.
func (c *Common) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.DatabaseName,
	)
}

// NewLogger creates a structured logger based on LogFormat/LogLevel, optionally
// teeing output to LogFile alongside stdout.
func (c *Common) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var out io.Writer = os.Stdout
	if c.LogFile != "" {
		if f, err := os.OpenFile(c.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			out = io.MultiWriter(os.Stdout, f)
		}
	}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// VoiceWorkerConfig holds configuration for the voice-cloning TTS worker.
type VoiceWorkerConfig struct {
	Common

	ConsumerQueueName string `env:"CONSUMER_QUEUE_NAME" json:"consumer_queue_name,omitempty"`
	UseMockMode       bool   `env:"USE_MOCK_MODE, default=false" json:"use_mock_mode"`
	UseDatabaseMode   bool   `env:"USE_DATABASE_MODE, default=false" json:"use_database_mode"`
	UseLocalStorage   bool   `env:"USE_LOCAL_STORAGE, default=true" json:"use_local_storage"`

	LocalStorageURL    string `env:"LOCAL_STORAGE_URL, default=http://localhost:8088" json:"local_storage_url"`
	VoiceStorageBucket string `env:"VOICE_STORAGE_BUCKET, default=voice-cloning" json:"voice_storage_bucket"`

	SynthesisPoolSize   int `env:"SYNTHESIS_POOL_SIZE, default=1" json:"synthesis_pool_size"`
	DatabasePollSeconds int `env:"DATABASE_POLL_INTERVAL_SEC, default=30" json:"database_poll_interval_sec"`
}

// LoadVoiceWorkerConfig reads voice worker configuration from the environment.
func LoadVoiceWorkerConfig() (*VoiceWorkerConfig, error) {
	cfg := &VoiceWorkerConfig{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.ConsumerQueueName == "" && !cfg.UseMockMode && !cfg.UseDatabaseMode {
		return nil, ErrQueueNameRequired
	}
	return cfg, nil
}

// OrchestratorConfig holds configuration for the video orchestrator.
type OrchestratorConfig struct {
	Common

	ConsumerQueueName string `env:"CONSUMER_QUEUE_NAME" json:"consumer_queue_name,omitempty"`
	UseMockMode       bool   `env:"USE_MOCK_MODE, default=false" json:"use_mock_mode"`

	ScreenshotServiceURL string `env:"SCREENSHOT_SERVICE_URL, default=http://localhost:3000" json:"screenshot_service_url"`
	ImageWidth           int    `env:"SCREENSHOT_IMAGE_WIDTH, default=1920" json:"screenshot_image_width"`
	ImageHeight          int    `env:"SCREENSHOT_IMAGE_HEIGHT, default=800" json:"screenshot_image_height"`

	JobRunnerDispatchURL string `env:"JOB_RUNNER_DISPATCH_URL, default=http://localhost:8090/jobs" json:"job_runner_dispatch_url"`
	BackgroundVideo      string `env:"BACKGROUND_VIDEO_PATH" json:"background_video_path,omitempty"`

	CompletionPollSeconds int `env:"COMPLETION_POLL_INTERVAL_SEC, default=5" json:"completion_poll_interval_sec"`
	MaxWaitSeconds        int `env:"MAX_WAIT_SEC, default=300" json:"max_wait_sec"`

	FPS                  int     `env:"OVERLAY_FPS, default=30" json:"overlay_fps"`
	StartBufferSeconds   float64 `env:"OVERLAY_START_BUFFER_SEC, default=1.0" json:"overlay_start_buffer_sec"`
	EndBufferSeconds     float64 `env:"OVERLAY_END_BUFFER_SEC, default=3.0" json:"overlay_end_buffer_sec"`
	PauseBetweenMessages float64 `env:"OVERLAY_PAUSE_SEC, default=0.5" json:"overlay_pause_sec"`
	MessagesPerGroup     int     `env:"OVERLAY_MESSAGES_PER_GROUP, default=4" json:"overlay_messages_per_group"`
}

// LoadOrchestratorConfig reads orchestrator configuration from the environment.
func LoadOrchestratorConfig() (*OrchestratorConfig, error) {
	cfg := &OrchestratorConfig{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.ConsumerQueueName == "" && !cfg.UseMockMode {
		return nil, ErrQueueNameRequired
	}
	return cfg, nil
}
