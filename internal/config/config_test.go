package config

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearQueueEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONSUMER_QUEUE_NAME", "USE_MOCK_MODE", "USE_DATABASE_MODE",
		"LOG_FORMAT", "LOG_LEVEL",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadVoiceWorkerConfig_RequiresQueueNameUnlessMockOrDatabase(t *testing.T) {
	clearQueueEnv(t)

	t.Run("missing queue name and modes returns error", func(t *testing.T) {
		_, err := LoadVoiceWorkerConfig()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrQueueNameRequired)
	})

	t.Run("mock mode bypasses queue name requirement", func(t *testing.T) {
		t.Setenv("USE_MOCK_MODE", "true")
		cfg, err := LoadVoiceWorkerConfig()
		require.NoError(t, err)
		assert.True(t, cfg.UseMockMode)
	})

	t.Run("database mode bypasses queue name requirement", func(t *testing.T) {
		t.Setenv("USE_DATABASE_MODE", "true")
		cfg, err := LoadVoiceWorkerConfig()
		require.NoError(t, err)
		assert.True(t, cfg.UseDatabaseMode)
	})

	t.Run("queue name present succeeds", func(t *testing.T) {
		t.Setenv("CONSUMER_QUEUE_NAME", "voice-cloning-queue-1")
		cfg, err := LoadVoiceWorkerConfig()
		require.NoError(t, err)
		assert.Equal(t, "voice-cloning-queue-1", cfg.ConsumerQueueName)
	})
}

func TestLoadVoiceWorkerConfig_Defaults(t *testing.T) {
	clearQueueEnv(t)
	t.Setenv("USE_MOCK_MODE", "true")

	cfg, err := LoadVoiceWorkerConfig()
	require.NoError(t, err)

	assert.True(t, cfg.UseLocalStorage)
	assert.Equal(t, "voice-cloning", cfg.VoiceStorageBucket)
	assert.Equal(t, 1, cfg.SynthesisPoolSize)
	assert.Equal(t, 30, cfg.DatabasePollSeconds)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOrchestratorConfig_RequiresQueueNameUnlessMock(t *testing.T) {
	clearQueueEnv(t)

	_, err := LoadOrchestratorConfig()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueNameRequired)

	t.Setenv("USE_MOCK_MODE", "true")
	cfg, err := LoadOrchestratorConfig()
	require.NoError(t, err)
	assert.True(t, cfg.UseMockMode)
}

func TestLoadOrchestratorConfig_Defaults(t *testing.T) {
	clearQueueEnv(t)
	t.Setenv("USE_MOCK_MODE", "true")

	cfg, err := LoadOrchestratorConfig()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.FPS)
	assert.InDelta(t, 1.0, cfg.StartBufferSeconds, 0.0001)
	assert.InDelta(t, 3.0, cfg.EndBufferSeconds, 0.0001)
	assert.InDelta(t, 0.5, cfg.PauseBetweenMessages, 0.0001)
	assert.Equal(t, 4, cfg.MessagesPerGroup)
	assert.Equal(t, 300, cfg.MaxWaitSeconds)
}

func TestCommon_RabbitMQURL(t *testing.T) {
	c := &Common{
		RabbitMQHost: "broker", RabbitMQPort: 5672,
		RabbitMQUser: "u", RabbitMQPassword: "p", RabbitMQVHost: "/vh",
	}
	assert.Equal(t, "amqp://u:p@broker:5672/vh", c.RabbitMQURL())
}

func TestCommon_DatabaseDSN(t *testing.T) {
	c := &Common{
		PostgresHost: "db", PostgresPort: 5432,
		PostgresUser: "pg", PostgresPassword: "pw", DatabaseName: "voices",
	}
	assert.Equal(t, "postgres://pg:pw@db:5432/voices", c.DatabaseDSN())
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestCommon_NewLogger(t *testing.T) {
	c := &Common{LogFormat: "json", LogLevel: "info"}
	logger := c.NewLogger()
	require.NotNil(t, logger)

	c2 := &Common{LogFormat: "text", LogLevel: "debug"}
	logger2 := c2.NewLogger()
	require.NotNil(t, logger2)
}
