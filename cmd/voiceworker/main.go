// Command voiceworker is the voice-cloning TTS worker process: a
// single-job, short-lived service that consumes exactly one VoiceJob (or,
// in USE_DATABASE_MODE, loops over pending_voices() directly) and exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ragnarcb/chatclip/internal/bootstrap"
	"github.com/ragnarcb/chatclip/internal/config"
	"github.com/ragnarcb/chatclip/internal/queueconsumer"
	"github.com/ragnarcb/chatclip/internal/tts"
	"github.com/ragnarcb/chatclip/internal/voicejob"
	"github.com/ragnarcb/chatclip/internal/voiceworker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadVoiceWorkerConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting voiceworker",
		slog.Bool("use_mock_mode", cfg.UseMockMode),
		slog.Bool("use_database_mode", cfg.UseDatabaseMode),
		slog.Bool("use_local_storage", cfg.UseLocalStorage),
		slog.Int("synthesis_pool_size", cfg.SynthesisPoolSize),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.NewDependencies(ctx, cfg.DatabaseDSN(), logger)
	if err != nil {
		return err
	}
	defer deps.Pool.Close()

	ttsClient := buildTTSClient()
	storageBackend, err := bootstrap.NewStorageBackend(ctx, bootstrap.StorageConfig{
		UseLocal:    cfg.UseLocalStorage,
		LocalDir:    cfg.OutputDir,
		HTTPBaseURL: cfg.LocalStorageURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("build storage backend: %w", err)
	}

	worker := voiceworker.New(deps.Gateway, ttsClient, storageBackend, logger, voiceworker.Config{
		UseLocalStorage:     cfg.UseLocalStorage,
		VoiceStorageBucket:  cfg.VoiceStorageBucket,
		OutputDir:           cfg.OutputDir,
		SynthesisPoolSize:   cfg.SynthesisPoolSize,
		DatabasePollSeconds: cfg.DatabasePollSeconds,
	})

	if cfg.UseDatabaseMode {
		logger.Info("entering database polling mode", slog.Int("poll_interval_sec", cfg.DatabasePollSeconds))
		err := worker.RunContinuous(ctx)
		if errors.Is(err, context.Canceled) {
			logger.Info("shutdown signal received, exiting")
			return nil
		}
		return err
	}

	var source queueconsumer.Source
	if cfg.UseMockMode {
		source = queueconsumer.NewMockSource(cfg.ConsumerQueueName)
	} else {
		source = queueconsumer.NewBroker(queueconsumer.BrokerConfig{
			Host:      cfg.RabbitMQHost,
			Port:      cfg.RabbitMQPort,
			User:      cfg.RabbitMQUser,
			Password:  cfg.RabbitMQPassword,
			VHost:     cfg.RabbitMQVHost,
			QueueName: cfg.ConsumerQueueName,
		})
	}

	consumer := queueconsumer.New(source)
	msg, err := consumer.Run()
	if err != nil {
		return fmt.Errorf("consume queue: %w", err)
	}
	if msg == nil {
		logger.Info("no usable message available, exiting")
		return nil
	}

	job, err := voicejob.ParseVoiceJob(msg.Body)
	if err != nil {
		logger.Error("malformed voice job payload", slog.String("error", err.Error()))
		return nil
	}

	if err := worker.ProcessJob(ctx, job); err != nil {
		if errors.Is(err, voiceworker.ErrAnyVoiceFailed) {
			logger.Error("one or more voice rows failed", slog.String("video_id", job.VideoID))
			return err
		}
		return fmt.Errorf("process voice job: %w", err)
	}

	logger.Info("voice job completed", slog.String("video_id", job.VideoID))
	return nil
}

func buildTTSClient() tts.Client {
	if url := os.Getenv("TTS_SERVICE_URL"); url != "" {
		client, err := tts.NewHTTPClient(url, tts.WithAPIKey(os.Getenv("TTS_API_KEY")))
		if err == nil {
			return client
		}
	}
	return tts.NewLocalClient(os.Getenv("TTS_ENGINE_BIN"), 0)
}

