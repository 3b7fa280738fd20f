// Command orchestrator is the video orchestrator process: a single-job,
// short-lived service that consumes one transcript request off its queue
// (or the built-in mock fixture), drives the full pipeline implemented in
// package internal/orchestrator, and exits once the muxed video is written.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ragnarcb/chatclip/internal/audioprobe"
	"github.com/ragnarcb/chatclip/internal/bootstrap"
	"github.com/ragnarcb/chatclip/internal/config"
	"github.com/ragnarcb/chatclip/internal/mux"
	"github.com/ragnarcb/chatclip/internal/orchestrator"
	"github.com/ragnarcb/chatclip/internal/overlay"
	"github.com/ragnarcb/chatclip/internal/queueconsumer"
	"github.com/ragnarcb/chatclip/internal/screenshot"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadOrchestratorConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting orchestrator",
		slog.Bool("use_mock_mode", cfg.UseMockMode),
		slog.String("screenshot_service_url", cfg.ScreenshotServiceURL),
		slog.Int("max_wait_sec", cfg.MaxWaitSeconds),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.NewDependencies(ctx, cfg.DatabaseDSN(), logger)
	if err != nil {
		return err
	}
	defer deps.Pool.Close()

	dispatcher, err := orchestrator.NewHTTPDispatcher(cfg.JobRunnerDispatchURL)
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}

	screenshotClient := screenshot.New(cfg.ScreenshotServiceURL)
	prober := audioprobe.NewFFprobe(os.Getenv("FFPROBE_BIN"))
	muxer := mux.NewFFmpegMuxer(os.Getenv("FFMPEG_BIN"))

	o := orchestrator.New(deps.Gateway, dispatcher, screenshotClient, prober, muxer, logger, orchestrator.Config{
		CompletionPollSeconds: cfg.CompletionPollSeconds,
		MaxWaitSeconds:        cfg.MaxWaitSeconds,
		OutputDir:             cfg.OutputDir,
		BackgroundVideo:       cfg.BackgroundVideo,
		ImageWidth:            cfg.ImageWidth,
		ImageHeight:           cfg.ImageHeight,
		Overlay: overlay.Params{
			FPS:                  cfg.FPS,
			StartBuffer:          cfg.StartBufferSeconds,
			EndBuffer:            cfg.EndBufferSeconds,
			PauseBetweenMessages: cfg.PauseBetweenMessages,
			MessagesPerGroup:     cfg.MessagesPerGroup,
		},
	})

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

	var req orchestrator.VideoRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		logger.Error("malformed video request payload", slog.String("error", err.Error()))
		return nil
	}

	outputPath, err := o.Run(ctx, &req)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	logger.Info("video rendered", slog.String("video_id", req.VideoID), slog.String("output_path", outputPath))
	return nil
}
