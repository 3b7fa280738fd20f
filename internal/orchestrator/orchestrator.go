// Package orchestrator drives the full per-video pipeline (§4.6): fan out
// voice work, wait for the database completion barrier, request a
// screenshot, generate the progressive overlay frames, and invoke the
// external mux step. It owns no shared mutable state of its own — the
// voices table is the single source of truth it polls.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ragnarcb/chatclip/internal/audioprobe"
	"github.com/ragnarcb/chatclip/internal/mux"
	"github.com/ragnarcb/chatclip/internal/overlay"
	"github.com/ragnarcb/chatclip/internal/pipelineerr"
	"github.com/ragnarcb/chatclip/internal/screenshot"
	"github.com/ragnarcb/chatclip/internal/voicedb"
	"github.com/ragnarcb/chatclip/internal/voicejob"
)

// VideoRequest is the job an orchestrator process consumes off its queue:
// the transcript plus rendering parameters for one video.
type VideoRequest struct {
	VideoID         string            `json:"video_id,omitempty"`
	Messages        []voicejob.Message `json:"messages" validate:"required,min=1,dive"`
	Participants    []string          `json:"participants" validate:"required,min=1"`
	VoiceMapping    map[string]string `json:"voice_mapping,omitempty"`
	BackgroundVideo string            `json:"background_video,omitempty"`
	OutputDir       string            `json:"output_dir,omitempty"`
}

// Dispatcher hands a VoiceJob off to the voice worker's queue via the job
// runner. The orchestrator never publishes to the broker directly (§4.6
// step 3); the job runner itself is out of scope, so this is the one
// concrete boundary the orchestrator calls.
type Dispatcher interface {
	Dispatch(ctx context.Context, job voicejob.VoiceJob) error
}

// Config controls polling bounds and rendering defaults.
type Config struct {
	CompletionPollSeconds int
	MaxWaitSeconds        int
	OutputDir             string
	BackgroundVideo       string
	ImageWidth            int
	ImageHeight           int
	Overlay               overlay.Params
}

// Orchestrator coordinates one video request end to end.
type Orchestrator struct {
	gateway    voicedb.Gateway
	dispatcher Dispatcher
	screenshot *screenshot.Client
	prober     audioprobe.Prober
	muxer      mux.Muxer
	logger     *slog.Logger
	cfg        Config
}

// New builds an Orchestrator from its collaborators.
func New(gateway voicedb.Gateway, dispatcher Dispatcher, screenshotClient *screenshot.Client, prober audioprobe.Prober, muxer mux.Muxer, logger *slog.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CompletionPollSeconds <= 0 {
		cfg.CompletionPollSeconds = 5
	}
	if cfg.MaxWaitSeconds <= 0 {
		cfg.MaxWaitSeconds = 300
	}
	return &Orchestrator{
		gateway:    gateway,
		dispatcher: dispatcher,
		screenshot: screenshotClient,
		prober:     prober,
		muxer:      muxer,
		logger:     logger,
		cfg:        cfg,
	}
}

// ErrEmptyTranscript is returned when a VideoRequest carries no messages.
var ErrEmptyTranscript = pipelineerr.Protocol("orchestrator: empty transcript")

// Run drives req through every step of §4.6 and returns the final muxed
// video's output path.
func (o *Orchestrator) Run(ctx context.Context, req *VideoRequest) (string, error) {
	videoID := req.VideoID
	if videoID == "" {
		videoID = uuid.NewString()
	}
	if len(req.Messages) == 0 {
		return "", ErrEmptyTranscript
	}

	job := voicejob.VoiceJob{
		VideoID:      videoID,
		Messages:     req.Messages,
		VoiceMapping: req.VoiceMapping,
		OutputDir:    req.OutputDir,
	}
	if err := o.dispatcher.Dispatch(ctx, job); err != nil {
		return "", fmt.Errorf("orchestrator: dispatch voice job: %w", err)
	}

	if err := o.waitForCompletion(ctx, videoID); err != nil {
		return "", err
	}

	rows, err := o.gateway.VoicesForVideo(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("orchestrator: voices_for_video: %w", err)
	}
	audioPaths := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.OutputAudioPath == nil {
			return "", pipelineerr.Protocol("orchestrator: completed row %s has no output_audio_path", row.ID)
		}
		audioPaths = append(audioPaths, *row.OutputAudioPath)
	}

	durations, err := audioprobe.DurationsForPaths(ctx, o.prober, audioPaths)
	if err != nil {
		return "", fmt.Errorf("orchestrator: probe audio durations: %w", err)
	}

	if !o.screenshot.Ping(ctx) {
		return "", pipelineerr.Transport("screenshot service", fmt.Errorf("health check failed"))
	}

	participants := distinctFromUsers(req.Messages)
	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = o.cfg.OutputDir
	}
	artifact, err := o.screenshot.GetScreenshotWithCoordinates(ctx, req.Messages, participants, outputDir, o.cfg.ImageWidth, o.cfg.ImageHeight)
	if err != nil {
		return "", fmt.Errorf("orchestrator: screenshot: %w", err)
	}

	frameDir := outputDir + "/frames"
	result, err := overlay.Generate(artifact.ImagePath, artifact.Coordinates, durations, o.cfg.Overlay, frameDir)
	if err != nil {
		return "", fmt.Errorf("orchestrator: overlay: %w", err)
	}

	background := req.BackgroundVideo
	if background == "" {
		background = o.cfg.BackgroundVideo
	}
	outPath := outputDir + "/" + videoID + ".mp4"
	muxReq := mux.Request{
		FrameDir:        result.OutputDir,
		FPS:             o.cfg.Overlay.FPS,
		AudioPaths:      audioPaths,
		BackgroundVideo: background,
		OutputPath:      outPath,
	}
	if err := o.muxer.Mux(ctx, muxReq); err != nil {
		return "", fmt.Errorf("orchestrator: mux: %w", err)
	}

	return outPath, nil
}

// waitForCompletion polls status_for_video at CompletionPollSeconds
// intervals, aborting on any failed row or on exceeding MaxWaitSeconds
// (§4.6 step 4, §7 Timeout).
func (o *Orchestrator) waitForCompletion(ctx context.Context, videoID string) error {
	deadline := time.Now().Add(time.Duration(o.cfg.MaxWaitSeconds) * time.Second)
	interval := time.Duration(o.cfg.CompletionPollSeconds) * time.Second

	for {
		status, err := o.gateway.StatusForVideo(ctx, videoID)
		if err != nil {
			return fmt.Errorf("orchestrator: status_for_video: %w", err)
		}
		if status.AnyFailed() {
			return pipelineerr.Protocol("orchestrator: video %s has failed voice rows", videoID)
		}
		if status.AllCompleted() {
			return nil
		}
		if time.Now().After(deadline) {
			return pipelineerr.Timeout("orchestrator: video %s did not complete within %ds", videoID, o.cfg.MaxWaitSeconds)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func distinctFromUsers(messages []voicejob.Message) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range messages {
		if !seen[m.FromUser] {
			seen[m.FromUser] = true
			out = append(out, m.FromUser)
		}
	}
	return out
}
