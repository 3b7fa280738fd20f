// Package voiceworker implements the voice-cloning TTS worker (spec §4.3):
// turning one VoiceJob into N completed VoiceRows. It fans the job's
// messages out into voices rows, then drives the pending-rows processing
// loop (claim, synthesize, upload, complete) that both the one-shot queue
// path and the continuous database-polling path (§6 USE_DATABASE_MODE)
// share.
package voiceworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ragnarcb/chatclip/internal/pipelineerr"
	"github.com/ragnarcb/chatclip/internal/storage"
	"github.com/ragnarcb/chatclip/internal/tts"
	"github.com/ragnarcb/chatclip/internal/voicedb"
	"github.com/ragnarcb/chatclip/internal/voicejob"
)

// ErrAnyVoiceFailed is returned by ProcessJob when at least one of the
// job's voice rows ends in failed status; the worker still drains every
// other row to completion before reporting this.
var ErrAnyVoiceFailed = errors.New("voiceworker: one or more voice rows failed")

// Config controls the worker's synthesis/upload/sweep behavior, mirroring
// the env vars in spec §6.
type Config struct {
	UseLocalStorage     bool
	VoiceStorageBucket  string
	OutputDir           string
	SynthesisPoolSize   int           // bounded synthesis concurrency; values <= 0 mean 1
	DatabasePollSeconds int           // §6 USE_DATABASE_MODE sweep interval
	SweepIdleSleep      time.Duration // DrainUntilComplete's sleep between sweeps; defaults to 30s
}

// Worker drives VoiceJobs to completion.
type Worker struct {
	gateway voicedb.Gateway
	tts     tts.Client
	storage storage.Backend
	logger  *slog.Logger
	cfg     Config
	sem     *semaphore.Weighted
}

// New builds a Worker. A nil storage backend is valid only when
// cfg.UseLocalStorage is true.
func New(gateway voicedb.Gateway, ttsClient tts.Client, storageBackend storage.Backend, logger *slog.Logger, cfg Config) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	poolSize := cfg.SynthesisPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	if cfg.SweepIdleSleep <= 0 {
		cfg.SweepIdleSleep = 30 * time.Second
	}
	return &Worker{
		gateway: gateway,
		tts:     ttsClient,
		storage: storageBackend,
		logger:  logger,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(poolSize)),
	}
}

// ProcessJob turns one VoiceJob into N completed VoiceRows (§4.3 steps 1-4).
// It rejects jobs with no video_id or no messages without creating any
// rows; otherwise it creates a row per message, then drives every claimed
// row for this video_id to completion, returning ErrAnyVoiceFailed if any
// row ends failed.
func (w *Worker) ProcessJob(ctx context.Context, job *voicejob.VoiceJob) error {
	hasDefault, err := w.hasDefaultMapping(ctx)
	if err != nil {
		return err
	}
	if err := job.Validate(hasDefault); err != nil {
		return err
	}

	for _, msg := range job.Messages {
		var mappingID *string
		if key, ok := job.VoiceMapping[msg.FromUser]; ok {
			mapping, err := w.gateway.GetMapping(ctx, key)
			if err != nil {
				return fmt.Errorf("voiceworker: resolve mapping for %s: %w", msg.FromUser, err)
			}
			if mapping != nil {
				mappingID = &mapping.ID
			}
		}
		if _, err := w.gateway.CreateVoice(ctx, job.VideoID, msg.FromUser, tts.CleanText(msg.Text), mappingID); err != nil {
			return fmt.Errorf("voiceworker: create voice row: %w", err)
		}
	}

	return w.DrainUntilComplete(ctx, job.VideoID)
}

func (w *Worker) hasDefaultMapping(ctx context.Context) (bool, error) {
	m, err := w.gateway.DefaultMapping(ctx)
	if err != nil {
		return false, fmt.Errorf("voiceworker: default mapping lookup: %w", err)
	}
	return m != nil, nil
}

// DrainUntilComplete repeatedly sweeps pending rows for videoID until
// all_voices_completed is true or any row fails (§4.3 step 3).
func (w *Worker) DrainUntilComplete(ctx context.Context, videoID string) error {
	for {
		if err := w.sweep(ctx, &videoID); err != nil {
			return err
		}

		status, err := w.gateway.StatusForVideo(ctx, videoID)
		if err != nil {
			return fmt.Errorf("voiceworker: status_for_video: %w", err)
		}
		if status.AnyFailed() {
			return ErrAnyVoiceFailed
		}
		if status.AllCompleted() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.cfg.SweepIdleSleep):
		}
	}
}

// RunContinuous implements USE_DATABASE_MODE: repeatedly sweep every
// pending row (not scoped to one video), sleeping DatabasePollSeconds
// between sweeps, until ctx is cancelled (§6, §13 supplemented feature).
func (w *Worker) RunContinuous(ctx context.Context) error {
	interval := time.Duration(w.cfg.DatabasePollSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	for {
		if err := w.sweep(ctx, nil); err != nil {
			w.logger.Error("sweep failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// sweep fetches pending_voices(), claims each (optionally filtered to
// videoID), and processes claimed rows concurrently bounded by the
// synthesis pool semaphore.
func (w *Worker) sweep(ctx context.Context, videoID *string) error {
	rows, err := w.gateway.PendingVoices(ctx)
	if err != nil {
		return fmt.Errorf("voiceworker: pending_voices: %w", err)
	}

	var wg sync.WaitGroup
	for _, row := range rows {
		if videoID != nil && row.VideoID != *videoID {
			continue
		}

		claimed, err := w.gateway.ClaimVoice(ctx, row.ID)
		if err != nil {
			return fmt.Errorf("voiceworker: claim_voice %s: %w", row.ID, err)
		}
		if !claimed {
			continue
		}

		if err := w.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("voiceworker: acquire synthesis slot: %w", err)
		}

		row := row
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer w.sem.Release(1)
			w.processRow(ctx, row)
		}()
	}
	wg.Wait()
	return nil
}

// processRow resolves the row's voice mapping, synthesizes audio, uploads
// it if configured, and marks the row completed or failed. Errors are
// recorded on the row itself (§7 "database-level errors inside a single
// row's lifecycle do not abort peers") rather than returned.
func (w *Worker) processRow(ctx context.Context, row voicejob.VoiceRow) {
	mapping, err := w.resolveMapping(ctx, row)
	if err != nil {
		w.fail(ctx, row.ID, err.Error())
		return
	}
	if mapping == nil {
		w.fail(ctx, row.ID, "no voice mapping available")
		return
	}

	outPath := filepath.Join(w.cfg.OutputDir, row.ID+".wav")
	err = w.tts.Synthesize(ctx, tts.Request{
		Text:       row.TextContent,
		VoiceRef:   mapping.VoiceFile,
		OutputPath: outPath,
		UseCloning: true,
	})
	if err != nil {
		w.fail(ctx, row.ID, err.Error())
		return
	}

	isLocal := true
	var remotePath *string
	if !w.cfg.UseLocalStorage && w.storage != nil {
		location, uploadErr := w.uploadAudio(ctx, row.ID, outPath)
		if uploadErr != nil {
			// StorageUploadFailure is non-fatal: keep the local path and
			// complete the row anyway (§4.3 step, §7).
			w.logger.Warn("audio upload failed, keeping local path",
				slog.String("voice_id", row.ID), slog.String("error", uploadErr.Error()))
		} else {
			isLocal = false
			remotePath = &location
		}
	}

	if err := w.gateway.CompleteVoice(ctx, row.ID, outPath, isLocal, remotePath); err != nil {
		w.logger.Error("complete_voice failed", slog.String("voice_id", row.ID), slog.String("error", err.Error()))
	}
}

func (w *Worker) resolveMapping(ctx context.Context, row voicejob.VoiceRow) (*voicejob.VoiceMapping, error) {
	if row.VoiceMappingID != nil {
		mapping, err := w.gateway.GetMappingByID(ctx, *row.VoiceMappingID)
		if err != nil {
			return nil, fmt.Errorf("get_mapping: %w", err)
		}
		if mapping != nil {
			return mapping, nil
		}
	}
	mapping, err := w.gateway.DefaultMapping(ctx)
	if err != nil {
		return nil, fmt.Errorf("default_mapping: %w", err)
	}
	return mapping, nil
}

func (w *Worker) uploadAudio(ctx context.Context, voiceID, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", pipelineerr.StorageUpload(err)
	}
	defer func() { _ = f.Close() }()

	bucket := w.cfg.VoiceStorageBucket
	if bucket == "" {
		bucket = "voice-cloning"
	}
	return w.storage.Upload(ctx, bucket, voiceID+".wav", f)
}

func (w *Worker) fail(ctx context.Context, voiceID, message string) {
	if err := w.gateway.FailVoice(ctx, voiceID, message); err != nil {
		w.logger.Error("fail_voice failed", slog.String("voice_id", voiceID), slog.String("error", err.Error()))
	}
}
