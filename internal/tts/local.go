package tts

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/ragnarcb/chatclip/internal/pipelineerr"
)

// ErrEngineUnsafeForConcurrency is a documentation-only sentinel: callers
// should keep the synthesis pool size at 1 when LocalClient wraps an engine
// that is not known concurrency-safe (§5).
var ErrEngineUnsafeForConcurrency = errors.New("tts: local engine is not concurrency-safe")

// LocalClient shells out to a local voice-cloning engine binary, one process
// per message via os/exec: a single command, stderr captured for
// diagnostics, context-bound for cancellation.
type LocalClient struct {
	binPath        string
	maxExecuteTime time.Duration
}

var _ Client = (*LocalClient)(nil)

// NewLocalClient wraps binPath, the synthesis engine's CLI entrypoint. It is
// expected to accept --text, --voice-ref, and --out flags and write a
// waveform file to --out.
func NewLocalClient(binPath string, maxExecuteTime time.Duration) *LocalClient {
	if maxExecuteTime <= 0 {
		maxExecuteTime = 5 * time.Minute
	}
	return &LocalClient{binPath: binPath, maxExecuteTime: maxExecuteTime}
}

// Synthesize runs the local engine synchronously; synthesis can take
// minutes, so the caller's context should carry a generous deadline (§5
// "max_execution_time").
func (c *LocalClient) Synthesize(ctx context.Context, req Request) error {
	cleaned := CleanText(req.Text)
	if cleaned == "" {
		return pipelineerr.Synthesis(errors.New("empty text after cleanup"))
	}

	ctx, cancel := context.WithTimeout(ctx, c.maxExecuteTime)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binPath,
		"--text", cleaned,
		"--voice-ref", req.VoiceRef,
		"--out", req.OutputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return pipelineerr.Synthesis(formatRunError(err, stderr.String()))
	}

	if _, err := os.Stat(req.OutputPath); err != nil {
		return pipelineerr.Synthesis(errors.New("engine reported success but wrote no output file"))
	}
	return nil
}

func formatRunError(err error, stderr string) error {
	if stderr == "" {
		return err
	}
	return errors.New(err.Error() + ": " + stderr)
}
